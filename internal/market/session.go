package market

import (
	"github.com/shopspring/decimal"

	"github.com/MiaoJiyu/mini-biz-sim/internal/models"
)

// turnoverScale converts a relative price move into simulated traded shares.
const turnoverScale = 10000

// ApplyPrice moves an instrument to newPrice: high/low widen to include it,
// volume grows with the size of the move and market cap follows the price.
// It returns the volume added.
func ApplyPrice(inst *models.Instrument, newPrice decimal.Decimal) int64 {
	prev := inst.CurrentPrice

	var added int64
	if prev.IsPositive() {
		added = newPrice.Sub(prev).Abs().Div(prev).Mul(decimal.NewFromInt(turnoverScale)).IntPart()
	}

	if newPrice.GreaterThan(inst.HighPrice) {
		inst.HighPrice = newPrice
	}
	if inst.LowPrice.IsZero() || newPrice.LessThan(inst.LowPrice) {
		inst.LowPrice = newPrice
	}
	inst.CurrentPrice = newPrice
	inst.Volume += added
	inst.RecomputeMarketCap()
	return added
}

// OpenSession closes the running session at the current price and starts a
// new one: previous close, open, high and low all become the current price
// and volume restarts from zero.
func OpenSession(inst *models.Instrument) {
	inst.PreviousClose = inst.CurrentPrice
	inst.OpenPrice = inst.CurrentPrice
	inst.HighPrice = inst.CurrentPrice
	inst.LowPrice = inst.CurrentPrice
	inst.Volume = 0
}
