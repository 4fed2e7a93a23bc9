package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is a user's holding of one instrument. Rows are never deleted:
// a fully sold position stays with quantity 0 and keeps its cost basis.
type Position struct {
	Base
	UserID        string          `gorm:"not null;uniqueIndex:uq_positions_user_symbol,priority:1" json:"user_id"`
	Symbol        string          `gorm:"not null;uniqueIndex:uq_positions_user_symbol,priority:2" json:"symbol"`
	Quantity      int64           `gorm:"not null" json:"quantity"`
	AveragePrice  decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"average_price"`
	CurrentValue  decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"current_value"`
	UnrealizedPnL decimal.Decimal `gorm:"column:unrealized_pnl;type:numeric(18,2);not null" json:"unrealized_pnl"`
	Version       int64           `gorm:"not null" json:"-"`
	LastTradeAt   time.Time       `json:"last_trade_at"`
}

// ApplyBuy adds quantity at price and moves the average cost to the
// quantity-weighted mean of the old holding and the new lot.
func (p *Position) ApplyBuy(quantity int64, price decimal.Decimal) {
	newQty := p.Quantity + quantity
	cost := p.AveragePrice.Mul(decimal.NewFromInt(p.Quantity)).
		Add(price.Mul(decimal.NewFromInt(quantity)))
	p.AveragePrice = cost.DivRound(decimal.NewFromInt(newQty), MoneyPlaces)
	p.Quantity = newQty
}

// ApplySell removes quantity. It reports false, leaving the position as it
// was, when the holding is too small. The average cost is unchanged.
func (p *Position) ApplySell(quantity int64) bool {
	if quantity > p.Quantity {
		return false
	}
	p.Quantity -= quantity
	return true
}

// Revalue derives current value and unrealized P&L from a market price.
func (p *Position) Revalue(price decimal.Decimal) {
	qty := decimal.NewFromInt(p.Quantity)
	p.CurrentValue = RoundMoney(price.Mul(qty))
	p.UnrealizedPnL = RoundMoney(p.CurrentValue.Sub(p.AveragePrice.Mul(qty)))
}
