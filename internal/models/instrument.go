package models

import "github.com/shopspring/decimal"

// Instrument is a tradable synthetic security. Its price fields are written
// only by the market simulator; everything else reads them.
type Instrument struct {
	Base
	Symbol            string          `gorm:"not null;uniqueIndex" json:"symbol"`
	Name              string          `gorm:"not null" json:"name"`
	Issuer            string          `json:"issuer"`
	Sector            string          `gorm:"index" json:"sector"`
	CurrentPrice      decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"current_price"`
	PreviousClose     decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"previous_close"`
	OpenPrice         decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"open_price"`
	HighPrice         decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"high_price"`
	LowPrice          decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"low_price"`
	Volume            int64           `gorm:"not null" json:"volume"`
	SharesOutstanding int64           `gorm:"not null" json:"shares_outstanding"`
	MarketCap         decimal.Decimal `gorm:"type:numeric(24,2);not null" json:"market_cap"`
	VolatilityClass   int             `gorm:"not null" json:"volatility_class"`
	IsActive          bool            `gorm:"not null;index" json:"is_active"`
}

// Change returns the absolute move since the previous close.
func (i *Instrument) Change() decimal.Decimal {
	return i.CurrentPrice.Sub(i.PreviousClose)
}

// ChangePercent returns (current - previousClose) / previousClose * 100,
// rounded to two places. An instrument without a previous close has not moved.
func (i *Instrument) ChangePercent() decimal.Decimal {
	if !i.PreviousClose.IsPositive() {
		return decimal.Zero
	}
	return i.Change().Mul(decimal.NewFromInt(100)).DivRound(i.PreviousClose, MoneyPlaces)
}

// RecomputeMarketCap sets market cap from the current price.
func (i *Instrument) RecomputeMarketCap() {
	i.MarketCap = RoundMoney(i.CurrentPrice.Mul(decimal.NewFromInt(i.SharesOutstanding)))
}
