package services

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/MiaoJiyu/mini-biz-sim/internal/models"
)

// Quote is the client view of an instrument's market state.
type Quote struct {
	Symbol          string          `json:"symbol"`
	Name            string          `json:"name"`
	Issuer          string          `json:"issuer,omitempty"`
	Sector          string          `json:"sector,omitempty"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	PreviousClose   decimal.Decimal `json:"previous_close"`
	Change          decimal.Decimal `json:"change"`
	ChangePercent   decimal.Decimal `json:"change_percent"`
	OpenPrice       decimal.Decimal `json:"open_price"`
	HighPrice       decimal.Decimal `json:"high_price"`
	LowPrice        decimal.Decimal `json:"low_price"`
	Volume          int64           `json:"volume"`
	MarketCap       decimal.Decimal `json:"market_cap"`
	VolatilityClass int             `json:"volatility_class"`
	IsActive        bool            `json:"is_active"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewQuote builds a quote from an instrument.
func NewQuote(inst *models.Instrument) Quote {
	return Quote{
		Symbol:          inst.Symbol,
		Name:            inst.Name,
		Issuer:          inst.Issuer,
		Sector:          inst.Sector,
		CurrentPrice:    inst.CurrentPrice,
		PreviousClose:   inst.PreviousClose,
		Change:          inst.Change(),
		ChangePercent:   inst.ChangePercent(),
		OpenPrice:       inst.OpenPrice,
		HighPrice:       inst.HighPrice,
		LowPrice:        inst.LowPrice,
		Volume:          inst.Volume,
		MarketCap:       inst.MarketCap,
		VolatilityClass: inst.VolatilityClass,
		IsActive:        inst.IsActive,
		UpdatedAt:       inst.UpdatedAt,
	}
}

// NewQuotes builds quotes for a list of instruments, preserving order.
func NewQuotes(instruments []models.Instrument) []Quote {
	quotes := make([]Quote, len(instruments))
	for i := range instruments {
		quotes[i] = NewQuote(&instruments[i])
	}
	return quotes
}
