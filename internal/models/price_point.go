package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/MiaoJiyu/mini-biz-sim/internal/uuid"
)

// PricePointKind tags what a price point records.
type PricePointKind string

const (
	PricePointOpen  PricePointKind = "open"
	PricePointClose PricePointKind = "close"
	PricePointHigh  PricePointKind = "high"
	PricePointLow   PricePointKind = "low"
	PricePointTrade PricePointKind = "trade"
)

// PricePoint is one entry of the historical price archive.
// Immutable time-series data: no Base embed, no soft deletes.
type PricePoint struct {
	ID         string          `gorm:"type:uuid;primaryKey" json:"id"`
	Symbol     string          `gorm:"not null;index:idx_price_points_symbol_time,priority:1" json:"symbol"`
	Price      decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"price"`
	Volume     int64           `gorm:"not null" json:"volume"`
	Kind       PricePointKind  `gorm:"not null" json:"kind"`
	RecordedAt time.Time       `gorm:"not null;index:idx_price_points_symbol_time,priority:2" json:"recorded_at"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (p *PricePoint) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New()
	}
	return nil
}

// BeforeUpdate rejects any attempt to rewrite history.
func (p *PricePoint) BeforeUpdate(tx *gorm.DB) error {
	return ErrImmutableRecord
}
