package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/MiaoJiyu/mini-biz-sim/internal/uuid"
)

// ErrImmutableRecord is returned by hooks on append-only tables.
var ErrImmutableRecord = errors.New("record is immutable once written")

// Order construction errors.
var (
	ErrUnknownOrderKind  = errors.New("unknown order kind")
	ErrMissingLimitPrice = errors.New("limit_price is required for limit orders")
)

// Side is the direction of a trade. The zero value is not a valid side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide accepts "buy"/"sell" in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", fmt.Errorf("unknown trade side %q", s)
}

// Valid reports whether s is one of the declared sides.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderKind names how the execution price is chosen.
type OrderKind string

const (
	OrderKindMarket OrderKind = "MARKET"
	OrderKindLimit  OrderKind = "LIMIT"
)

// OrderSpec is the closed set of order types. Only MarketOrder and LimitOrder
// implement it; callers resolve it with a type switch.
type OrderSpec interface {
	Kind() OrderKind
	sealed()
}

// MarketOrder executes at the instrument's current price.
type MarketOrder struct{}

// LimitOrder executes at the caller's price. The price is taken as given and
// is not compared against the market.
type LimitOrder struct {
	Price decimal.Decimal
}

func (MarketOrder) Kind() OrderKind { return OrderKindMarket }
func (LimitOrder) Kind() OrderKind  { return OrderKindLimit }
func (MarketOrder) sealed()         {}
func (LimitOrder) sealed()          {}

// NewOrderSpec builds an OrderSpec from its wire form. limitPrice is only
// read for limit orders.
func NewOrderSpec(kind string, limitPrice *decimal.Decimal) (OrderSpec, error) {
	switch OrderKind(strings.ToUpper(strings.TrimSpace(kind))) {
	case OrderKindMarket, "":
		return MarketOrder{}, nil
	case OrderKindLimit:
		if limitPrice == nil {
			return nil, ErrMissingLimitPrice
		}
		return LimitOrder{Price: *limitPrice}, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownOrderKind, kind)
}

// TradeStatus is the lifecycle state stored on a trade record.
type TradeStatus string

const (
	TradeStatusCompleted TradeStatus = "completed"
	TradeStatusFailed    TradeStatus = "failed"
	TradeStatusPending   TradeStatus = "pending"
)

// TradeRecord is the immutable log entry of an executed order.
type TradeRecord struct {
	ID          string          `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      string          `gorm:"not null;index:idx_trade_records_user_time,priority:1" json:"user_id"`
	Symbol      string          `gorm:"not null;index" json:"symbol"`
	Side        Side            `gorm:"not null" json:"side"`
	OrderKind   OrderKind       `gorm:"not null" json:"order_kind"`
	Quantity    int64           `gorm:"not null" json:"quantity"`
	Price       decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"price"`
	TotalAmount decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"total_amount"`
	Status      TradeStatus     `gorm:"not null" json:"status"`
	ExecutedAt  time.Time       `gorm:"not null;index:idx_trade_records_user_time,priority:2" json:"executed_at"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (t *TradeRecord) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New()
	}
	return nil
}

// BeforeUpdate keeps trade records append-only.
func (t *TradeRecord) BeforeUpdate(tx *gorm.DB) error {
	return ErrImmutableRecord
}

// BeforeDelete keeps trade records append-only.
func (t *TradeRecord) BeforeDelete(tx *gorm.DB) error {
	return ErrImmutableRecord
}
