package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/MiaoJiyu/mini-biz-sim/internal/models"
	"github.com/MiaoJiyu/mini-biz-sim/internal/uuid"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// NewUserID returns a fresh user identifier.
func NewUserID() string {
	return uuid.New()
}

// CreateTestInstrument creates an active instrument whose session opened at
// price, so it has not moved yet.
func CreateTestInstrument(t *testing.T, db *gorm.DB, symbol, price string) *models.Instrument {
	t.Helper()

	if symbol == "" {
		symbol = fmt.Sprintf("TST%03d", nextID())
	}
	p := decimal.RequireFromString(price)
	inst := &models.Instrument{
		Symbol:            symbol,
		Name:              fmt.Sprintf("Test Instrument %s", symbol),
		Issuer:            "Test Issuer",
		Sector:            "Testing",
		CurrentPrice:      p,
		PreviousClose:     p,
		OpenPrice:         p,
		HighPrice:         p,
		LowPrice:          p,
		SharesOutstanding: 1_000_000,
		VolatilityClass:   5,
		IsActive:          true,
	}
	inst.RecomputeMarketCap()
	if err := db.Create(inst).Error; err != nil {
		t.Fatalf("failed to create test instrument: %v", err)
	}
	return inst
}

// SetInstrumentPrice moves an instrument's current price without touching its
// session fields.
func SetInstrumentPrice(t *testing.T, db *gorm.DB, symbol, price string) {
	t.Helper()

	if err := db.Model(&models.Instrument{}).
		Where("symbol = ?", symbol).
		Update("current_price", decimal.RequireFromString(price)).Error; err != nil {
		t.Fatalf("failed to set instrument price: %v", err)
	}
}

// DeactivateInstrument marks an instrument inactive.
func DeactivateInstrument(t *testing.T, db *gorm.DB, symbol string) {
	t.Helper()

	if err := db.Model(&models.Instrument{}).
		Where("symbol = ?", symbol).
		Update("is_active", false).Error; err != nil {
		t.Fatalf("failed to deactivate instrument: %v", err)
	}
}

// CreateTestPosition creates a position with the given quantity and average cost.
func CreateTestPosition(t *testing.T, db *gorm.DB, userID, symbol string, quantity int64, averagePrice string) *models.Position {
	t.Helper()

	avg := decimal.RequireFromString(averagePrice)
	position := &models.Position{
		UserID:       userID,
		Symbol:       symbol,
		Quantity:     quantity,
		AveragePrice: avg,
		Version:      1,
		LastTradeAt:  time.Now().UTC(),
	}
	position.Revalue(avg)
	if err := db.Create(position).Error; err != nil {
		t.Fatalf("failed to create test position: %v", err)
	}
	return position
}
