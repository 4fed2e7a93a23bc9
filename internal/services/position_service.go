package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "github.com/MiaoJiyu/mini-biz-sim/internal/errors"
	"github.com/MiaoJiyu/mini-biz-sim/internal/models"
)

// positionService reads the position ledger.
type positionService struct {
	db *gorm.DB
}

// NewPositionService creates a new PositionServicer.
func NewPositionService(db *gorm.DB) PositionServicer {
	return &positionService{db: db}
}

// GetPosition returns the user's position in one symbol, valued at the
// current market price. Fully sold positions are still returned.
func (s *positionService) GetPosition(ctx context.Context, userID, symbol string) (*models.Position, error) {
	symbol = normalizeSymbol(symbol)
	db := s.db.WithContext(ctx)

	var position models.Position
	if err := db.Where("user_id = ? AND symbol = ?", userID, symbol).Take(&position).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPositionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	prices, err := currentPrices(db, []string{symbol})
	if err != nil {
		return nil, err
	}
	if price, ok := prices[symbol]; ok {
		position.Revalue(price)
	}
	return &position, nil
}

// ListForUser returns the user's open positions ordered by symbol, each
// valued at the current market price.
func (s *positionService) ListForUser(ctx context.Context, userID string) ([]models.Position, error) {
	db := s.db.WithContext(ctx)

	var positions []models.Position
	if err := db.Where("user_id = ? AND quantity > 0", userID).
		Order("symbol ASC").
		Find(&positions).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if len(positions) == 0 {
		return []models.Position{}, nil
	}

	symbols := make([]string, len(positions))
	for i, p := range positions {
		symbols[i] = p.Symbol
	}
	prices, err := currentPrices(db, symbols)
	if err != nil {
		return nil, err
	}
	for i := range positions {
		if price, ok := prices[positions[i].Symbol]; ok {
			positions[i].Revalue(price)
		}
	}
	return positions, nil
}

// TotalPortfolioValue sums the current value of the user's open positions.
func (s *positionService) TotalPortfolioValue(ctx context.Context, userID string) (*PortfolioValue, error) {
	positions, err := s.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	value := &PortfolioValue{
		UserID:        userID,
		TotalValue:    decimal.Zero,
		TotalCost:     decimal.Zero,
		UnrealizedPnL: decimal.Zero,
		Positions:     len(positions),
		AsOf:          time.Now().UTC(),
	}
	for _, p := range positions {
		value.TotalValue = value.TotalValue.Add(p.CurrentValue)
		value.TotalCost = value.TotalCost.Add(p.AveragePrice.Mul(decimal.NewFromInt(p.Quantity)))
		value.UnrealizedPnL = value.UnrealizedPnL.Add(p.UnrealizedPnL)
	}
	value.TotalCost = models.RoundMoney(value.TotalCost)
	return value, nil
}

// currentPrices maps symbol to current price for the given symbols.
func currentPrices(db *gorm.DB, symbols []string) (map[string]decimal.Decimal, error) {
	var instruments []models.Instrument
	if err := db.Select("symbol", "current_price").
		Where("symbol IN ?", symbols).
		Find(&instruments).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	prices := make(map[string]decimal.Decimal, len(instruments))
	for _, inst := range instruments {
		prices[inst.Symbol] = inst.CurrentPrice
	}
	return prices, nil
}
