package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "github.com/MiaoJiyu/mini-biz-sim/internal/errors"
	"github.com/MiaoJiyu/mini-biz-sim/internal/keylock"
	"github.com/MiaoJiyu/mini-biz-sim/internal/logger"
	"github.com/MiaoJiyu/mini-biz-sim/internal/models"
	"github.com/MiaoJiyu/mini-biz-sim/internal/pagination"
)

// tradeService executes orders against the ledger.
type tradeService struct {
	db        *gorm.DB
	locks     *keylock.Locker
	publisher ConfirmationPublisher
	now       func() time.Time
	log       *zap.SugaredLogger
}

// NewTradeService creates a new TradeServicer. publisher may be nil.
func NewTradeService(db *gorm.DB, locks *keylock.Locker, publisher ConfirmationPublisher) TradeServicer {
	if locks == nil {
		locks = keylock.New()
	}
	return &tradeService{
		db:        db,
		locks:     locks,
		publisher: publisher,
		now:       time.Now,
		log:       logger.Named("trades"),
	}
}

// Execute runs an order to completion. Executions for the same user and
// symbol are serialized; the trade record and the position change commit in
// one transaction or not at all. A failed execution returns a FAILED result
// together with the error and leaves no trace in the ledger.
func (s *tradeService) Execute(ctx context.Context, req ExecutionRequest) (*TradeResult, error) {
	now := s.now().UTC()
	symbol := normalizeSymbol(req.Symbol)

	result := &TradeResult{
		Symbol:    symbol,
		Side:      req.Side,
		Quantity:  req.Quantity,
		Timestamp: now,
	}
	if req.Order != nil {
		result.OrderKind = req.Order.Kind()
	}

	fail := func(err error) (*TradeResult, error) {
		appErr := toAppError(err)
		result.Status = ResultFailed
		result.Message = appErr.Message
		s.log.Infow("trade rejected",
			"user_id", req.UserID,
			"symbol", symbol,
			"side", req.Side,
			"quantity", req.Quantity,
			"code", appErr.Code,
		)
		return result, appErr
	}

	if err := validateExecution(req, symbol); err != nil {
		return fail(err)
	}

	unlock := s.locks.Lock(keylock.Key("position", req.UserID, symbol))
	defer unlock()

	var (
		record   models.TradeRecord
		position models.Position
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inst models.Instrument
		if err := tx.Where("symbol = ?", symbol).Take(&inst).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrInstrumentNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if !inst.IsActive {
			return apperrors.ErrInstrumentInactive
		}

		price, err := executionPrice(req.Order, &inst)
		if err != nil {
			return err
		}

		existed := true
		if err := tx.Where("user_id = ? AND symbol = ?", req.UserID, symbol).Take(&position).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			existed = false
			position = models.Position{UserID: req.UserID, Symbol: symbol}
		}

		switch req.Side {
		case models.SideBuy:
			position.ApplyBuy(req.Quantity, price)
		case models.SideSell:
			if !position.ApplySell(req.Quantity) {
				return apperrors.WithMessage(apperrors.ErrInsufficientPosition,
					"Cannot sell more shares than are held")
			}
		}
		position.Revalue(inst.CurrentPrice)
		position.LastTradeAt = now

		record = models.TradeRecord{
			UserID:      req.UserID,
			Symbol:      symbol,
			Side:        req.Side,
			OrderKind:   req.Order.Kind(),
			Quantity:    req.Quantity,
			Price:       price,
			TotalAmount: models.RoundMoney(price.Mul(decimal.NewFromInt(req.Quantity))),
			Status:      models.TradeStatusCompleted,
			ExecutedAt:  now,
		}
		if err := tx.Create(&record).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		return savePosition(tx, &position, existed, now)
	})
	if err != nil {
		return fail(err)
	}

	result.TradeID = record.ID
	result.ExecutedPrice = record.Price
	result.TotalAmount = record.TotalAmount
	result.Status = ResultSuccess
	result.Message = "Trade executed"
	result.Position = &position

	s.log.Infow("trade executed",
		"trade_id", record.ID,
		"user_id", req.UserID,
		"symbol", symbol,
		"side", req.Side,
		"quantity", req.Quantity,
		"price", record.Price.String(),
	)

	if s.publisher != nil {
		s.publisher.PublishTradeConfirmation(req.UserID, result)
	}
	return result, nil
}

// GetTradeHistory returns a user's trades within a time range, newest first.
func (s *tradeService) GetTradeHistory(
	ctx context.Context,
	userID string,
	from, to time.Time,
	page pagination.PageRequest,
) (*pagination.PageResponse[models.TradeRecord], error) {
	page.Defaults()
	if from.After(to) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "from must not be after to")
	}

	var totalItems int64
	base := s.db.WithContext(ctx).Model(&models.TradeRecord{}).
		Where("user_id = ? AND executed_at >= ? AND executed_at <= ?", userID, from.UTC(), to.UTC())
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var trades []models.TradeRecord
	if err := base.Order("executed_at DESC").Order("id DESC").Scopes(pagination.Paginate(page)).Find(&trades).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(trades, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// validateExecution checks everything that does not need the database.
func validateExecution(req ExecutionRequest, symbol string) error {
	if strings.TrimSpace(req.UserID) == "" {
		return apperrors.ErrUnauthorized
	}
	if symbol == "" {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "Symbol is required")
	}
	if req.Quantity <= 0 {
		return apperrors.ErrInvalidQuantity
	}
	if !req.Side.Valid() {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "Side must be BUY or SELL")
	}
	switch o := req.Order.(type) {
	case models.MarketOrder:
	case models.LimitOrder:
		if models.RoundMoney(o.Price).LessThan(models.MinPrice) {
			return apperrors.ErrInvalidLimitPrice
		}
	default:
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "Order type is required")
	}
	return nil
}

// executionPrice resolves the price an order fills at. Limit orders fill at
// their own price without being compared to the market.
func executionPrice(order models.OrderSpec, inst *models.Instrument) (decimal.Decimal, error) {
	switch o := order.(type) {
	case models.MarketOrder:
		return inst.CurrentPrice, nil
	case models.LimitOrder:
		return models.RoundMoney(o.Price), nil
	}
	return decimal.Zero, apperrors.WithMessage(apperrors.ErrInvalidInput, "Unsupported order type")
}

// savePosition inserts a new position or updates an existing one guarded by
// its version, so a concurrent writer that slipped past the lock is detected.
func savePosition(tx *gorm.DB, position *models.Position, existed bool, now time.Time) error {
	if !existed {
		position.Version = 1
		if err := tx.Create(position).Error; err != nil {
			if isUniqueConstraintError(err) {
				return apperrors.ErrConcurrentModification
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	}

	res := tx.Model(&models.Position{}).
		Where("id = ? AND version = ?", position.ID, position.Version).
		Updates(map[string]any{
			"quantity":       position.Quantity,
			"average_price":  position.AveragePrice,
			"current_value":  position.CurrentValue,
			"unrealized_pnl": position.UnrealizedPnL,
			"last_trade_at":  position.LastTradeAt,
			"version":        position.Version + 1,
			"updated_at":     now,
		})
	if res.Error != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrConcurrentModification
	}
	position.Version++
	position.UpdatedAt = now
	return nil
}

// toAppError maps any error onto an AppError so callers always see a code.
func toAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.WithMessage(apperrors.Wrap(apperrors.ErrInternalServer, err), "Trade timed out")
	}
	return apperrors.Wrap(apperrors.ErrInternalServer, err)
}
