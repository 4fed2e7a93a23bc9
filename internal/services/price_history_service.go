package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/MiaoJiyu/mini-biz-sim/internal/errors"
	"github.com/MiaoJiyu/mini-biz-sim/internal/models"
	"github.com/MiaoJiyu/mini-biz-sim/internal/pagination"
)

// priceHistoryService handles the append-only price archive.
type priceHistoryService struct {
	db *gorm.DB
}

// NewPriceHistoryService creates a new PriceHistoryServicer.
func NewPriceHistoryService(db *gorm.DB) PriceHistoryServicer {
	return &priceHistoryService{db: db}
}

// Append writes points inside the caller's transaction so a price change and
// its history entry commit together.
func (s *priceHistoryService) Append(tx *gorm.DB, points ...models.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	for i := range points {
		points[i].RecordedAt = points[i].RecordedAt.UTC()
	}
	if err := tx.Create(&points).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// GetPriceHistory returns paginated price points for a symbol within a time
// range, oldest first.
func (s *priceHistoryService) GetPriceHistory(
	ctx context.Context,
	symbol string,
	from, to time.Time,
	page pagination.PageRequest,
) (*pagination.PageResponse[models.PricePoint], error) {
	page.Defaults()
	symbol = normalizeSymbol(symbol)
	if from.After(to) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "from must not be after to")
	}

	db := s.db.WithContext(ctx)

	var known int64
	if err := db.Model(&models.Instrument{}).Where("symbol = ?", symbol).Count(&known).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if known == 0 {
		return nil, apperrors.ErrInstrumentNotFound
	}

	var totalItems int64
	base := db.Model(&models.PricePoint{}).
		Where("symbol = ? AND recorded_at >= ? AND recorded_at <= ?", symbol, from.UTC(), to.UTC())
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var points []models.PricePoint
	if err := base.Order("recorded_at ASC").Order("id ASC").Scopes(pagination.Paginate(page)).Find(&points).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(points, page.Page, page.PageSize, totalItems)
	return &result, nil
}
