package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/MiaoJiyu/mini-biz-sim/internal/errors"
	"github.com/MiaoJiyu/mini-biz-sim/internal/models"
)

const (
	defaultMoversLimit = 10
	maxMoversLimit     = 100

	defaultSharesOutstanding = 1_000_000
)

// instrumentService handles the instrument registry.
type instrumentService struct {
	db      *gorm.DB
	history PriceHistoryServicer
}

// NewInstrumentService creates a new InstrumentServicer.
func NewInstrumentService(db *gorm.DB, history PriceHistoryServicer) InstrumentServicer {
	return &instrumentService{db: db, history: history}
}

// GetInstrument returns an instrument by symbol, active or not.
func (s *instrumentService) GetInstrument(ctx context.Context, symbol string) (*models.Instrument, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Symbol is required")
	}

	var inst models.Instrument
	if err := s.db.WithContext(ctx).Where("symbol = ?", symbol).Take(&inst).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrInstrumentNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &inst, nil
}

// ListActive returns every active instrument ordered by symbol.
func (s *instrumentService) ListActive(ctx context.Context) ([]models.Instrument, error) {
	var instruments []models.Instrument
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("symbol ASC").
		Find(&instruments).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return instruments, nil
}

// ListAll returns every instrument, including inactive ones.
func (s *instrumentService) ListAll(ctx context.Context) ([]models.Instrument, error) {
	var instruments []models.Instrument
	if err := s.db.WithContext(ctx).Order("symbol ASC").Find(&instruments).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return instruments, nil
}

// Search matches the keyword case-insensitively against symbol, name and
// issuer of all instruments. An empty keyword lists the active ones.
func (s *instrumentService) Search(ctx context.Context, keyword string) ([]models.Instrument, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return s.ListActive(ctx)
	}

	pattern := "%" + escapeLike(strings.ToLower(keyword)) + "%"
	var instruments []models.Instrument
	if err := s.db.WithContext(ctx).
		Where(`LOWER(symbol) LIKE ? ESCAPE '\' OR LOWER(name) LIKE ? ESCAPE '\' OR LOWER(issuer) LIKE ? ESCAPE '\'`,
			pattern, pattern, pattern).
		Order("symbol ASC").
		Find(&instruments).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return instruments, nil
}

// TopMovers returns up to n active instruments ordered by the absolute size
// of their change since the previous close. Ties break on symbol.
func (s *instrumentService) TopMovers(ctx context.Context, n int) ([]models.Instrument, error) {
	if n <= 0 {
		n = defaultMoversLimit
	}
	if n > maxMoversLimit {
		n = maxMoversLimit
	}

	instruments, err := s.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	SortByMovement(instruments)
	if len(instruments) > n {
		instruments = instruments[:n]
	}
	return instruments, nil
}

// SortByMovement orders instruments by |changePercent| descending, then symbol.
func SortByMovement(instruments []models.Instrument) {
	sort.SliceStable(instruments, func(i, j int) bool {
		a := instruments[i].ChangePercent().Abs()
		b := instruments[j].ChangePercent().Abs()
		if c := a.Cmp(b); c != 0 {
			return c > 0
		}
		return instruments[i].Symbol < instruments[j].Symbol
	})
}

// CreateInstrument registers a new instrument. Its session opens at the
// listing price, and an open price point starts its history.
func (s *instrumentService) CreateInstrument(ctx context.Context, input InstrumentInput) (*models.Instrument, error) {
	inst, err := buildInstrument(input)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.createInTx(tx, inst)
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// SetActive toggles whether an instrument is simulated and tradable.
func (s *instrumentService) SetActive(ctx context.Context, symbol string, active bool) (*models.Instrument, error) {
	inst, err := s.GetInstrument(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if inst.IsActive == active {
		return inst, nil
	}

	if err := s.db.WithContext(ctx).Model(inst).Update("is_active", active).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	inst.IsActive = active
	return inst, nil
}

// SeedInstruments registers every input whose symbol is not yet known and
// returns how many were created. Existing instruments are left untouched.
func (s *instrumentService) SeedInstruments(ctx context.Context, inputs []InstrumentInput) (int, error) {
	created := 0
	for _, input := range inputs {
		inst, err := buildInstrument(input)
		if err != nil {
			return created, err
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var count int64
			if err := tx.Model(&models.Instrument{}).Where("symbol = ?", inst.Symbol).Count(&count).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			if count > 0 {
				return nil
			}
			if err := s.createInTx(tx, inst); err != nil {
				return err
			}
			created++
			return nil
		})
		if err != nil {
			return created, err
		}
	}
	return created, nil
}

func (s *instrumentService) createInTx(tx *gorm.DB, inst *models.Instrument) error {
	if err := tx.Create(inst).Error; err != nil {
		if isUniqueConstraintError(err) {
			return apperrors.ErrDuplicateInstrument
		}
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return s.history.Append(tx, models.PricePoint{
		Symbol:     inst.Symbol,
		Price:      inst.CurrentPrice,
		Volume:     inst.Volume,
		Kind:       models.PricePointOpen,
		RecordedAt: inst.CreatedAt.UTC(),
	})
}

func buildInstrument(input InstrumentInput) (*models.Instrument, error) {
	symbol := normalizeSymbol(input.Symbol)
	if symbol == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Symbol is required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Name is required")
	}
	price := models.RoundMoney(input.Price)
	if price.LessThan(models.MinPrice) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Price must be at least 0.01")
	}
	if input.VolatilityClass < 1 || input.VolatilityClass > 10 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Volatility class must be between 1 and 10")
	}
	if input.SharesOutstanding < 0 || input.InitialVolume < 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Shares outstanding and volume cannot be negative")
	}

	shares := input.SharesOutstanding
	if shares == 0 {
		shares = defaultSharesOutstanding
	}

	inst := &models.Instrument{
		Symbol:            symbol,
		Name:              strings.TrimSpace(input.Name),
		Issuer:            strings.TrimSpace(input.Issuer),
		Sector:            strings.TrimSpace(input.Sector),
		CurrentPrice:      price,
		PreviousClose:     price,
		OpenPrice:         price,
		HighPrice:         price,
		LowPrice:          price,
		Volume:            input.InitialVolume,
		SharesOutstanding: shares,
		VolatilityClass:   input.VolatilityClass,
		IsActive:          input.Active,
	}
	inst.RecomputeMarketCap()
	inst.CreatedAt = time.Now().UTC()
	return inst, nil
}

// normalizeSymbol trims and upper-cases a ticker symbol.
func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// escapeLike escapes LIKE wildcards so the keyword matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// isUniqueConstraintError checks if the error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // SQLite
		strings.Contains(msg, "duplicate key value violates unique constraint") // PostgreSQL
}
