package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/MiaoJiyu/mini-biz-sim/internal/errors"
	"github.com/MiaoJiyu/mini-biz-sim/internal/keylock"
	"github.com/MiaoJiyu/mini-biz-sim/internal/logger"
	"github.com/MiaoJiyu/mini-biz-sim/internal/market"
	"github.com/MiaoJiyu/mini-biz-sim/internal/models"
)

// Simulation job names, also used as cursor keys.
const (
	JobTick    = "tick"
	JobDrift   = "drift"
	JobSession = "session"
)

// SimulationConfig tunes the simulator. Zero fields take defaults.
type SimulationConfig struct {
	TickInterval    time.Duration
	DriftInterval   time.Duration
	SessionInterval time.Duration
	// Concurrency bounds how many instruments are stepped at once.
	Concurrency int
	Tick        market.Stepper
	Drift       market.Stepper
	Rand        market.Rand
	// Now is the clock run times are checked against.
	Now func() time.Time
}

func (c SimulationConfig) withDefaults() SimulationConfig {
	if c.TickInterval <= 0 {
		c.TickInterval = 5 * time.Second
	}
	if c.DriftInterval <= 0 {
		c.DriftInterval = time.Hour
	}
	if c.SessionInterval <= 0 {
		c.SessionInterval = 24 * time.Hour
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.Tick == nil {
		c.Tick = market.RandomWalk{}
	}
	if c.Drift == nil {
		c.Drift = market.MacroDrift{AnnualGrowth: 0.07, Period: c.DriftInterval}
	}
	if c.Rand == nil {
		c.Rand = market.DefaultRand()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// stepFunc mutates an instrument for one period and returns the price points
// that record the change.
type stepFunc func(inst *models.Instrument, at time.Time) []models.PricePoint

// simulationService moves instrument prices.
type simulationService struct {
	db      *gorm.DB
	history PriceHistoryServicer
	locks   *keylock.Locker
	cfg     SimulationConfig
	log     *zap.SugaredLogger
}

// NewSimulationService creates a new SimulationServicer.
func NewSimulationService(db *gorm.DB, history PriceHistoryServicer, locks *keylock.Locker, cfg SimulationConfig) SimulationServicer {
	if locks == nil {
		locks = keylock.New()
	}
	return &simulationService{
		db:      db,
		history: history,
		locks:   locks,
		cfg:     cfg.withDefaults(),
		log:     logger.Named("simulation"),
	}
}

// Tick applies one random-walk step to every active instrument.
func (s *simulationService) Tick(ctx context.Context, at time.Time) (*RunResult, error) {
	return s.run(ctx, JobTick, s.cfg.Tick.Name(), s.cfg.TickInterval, at, s.stepWith(s.cfg.Tick))
}

// Drift applies the macro trend to every active instrument.
func (s *simulationService) Drift(ctx context.Context, at time.Time) (*RunResult, error) {
	return s.run(ctx, JobDrift, s.cfg.Drift.Name(), s.cfg.DriftInterval, at, s.stepWith(s.cfg.Drift))
}

// OpenSession closes the running session of every active instrument and opens
// the next one at the current price.
func (s *simulationService) OpenSession(ctx context.Context, at time.Time) (*RunResult, error) {
	return s.run(ctx, JobSession, "rollover", s.cfg.SessionInterval, at, rollSession)
}

func (s *simulationService) stepWith(stepper market.Stepper) stepFunc {
	return func(inst *models.Instrument, at time.Time) []models.PricePoint {
		next := stepper.Step(inst.CurrentPrice, inst.VolatilityClass, s.cfg.Rand)
		market.ApplyPrice(inst, next)
		return []models.PricePoint{{
			Symbol:     inst.Symbol,
			Price:      inst.CurrentPrice,
			Volume:     inst.Volume,
			Kind:       models.PricePointTrade,
			RecordedAt: at,
		}}
	}
}

func rollSession(inst *models.Instrument, at time.Time) []models.PricePoint {
	closing := models.PricePoint{
		Symbol:     inst.Symbol,
		Price:      inst.CurrentPrice,
		Volume:     inst.Volume,
		Kind:       models.PricePointClose,
		RecordedAt: at,
	}
	market.OpenSession(inst)
	opening := models.PricePoint{
		Symbol:     inst.Symbol,
		Price:      inst.OpenPrice,
		Volume:     inst.Volume,
		Kind:       models.PricePointOpen,
		RecordedAt: at,
	}
	return []models.PricePoint{closing, opening}
}

// run steps every active instrument in its own transaction. A failing
// instrument is reported in the result and does not stop the others.
// Periods that have not started yet are refused: the cursor would record
// them and hold back every regular run until the clock caught up.
func (s *simulationService) run(ctx context.Context, job, model string, interval time.Duration, at time.Time, step stepFunc) (*RunResult, error) {
	start := time.Now()
	at = at.UTC()
	period := at.Truncate(interval)
	if period.After(s.cfg.Now().UTC()) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "run period lies in the future")
	}
	result := &RunResult{Job: job, Model: model, Period: period}

	var symbols []string
	if err := s.db.WithContext(ctx).
		Model(&models.Instrument{}).
		Where("is_active = ?", true).
		Order("symbol ASC").
		Pluck("symbol", &symbols).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	result.Instruments = len(symbols)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.cfg.Concurrency)
	for _, symbol := range symbols {
		g.Go(func() error {
			applied, err := s.stepInstrument(ctx, job, symbol, period, at, step)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Errors = append(result.Errors, InstrumentError{Symbol: symbol, Error: err.Error()})
			case applied:
				result.Advanced++
			default:
				result.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.Errors, func(i, j int) bool {
		return result.Errors[i].Symbol < result.Errors[j].Symbol
	})
	result.Duration = time.Since(start)

	for _, e := range result.Errors {
		s.log.Warnw("instrument step failed", "job", job, "model", model, "symbol", e.Symbol, "error", e.Error)
	}
	s.log.Debugw("simulation run finished",
		"job", job,
		"model", model,
		"period", period,
		"instruments", result.Instruments,
		"advanced", result.Advanced,
		"skipped", result.Skipped,
		"failed", len(result.Errors),
		"duration_ms", result.Duration.Milliseconds(),
	)

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// stepInstrument applies step to one instrument unless its cursor shows the
// period was already applied. It reports whether anything changed.
func (s *simulationService) stepInstrument(
	ctx context.Context,
	job, symbol string,
	period, at time.Time,
	step stepFunc,
) (bool, error) {
	unlock := s.locks.Lock(keylock.Key("instrument", symbol))
	defer unlock()

	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inst models.Instrument
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("symbol = ? AND is_active = ?", symbol, true).
			Take(&inst).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Deactivated since the run started.
				return nil
			}
			return err
		}

		var cursor models.SimulationCursor
		err := tx.Where("job = ? AND symbol = ?", job, symbol).Take(&cursor).Error
		switch {
		case err == nil:
			if !cursor.Period.Before(period) {
				return nil
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		points := step(&inst, at)
		if err := tx.Save(&inst).Error; err != nil {
			return err
		}
		if err := s.history.Append(tx, points...); err != nil {
			return err
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job"}, {Name: "symbol"}},
			DoUpdates: clause.AssignmentColumns([]string{"period", "updated_at"}),
		}).Create(&models.SimulationCursor{Job: job, Symbol: symbol, Period: period}).Error; err != nil {
			return err
		}

		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}
