package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/MiaoJiyu/mini-biz-sim/internal/models"
	"github.com/MiaoJiyu/mini-biz-sim/internal/pagination"
)

// InstrumentInput describes an instrument to register.
type InstrumentInput struct {
	Symbol            string
	Name              string
	Issuer            string
	Sector            string
	Price             decimal.Decimal
	VolatilityClass   int
	SharesOutstanding int64
	InitialVolume     int64
	Active            bool
}

// InstrumentServicer is the instrument registry. Price fields are never
// written here; only the simulation service moves prices.
type InstrumentServicer interface {
	GetInstrument(ctx context.Context, symbol string) (*models.Instrument, error)
	ListActive(ctx context.Context) ([]models.Instrument, error)
	ListAll(ctx context.Context) ([]models.Instrument, error)
	Search(ctx context.Context, keyword string) ([]models.Instrument, error)
	TopMovers(ctx context.Context, n int) ([]models.Instrument, error)
	CreateInstrument(ctx context.Context, input InstrumentInput) (*models.Instrument, error)
	SetActive(ctx context.Context, symbol string, active bool) (*models.Instrument, error)
	SeedInstruments(ctx context.Context, inputs []InstrumentInput) (int, error)
}

// PriceHistoryServicer is the append-only price archive.
type PriceHistoryServicer interface {
	Append(tx *gorm.DB, points ...models.PricePoint) error
	GetPriceHistory(ctx context.Context, symbol string, from, to time.Time, page pagination.PageRequest) (*pagination.PageResponse[models.PricePoint], error)
}

// InstrumentError records why one instrument was left out of a run.
type InstrumentError struct {
	Symbol string `json:"symbol"`
	Error  string `json:"error"`
}

// RunResult summarizes one simulation run across all active instruments.
type RunResult struct {
	Job         string            `json:"job"`
	Model       string            `json:"model"`
	Period      time.Time         `json:"period"`
	Instruments int               `json:"instruments"`
	Advanced    int               `json:"advanced"`
	Skipped     int               `json:"skipped"`
	Errors      []InstrumentError `json:"errors,omitempty"`
	Duration    time.Duration     `json:"duration_ns"`
}

// SimulationServicer advances market state. Each method applies at most once
// per instrument for the period containing at.
type SimulationServicer interface {
	Tick(ctx context.Context, at time.Time) (*RunResult, error)
	Drift(ctx context.Context, at time.Time) (*RunResult, error)
	OpenSession(ctx context.Context, at time.Time) (*RunResult, error)
}

// ExecutionRequest is an order from an already authenticated user.
type ExecutionRequest struct {
	UserID   string
	Symbol   string
	Side     models.Side
	Quantity int64
	Order    models.OrderSpec
}

// ResultStatus is the outcome reported to the caller of Execute.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "SUCCESS"
	ResultFailed  ResultStatus = "FAILED"
)

// TradeResult is returned for every execution attempt, successful or not.
type TradeResult struct {
	TradeID       string           `json:"trade_id,omitempty"`
	Symbol        string           `json:"symbol"`
	Side          models.Side      `json:"side"`
	OrderKind     models.OrderKind `json:"order_kind,omitempty"`
	Quantity      int64            `json:"quantity"`
	ExecutedPrice decimal.Decimal  `json:"executed_price"`
	TotalAmount   decimal.Decimal  `json:"total_amount"`
	Status        ResultStatus     `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Message       string           `json:"message"`
	Position      *models.Position `json:"position,omitempty"`
}

// TradeServicer is the order execution engine.
type TradeServicer interface {
	Execute(ctx context.Context, req ExecutionRequest) (*TradeResult, error)
	GetTradeHistory(ctx context.Context, userID string, from, to time.Time, page pagination.PageRequest) (*pagination.PageResponse[models.TradeRecord], error)
}

// ConfirmationPublisher delivers a trade confirmation to one user. It must
// not block the caller.
type ConfirmationPublisher interface {
	PublishTradeConfirmation(userID string, result *TradeResult)
}

// PortfolioValue aggregates a user's open positions.
type PortfolioValue struct {
	UserID        string          `json:"user_id"`
	TotalValue    decimal.Decimal `json:"total_value"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	Positions     int             `json:"positions"`
	AsOf          time.Time       `json:"as_of"`
}

// PositionServicer is the read side of the position ledger. Positions are
// written only by TradeServicer.Execute.
type PositionServicer interface {
	GetPosition(ctx context.Context, userID, symbol string) (*models.Position, error)
	ListForUser(ctx context.Context, userID string) ([]models.Position, error)
	TotalPortfolioValue(ctx context.Context, userID string) (*PortfolioValue, error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(actor, action, resourceType, resourceID, ipAddress string, changes map[string]any)
}
