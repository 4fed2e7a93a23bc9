package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "github.com/MiaoJiyu/mini-biz-sim/internal/errors"
	"github.com/MiaoJiyu/mini-biz-sim/internal/services"
)

// PipelineHandler exposes operator endpoints guarded by the pipeline API key.
type PipelineHandler struct {
	instrumentService services.InstrumentServicer
	simulationService services.SimulationServicer
	auditService      services.AuditServicer
	issueToken        TokenIssuer
	tokenTTL          time.Duration
	now               func() time.Time
}

// TokenIssuer signs an access token for a user.
type TokenIssuer func(userID string, ttl time.Duration) (string, error)

// NewPipelineHandler creates a new PipelineHandler.
func NewPipelineHandler(
	instrumentService services.InstrumentServicer,
	simulationService services.SimulationServicer,
	auditService services.AuditServicer,
	issueToken TokenIssuer,
	tokenTTL time.Duration,
) *PipelineHandler {
	return &PipelineHandler{
		instrumentService: instrumentService,
		simulationService: simulationService,
		auditService:      auditService,
		issueToken:        issueToken,
		tokenTTL:          tokenTTL,
		now:               time.Now,
	}
}

// CreateInstrumentRequest represents the request payload for listing a new instrument.
type CreateInstrumentRequest struct {
	Symbol            string           `json:"symbol" binding:"required,symbol"`
	Name              string           `json:"name" binding:"required,min=1,max=200"`
	Issuer            string           `json:"issuer" binding:"max=200"`
	Sector            string           `json:"sector" binding:"max=100"`
	Price             *decimal.Decimal `json:"price" binding:"required"`
	VolatilityClass   int              `json:"volatility_class" binding:"required,min=1,max=10"`
	SharesOutstanding int64            `json:"shares_outstanding" binding:"omitempty,min=1"`
	InitialVolume     int64            `json:"initial_volume" binding:"omitempty,min=0"`
	Active            *bool            `json:"active,omitempty"`
}

// SetActiveRequest represents the request payload for toggling trading.
type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// IssueTokenRequest represents the request payload for minting a user token.
type IssueTokenRequest struct {
	UserID string `json:"user_id" binding:"required,min=1,max=64"`
}

// RunRequest optionally pins the time a simulation run applies to. The time
// may lie in the past but not in the future.
type RunRequest struct {
	At *time.Time `json:"at,omitempty"`
}

// CreateInstrument handles listing a new instrument.
// @Summary     Create instrument
// @Description List a new instrument at its initial price (pipeline endpoint)
// @Tags        pipeline
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       request body CreateInstrumentRequest true "Instrument details"
// @Success     201 {object} map[string]models.Instrument "Instrument created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     409 {object} ErrorResponse "Duplicate instrument"
// @Failure     503 {object} ErrorResponse "Pipeline not configured"
// @Router      /pipeline/instruments [post]
func (h *PipelineHandler) CreateInstrument(c *gin.Context) {
	var req CreateInstrumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	inst, err := h.instrumentService.CreateInstrument(c.Request.Context(), services.InstrumentInput{
		Symbol:            req.Symbol,
		Name:              req.Name,
		Issuer:            req.Issuer,
		Sector:            req.Sector,
		Price:             *req.Price,
		VolatilityClass:   req.VolatilityClass,
		SharesOutstanding: req.SharesOutstanding,
		InitialVolume:     req.InitialVolume,
		Active:            active,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log("", "CREATE_INSTRUMENT", "instrument", inst.Symbol, c.ClientIP(),
		map[string]any{"price": inst.CurrentPrice.String(), "is_active": inst.IsActive})

	c.JSON(http.StatusCreated, gin.H{"instrument": inst})
}

// ListInstruments handles listing every instrument for the pipeline.
// @Summary     List all instruments (pipeline)
// @Description Every instrument, active or not, ordered by symbol (pipeline endpoint)
// @Tags        pipeline
// @Produce     json
// @Security    ApiKeyAuth
// @Success     200 {object} map[string][]models.Instrument "All instruments"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     500 {object} ErrorResponse "Server error"
// @Failure     503 {object} ErrorResponse "Pipeline not configured"
// @Router      /pipeline/instruments [get]
func (h *PipelineHandler) ListInstruments(c *gin.Context) {
	instruments, err := h.instrumentService.ListAll(c.Request.Context())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"instruments": instruments})
}

// SetActive handles opening or halting trading in an instrument.
// @Summary     Set instrument active flag
// @Description Inactive instruments stop ticking and reject orders (pipeline endpoint)
// @Tags        pipeline
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       symbol  path string           true "Instrument symbol"
// @Param       request body SetActiveRequest true "Active flag"
// @Success     200 {object} map[string]models.Instrument "Instrument updated"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     404 {object} ErrorResponse "Instrument not found"
// @Router      /pipeline/instruments/{symbol}/active [put]
func (h *PipelineHandler) SetActive(c *gin.Context) {
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	inst, err := h.instrumentService.SetActive(c.Request.Context(), c.Param("symbol"), *req.Active)
	if err != nil {
		respondWithError(c, err)
		return
	}

	action := "DEACTIVATE_INSTRUMENT"
	if inst.IsActive {
		action = "ACTIVATE_INSTRUMENT"
	}
	h.auditService.Log("", action, "instrument", inst.Symbol, c.ClientIP(),
		map[string]any{"is_active": inst.IsActive})

	c.JSON(http.StatusOK, gin.H{"instrument": inst})
}

// RunTick handles triggering a price tick outside the scheduler.
// @Summary     Run price tick
// @Description Advance every active instrument by one tick for the period containing `at` (default now). Replays of a period are skipped.
// @Tags        pipeline
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       request body RunRequest false "Run time"
// @Success     200 {object} services.RunResult "Run summary"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Router      /pipeline/market/tick [post]
func (h *PipelineHandler) RunTick(c *gin.Context) {
	h.run(c, "RUN_TICK", h.simulationService.Tick)
}

// RunDrift handles triggering the macro drift outside the scheduler.
// @Summary     Run macro drift
// @Tags        pipeline
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       request body RunRequest false "Run time"
// @Success     200 {object} services.RunResult "Run summary"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Router      /pipeline/market/drift [post]
func (h *PipelineHandler) RunDrift(c *gin.Context) {
	h.run(c, "RUN_DRIFT", h.simulationService.Drift)
}

// RunSession handles rolling every instrument into a new session.
// @Summary     Open trading session
// @Description Close the current session and open the next one at the last price
// @Tags        pipeline
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       request body RunRequest false "Run time"
// @Success     200 {object} services.RunResult "Run summary"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Router      /pipeline/market/session [post]
func (h *PipelineHandler) RunSession(c *gin.Context) {
	h.run(c, "OPEN_SESSION", h.simulationService.OpenSession)
}

func (h *PipelineHandler) run(c *gin.Context, action string, fn func(context.Context, time.Time) (*services.RunResult, error)) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	now := h.now()
	at := now
	if req.At != nil {
		if req.At.After(now) {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "at must not be in the future"))
			return
		}
		at = *req.At
	}

	result, err := fn(c.Request.Context(), at)
	if err != nil {
		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			err = apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		respondWithError(c, err)
		return
	}

	h.auditService.Log("", action, "market", result.Period.Format(time.RFC3339), c.ClientIP(),
		map[string]any{"advanced": result.Advanced, "skipped": result.Skipped, "errors": len(result.Errors)})

	c.JSON(http.StatusOK, result)
}

// IssueToken handles minting an access token for an upstream user.
// @Summary     Issue access token
// @Description Users live in the upstream system; it calls this to obtain a bearer token for one of them (pipeline endpoint)
// @Tags        pipeline
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       request body IssueTokenRequest true "User"
// @Success     201 {object} map[string]string "Access token"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Router      /pipeline/tokens [post]
func (h *PipelineHandler) IssueToken(c *gin.Context) {
	var req IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	token, err := h.issueToken(req.UserID, h.tokenTTL)
	if err != nil {
		respondWithError(c, apperrors.Wrap(apperrors.ErrInternalServer, err))
		return
	}

	h.auditService.Log("", "ISSUE_TOKEN", "user", req.UserID, c.ClientIP(), nil)

	c.JSON(http.StatusCreated, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int64(h.tokenTTL.Seconds()),
	})
}
