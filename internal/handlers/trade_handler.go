package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "github.com/MiaoJiyu/mini-biz-sim/internal/errors"
	"github.com/MiaoJiyu/mini-biz-sim/internal/models"
	"github.com/MiaoJiyu/mini-biz-sim/internal/pagination"
	"github.com/MiaoJiyu/mini-biz-sim/internal/services"
)

// TradeHandler handles order execution and trade history.
type TradeHandler struct {
	tradeService services.TradeServicer
	now          func() time.Time
}

// NewTradeHandler creates a new TradeHandler.
func NewTradeHandler(tradeService services.TradeServicer) *TradeHandler {
	return &TradeHandler{tradeService: tradeService, now: time.Now}
}

// ExecuteTradeRequest represents the request payload for placing an order.
// Quantity is validated by the execution engine so a rejected order still
// gets a FAILED trade result.
type ExecuteTradeRequest struct {
	Symbol     string           `json:"symbol" binding:"required,symbol"`
	Side       string           `json:"side" binding:"required,trade_side"`
	Quantity   int64            `json:"quantity"`
	OrderKind  string           `json:"order_kind" binding:"omitempty,order_kind"`
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty"`
}

// TradeResponse wraps the outcome of an execution attempt. Error is set when
// Result.Status is FAILED.
type TradeResponse struct {
	Result *services.TradeResult `json:"result"`
	Error  *ErrorDetail          `json:"error,omitempty"`
}

// ExecuteTrade handles placing a market or limit order.
// @Summary     Execute trade
// @Description Buy or sell an instrument for the authenticated user. Market orders fill at the current price, limit orders at the given price.
// @Tags        trades
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body ExecuteTradeRequest true "Order"
// @Success     201 {object} TradeResponse "Order filled"
// @Failure     400 {object} TradeResponse "Order rejected"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} TradeResponse "Instrument not found"
// @Failure     409 {object} TradeResponse "Concurrent modification"
// @Router      /trades [post]
func (h *TradeHandler) ExecuteTrade(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req ExecuteTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	side, err := models.ParseSide(req.Side)
	if err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	order, err := newOrder(req.OrderKind, req.LimitPrice)
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.tradeService.Execute(c.Request.Context(), services.ExecutionRequest{
		UserID:   userID,
		Symbol:   req.Symbol,
		Side:     side,
		Quantity: req.Quantity,
		Order:    order,
	})
	if err != nil {
		var appErr *apperrors.AppError
		if result == nil || !errors.As(err, &appErr) {
			respondWithError(c, err)
			return
		}
		c.JSON(appErr.StatusCode, TradeResponse{
			Result: result,
			Error:  &ErrorDetail{Code: appErr.Code, Message: appErr.Message},
		})
		return
	}

	c.JSON(http.StatusCreated, TradeResponse{Result: result})
}

// ListTrades handles listing the authenticated user's executed trades.
// @Summary     Trade history
// @Description Executed trades, newest first. Without from/to the window is the last `days` days.
// @Tags        trades
// @Produce     json
// @Security    BearerAuth
// @Param       days      query int    false "Days back from now (default 30, max 365)"
// @Param       from      query string false "Start (RFC3339 or YYYY-MM-DD)"
// @Param       to        query string false "End (RFC3339 or YYYY-MM-DD)"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.TradeRecord] "Paginated trades"
// @Failure     400 {object} ErrorResponse "Invalid range"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /trades [get]
func (h *TradeHandler) ListTrades(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	from, to, err := parseRange(c, h.now())
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.tradeService.GetTradeHistory(c.Request.Context(), userID, from, to, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// newOrder builds the order from the request. A limit order without a price
// is a pricing error; an unknown kind is plain bad input.
func newOrder(kind string, limitPrice *decimal.Decimal) (models.OrderSpec, error) {
	order, err := models.NewOrderSpec(kind, limitPrice)
	switch {
	case err == nil:
		return order, nil
	case errors.Is(err, models.ErrMissingLimitPrice):
		return nil, apperrors.WithMessage(apperrors.ErrInvalidLimitPrice, err.Error())
	default:
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error())
	}
}
