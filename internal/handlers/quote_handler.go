package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/MiaoJiyu/mini-biz-sim/internal/errors"
	"github.com/MiaoJiyu/mini-biz-sim/internal/pagination"
	"github.com/MiaoJiyu/mini-biz-sim/internal/services"
)

const defaultMoversLimit = 10

// QuoteHandler serves instrument quotes and price history.
type QuoteHandler struct {
	instrumentService services.InstrumentServicer
	historyService    services.PriceHistoryServicer
	now               func() time.Time
}

// NewQuoteHandler creates a new QuoteHandler.
func NewQuoteHandler(instrumentService services.InstrumentServicer, historyService services.PriceHistoryServicer) *QuoteHandler {
	return &QuoteHandler{instrumentService: instrumentService, historyService: historyService, now: time.Now}
}

// ListQuotes handles listing quotes for all active instruments.
// @Summary     List quotes
// @Description Current quotes of every active instrument, ordered by symbol
// @Tags        quotes
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} map[string][]services.Quote "Active quotes"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /quotes [get]
func (h *QuoteHandler) ListQuotes(c *gin.Context) {
	instruments, err := h.instrumentService.ListActive(c.Request.Context())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"quotes": services.NewQuotes(instruments)})
}

// SearchQuotes handles keyword search over symbols and names.
// @Summary     Search quotes
// @Description Case-insensitive substring match on symbol or name. An empty keyword lists active instruments.
// @Tags        quotes
// @Produce     json
// @Security    BearerAuth
// @Param       keyword query string false "Symbol or name fragment"
// @Success     200 {object} map[string][]services.Quote "Matching quotes"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /quotes/search [get]
func (h *QuoteHandler) SearchQuotes(c *gin.Context) {
	instruments, err := h.instrumentService.Search(c.Request.Context(), c.Query("keyword"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"quotes": services.NewQuotes(instruments)})
}

// TopMovers handles listing the instruments with the largest moves.
// @Summary     Top movers
// @Description Active instruments ordered by absolute change percent, largest first
// @Tags        quotes
// @Produce     json
// @Security    BearerAuth
// @Param       limit query int false "Number of movers (default 10, max 100)"
// @Success     200 {object} map[string][]services.Quote "Top movers"
// @Failure     400 {object} ErrorResponse "Invalid limit"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /quotes/movers [get]
func (h *QuoteHandler) TopMovers(c *gin.Context) {
	limit := defaultMoversLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	instruments, err := h.instrumentService.TopMovers(c.Request.Context(), limit)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"movers": services.NewQuotes(instruments)})
}

// GetQuote handles getting one instrument's quote.
// @Summary     Get quote
// @Description Current quote of an instrument, active or not
// @Tags        quotes
// @Produce     json
// @Security    BearerAuth
// @Param       symbol path string true "Instrument symbol"
// @Success     200 {object} map[string]services.Quote "Quote"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Instrument not found"
// @Router      /quotes/{symbol} [get]
func (h *QuoteHandler) GetQuote(c *gin.Context) {
	inst, err := h.instrumentService.GetInstrument(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"quote": services.NewQuote(inst)})
}

// GetPriceHistory handles listing archived prices for an instrument.
// @Summary     Price history
// @Description Archived price points, oldest first. Without from/to the window is the last `days` days.
// @Tags        quotes
// @Produce     json
// @Security    BearerAuth
// @Param       symbol    path  string true  "Instrument symbol"
// @Param       days      query int    false "Days back from now (default 30, max 365)"
// @Param       from      query string false "Start (RFC3339 or YYYY-MM-DD)"
// @Param       to        query string false "End (RFC3339 or YYYY-MM-DD)"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.PricePoint] "Paginated price points"
// @Failure     400 {object} ErrorResponse "Invalid range"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Instrument not found"
// @Router      /quotes/{symbol}/history [get]
func (h *QuoteHandler) GetPriceHistory(c *gin.Context) {
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

	result, err := h.historyService.GetPriceHistory(c.Request.Context(), c.Param("symbol"), from, to, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
