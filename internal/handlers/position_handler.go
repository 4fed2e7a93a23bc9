package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MiaoJiyu/mini-biz-sim/internal/services"
)

// PositionHandler serves the authenticated user's holdings.
type PositionHandler struct {
	positionService services.PositionServicer
}

// NewPositionHandler creates a new PositionHandler.
func NewPositionHandler(positionService services.PositionServicer) *PositionHandler {
	return &PositionHandler{positionService: positionService}
}

// ListPositions handles listing open positions.
// @Summary     List positions
// @Description Positions with a non-zero quantity, valued at current prices
// @Tags        positions
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} map[string][]models.Position "Open positions"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /positions [get]
func (h *PositionHandler) ListPositions(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	positions, err := h.positionService.ListForUser(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

// GetPosition handles getting the position in one instrument.
// @Summary     Get position
// @Tags        positions
// @Produce     json
// @Security    BearerAuth
// @Param       symbol path string true "Instrument symbol"
// @Success     200 {object} map[string]models.Position "Position"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "No position held"
// @Router      /positions/{symbol} [get]
func (h *PositionHandler) GetPosition(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	position, err := h.positionService.GetPosition(c.Request.Context(), userID, c.Param("symbol"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"position": position})
}

// GetPortfolioValue handles totalling the user's open positions.
// @Summary     Portfolio value
// @Description Sum of current values, cost basis and unrealized P&L across open positions
// @Tags        positions
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} services.PortfolioValue "Portfolio value"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /portfolio/value [get]
func (h *PositionHandler) GetPortfolioValue(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	value, err := h.positionService.TotalPortfolioValue(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, value)
}
