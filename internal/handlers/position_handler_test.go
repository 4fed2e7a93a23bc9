package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "github.com/MiaoJiyu/mini-biz-sim/internal/errors"
	"github.com/MiaoJiyu/mini-biz-sim/internal/models"
	"github.com/MiaoJiyu/mini-biz-sim/internal/services"
)

func setupPositionRouter(handler *PositionHandler) *gin.Engine {
	r := gin.New()
	r.GET("/positions", injectUserID("user-1"), handler.ListPositions)
	r.GET("/positions/:symbol", injectUserID("user-1"), handler.GetPosition)
	r.GET("/portfolio/value", injectUserID("user-1"), handler.GetPortfolioValue)
	return r
}

func TestPositionHandler_ListPositions(t *testing.T) {
	t.Run("returns 200 with positions", func(t *testing.T) {
		svc := &mockPositionService{
			listForUserFn: func(_ context.Context, userID string) ([]models.Position, error) {
				return []models.Position{{UserID: userID, Symbol: "ACME", Quantity: 5}}, nil
			},
		}
		r := setupPositionRouter(NewPositionHandler(svc))

		rec := doRequest(r, "GET", "/positions", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		positions := parseJSON(t, rec)["positions"].([]interface{})
		if len(positions) != 1 {
			t.Fatalf("expected 1 position, got %d", len(positions))
		}
		if _, leaked := positions[0].(map[string]interface{})["version"]; leaked {
			t.Error("expected version to be hidden from clients")
		}
	})

	t.Run("returns empty list", func(t *testing.T) {
		r := setupPositionRouter(NewPositionHandler(&mockPositionService{}))

		rec := doRequest(r, "GET", "/positions", "")

		positions, ok := parseJSON(t, rec)["positions"].([]interface{})
		if !ok || len(positions) != 0 {
			t.Errorf("expected empty positions array, got %v", positions)
		}
	})
}

func TestPositionHandler_GetPosition(t *testing.T) {
	t.Run("returns 200", func(t *testing.T) {
		var gotSymbol string
		svc := &mockPositionService{
			getPositionFn: func(_ context.Context, userID, symbol string) (*models.Position, error) {
				gotSymbol = symbol
				return &models.Position{UserID: userID, Symbol: "ACME", Quantity: 3}, nil
			},
		}
		r := setupPositionRouter(NewPositionHandler(svc))

		rec := doRequest(r, "GET", "/positions/acme", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if gotSymbol != "acme" {
			t.Errorf("expected symbol passed through, got %s", gotSymbol)
		}
	})

	t.Run("returns 404 when not held", func(t *testing.T) {
		svc := &mockPositionService{
			getPositionFn: func(_ context.Context, _, _ string) (*models.Position, error) {
				return nil, apperrors.ErrPositionNotFound
			},
		}
		r := setupPositionRouter(NewPositionHandler(svc))

		rec := doRequest(r, "GET", "/positions/ACME", "")

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "POSITION_NOT_FOUND")
	})
}

func TestPositionHandler_GetPortfolioValue(t *testing.T) {
	svc := &mockPositionService{
		totalPortfolioValueFn: func(_ context.Context, userID string) (*services.PortfolioValue, error) {
			return &services.PortfolioValue{
				UserID:        userID,
				TotalValue:    decimal.RequireFromString("550.00"),
				TotalCost:     decimal.RequireFromString("500.00"),
				UnrealizedPnL: decimal.RequireFromString("50.00"),
				Positions:     1,
			}, nil
		},
	}
	r := setupPositionRouter(NewPositionHandler(svc))

	rec := doRequest(r, "GET", "/portfolio/value", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	result := parseJSON(t, rec)
	if result["total_value"] != "550" || result["unrealized_pnl"] != "50" {
		t.Errorf("unexpected portfolio value %v", result)
	}
	if result["user_id"] != "user-1" {
		t.Errorf("expected user-1, got %v", result["user_id"])
	}
}
