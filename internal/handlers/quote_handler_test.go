package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "github.com/MiaoJiyu/mini-biz-sim/internal/errors"
	"github.com/MiaoJiyu/mini-biz-sim/internal/models"
	"github.com/MiaoJiyu/mini-biz-sim/internal/pagination"
)

func setupQuoteRouter(handler *QuoteHandler) *gin.Engine {
	r := gin.New()
	r.GET("/quotes", handler.ListQuotes)
	r.GET("/quotes/search", handler.SearchQuotes)
	r.GET("/quotes/movers", handler.TopMovers)
	r.GET("/quotes/:symbol", handler.GetQuote)
	r.GET("/quotes/:symbol/history", handler.GetPriceHistory)
	return r
}

func testInstrument(symbol, price, previousClose string) models.Instrument {
	return models.Instrument{
		Symbol:        symbol,
		Name:          symbol + " Corp",
		CurrentPrice:  decimal.RequireFromString(price),
		PreviousClose: decimal.RequireFromString(previousClose),
		IsActive:      true,
	}
}

func TestQuoteHandler_ListQuotes(t *testing.T) {
	t.Run("returns 200 with change fields", func(t *testing.T) {
		svc := &mockInstrumentService{
			listActiveFn: func(_ context.Context) ([]models.Instrument, error) {
				return []models.Instrument{testInstrument("ACME", "110.00", "100.00")}, nil
			},
		}
		r := setupQuoteRouter(NewQuoteHandler(svc, &mockPriceHistoryService{}))

		rec := doRequest(r, "GET", "/quotes", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		quotes := parseJSON(t, rec)["quotes"].([]interface{})
		if len(quotes) != 1 {
			t.Fatalf("expected 1 quote, got %d", len(quotes))
		}
		q := quotes[0].(map[string]interface{})
		if q["change"] != "10" || q["change_percent"] != "10" {
			t.Errorf("expected change 10 and 10%%, got %v and %v", q["change"], q["change_percent"])
		}
	})

	t.Run("returns 500 on service error", func(t *testing.T) {
		svc := &mockInstrumentService{
			listActiveFn: func(_ context.Context) ([]models.Instrument, error) {
				return nil, apperrors.ErrInternalServer
			},
		}
		r := setupQuoteRouter(NewQuoteHandler(svc, &mockPriceHistoryService{}))

		rec := doRequest(r, "GET", "/quotes", "")

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INTERNAL_ERROR")
	})
}

func TestQuoteHandler_SearchQuotes(t *testing.T) {
	var gotKeyword string
	svc := &mockInstrumentService{
		searchFn: func(_ context.Context, keyword string) ([]models.Instrument, error) {
			gotKeyword = keyword
			return []models.Instrument{testInstrument("BANK", "9.00", "9.00")}, nil
		},
	}
	r := setupQuoteRouter(NewQuoteHandler(svc, &mockPriceHistoryService{}))

	rec := doRequest(r, "GET", "/quotes/search?keyword=ban", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotKeyword != "ban" {
		t.Errorf("expected keyword ban, got %q", gotKeyword)
	}
	if len(parseJSON(t, rec)["quotes"].([]interface{})) != 1 {
		t.Error("expected 1 quote")
	}
}

func TestQuoteHandler_TopMovers(t *testing.T) {
	t.Run("defaults to 10", func(t *testing.T) {
		var gotN int
		svc := &mockInstrumentService{
			topMoversFn: func(_ context.Context, n int) ([]models.Instrument, error) {
				gotN = n
				return nil, nil
			},
		}
		r := setupQuoteRouter(NewQuoteHandler(svc, &mockPriceHistoryService{}))

		rec := doRequest(r, "GET", "/quotes/movers", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if gotN != 10 {
			t.Errorf("expected default limit 10, got %d", gotN)
		}
		if movers, ok := parseJSON(t, rec)["movers"].([]interface{}); !ok || len(movers) != 0 {
			t.Errorf("expected an empty movers list, got %v", movers)
		}
	})

	t.Run("passes limit", func(t *testing.T) {
		var gotN int
		svc := &mockInstrumentService{
			topMoversFn: func(_ context.Context, n int) ([]models.Instrument, error) {
				gotN = n
				return nil, nil
			},
		}
		r := setupQuoteRouter(NewQuoteHandler(svc, &mockPriceHistoryService{}))

		doRequest(r, "GET", "/quotes/movers?limit=3", "")

		if gotN != 3 {
			t.Errorf("expected limit 3, got %d", gotN)
		}
	})

	t.Run("returns 400 on invalid limit", func(t *testing.T) {
		r := setupQuoteRouter(NewQuoteHandler(&mockInstrumentService{}, &mockPriceHistoryService{}))

		rec := doRequest(r, "GET", "/quotes/movers?limit=-1", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})
}

func TestQuoteHandler_GetQuote(t *testing.T) {
	t.Run("returns 200", func(t *testing.T) {
		svc := &mockInstrumentService{
			getInstrumentFn: func(_ context.Context, symbol string) (*models.Instrument, error) {
				inst := testInstrument(symbol, "50.00", "40.00")
				return &inst, nil
			},
		}
		r := setupQuoteRouter(NewQuoteHandler(svc, &mockPriceHistoryService{}))

		rec := doRequest(r, "GET", "/quotes/ACME", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		quote := parseJSON(t, rec)["quote"].(map[string]interface{})
		if quote["symbol"] != "ACME" || quote["change_percent"] != "25" {
			t.Errorf("unexpected quote %v", quote)
		}
	})

	t.Run("returns 404 for unknown symbol", func(t *testing.T) {
		svc := &mockInstrumentService{
			getInstrumentFn: func(_ context.Context, _ string) (*models.Instrument, error) {
				return nil, apperrors.ErrInstrumentNotFound
			},
		}
		r := setupQuoteRouter(NewQuoteHandler(svc, &mockPriceHistoryService{}))

		rec := doRequest(r, "GET", "/quotes/NOPE", "")

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INSTRUMENT_NOT_FOUND")
	})
}

func TestQuoteHandler_GetPriceHistory(t *testing.T) {
	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)

	t.Run("uses days window and pagination", func(t *testing.T) {
		var gotFrom, gotTo time.Time
		var gotPage pagination.PageRequest
		history := &mockPriceHistoryService{
			getPriceHistoryFn: func(_ context.Context, symbol string, from, to time.Time, page pagination.PageRequest) (*pagination.PageResponse[models.PricePoint], error) {
				gotFrom, gotTo, gotPage = from, to, page
				resp := pagination.NewPageResponse([]models.PricePoint{{Symbol: symbol, Price: decimal.NewFromInt(10)}}, 2, 5, 6)
				return &resp, nil
			},
		}
		handler := NewQuoteHandler(&mockInstrumentService{}, history)
		handler.now = func() time.Time { return now }
		r := setupQuoteRouter(handler)

		rec := doRequest(r, "GET", "/quotes/ACME/history?days=7&page=2&page_size=5", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if !gotFrom.Equal(now.AddDate(0, 0, -7)) || !gotTo.Equal(now) {
			t.Errorf("unexpected window %s to %s", gotFrom, gotTo)
		}
		if gotPage.Page != 2 || gotPage.PageSize != 5 {
			t.Errorf("unexpected page request %+v", gotPage)
		}
		result := parseJSON(t, rec)
		if result["total_items"].(float64) != 6 {
			t.Errorf("expected total_items 6, got %v", result["total_items"])
		}
	})

	t.Run("returns 400 on invalid days", func(t *testing.T) {
		r := setupQuoteRouter(NewQuoteHandler(&mockInstrumentService{}, &mockPriceHistoryService{}))

		rec := doRequest(r, "GET", "/quotes/ACME/history?days=1000", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})

	t.Run("returns 400 on oversized page", func(t *testing.T) {
		r := setupQuoteRouter(NewQuoteHandler(&mockInstrumentService{}, &mockPriceHistoryService{}))

		rec := doRequest(r, "GET", "/quotes/ACME/history?page_size=500", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}
