package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/MiaoJiyu/mini-biz-sim/internal/keylock"
	"github.com/MiaoJiyu/mini-biz-sim/internal/models"
	"github.com/MiaoJiyu/mini-biz-sim/internal/pagination"
	"github.com/MiaoJiyu/mini-biz-sim/internal/testutil"
)

// recordingPublisher collects confirmations.
type recordingPublisher struct {
	mu      sync.Mutex
	results map[string][]*TradeResult
}

func (p *recordingPublisher) PublishTradeConfirmation(userID string, result *TradeResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.results == nil {
		p.results = make(map[string][]*TradeResult)
	}
	p.results[userID] = append(p.results[userID], result)
}

func (p *recordingPublisher) count(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.results[userID])
}

func marketOrder(symbol string, side models.Side, qty int64, userID string) ExecutionRequest {
	return ExecutionRequest{UserID: userID, Symbol: symbol, Side: side, Quantity: qty, Order: models.MarketOrder{}}
}

func countTrades(t *testing.T, db *gorm.DB, userID string) int64 {
	t.Helper()
	var n int64
	db.Model(&models.TradeRecord{}).Where("user_id = ?", userID).Count(&n)
	return n
}

func TestExecute_BuyThenSellAfterPriceMove(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	pub := &recordingPublisher{}
	svc := NewTradeService(db, keylock.New(), pub)
	positions := NewPositionService(db)
	testutil.CreateTestInstrument(t, db, "ACME", "100.00")
	user := testutil.NewUserID()

	buy, err := svc.Execute(ctx, marketOrder("ACME", models.SideBuy, 10, user))
	testutil.AssertNoError(t, err)
	if buy.Status != ResultSuccess || buy.TradeID == "" {
		t.Fatalf("expected successful buy with trade id, got %+v", buy)
	}
	testutil.AssertDecimal(t, buy.ExecutedPrice, "100", "buy price")
	testutil.AssertDecimal(t, buy.TotalAmount, "1000", "buy total")

	testutil.SetInstrumentPrice(t, db, "ACME", "110.00")

	sell, err := svc.Execute(ctx, marketOrder("acme", models.SideSell, 5, user))
	testutil.AssertNoError(t, err)
	testutil.AssertDecimal(t, sell.ExecutedPrice, "110", "sell price")
	testutil.AssertDecimal(t, sell.TotalAmount, "550", "sell total")

	pos, err := positions.GetPosition(ctx, user, "ACME")
	testutil.AssertNoError(t, err)
	if pos.Quantity != 5 {
		t.Errorf("expected quantity 5, got %d", pos.Quantity)
	}
	testutil.AssertDecimal(t, pos.AveragePrice, "100", "average price")
	testutil.AssertDecimal(t, pos.CurrentValue, "550", "current value")
	testutil.AssertDecimal(t, pos.UnrealizedPnL, "50", "unrealized P&L")

	if n := countTrades(t, db, user); n != 2 {
		t.Errorf("expected 2 trade records, got %d", n)
	}
	if pub.count(user) != 2 {
		t.Errorf("expected 2 confirmations, got %d", pub.count(user))
	}
	if sell.Position == nil || sell.Position.Quantity != 5 {
		t.Errorf("expected confirmation to carry the updated position, got %+v", sell.Position)
	}
}

func TestExecute_Rejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		setup    func(t *testing.T, db *gorm.DB, user string)
		req      func(user string) ExecutionRequest
		wantCode string
	}{
		{
			name:     "sell_without_position",
			req:      func(u string) ExecutionRequest { return marketOrder("ACME", models.SideSell, 1, u) },
			wantCode: "INSUFFICIENT_POSITION",
		},
		{
			name: "sell_more_than_held",
			setup: func(t *testing.T, db *gorm.DB, u string) {
				testutil.CreateTestPosition(t, db, u, "ACME", 3, "90.00")
			},
			req:      func(u string) ExecutionRequest { return marketOrder("ACME", models.SideSell, 4, u) },
			wantCode: "INSUFFICIENT_POSITION",
		},
		{
			name:     "zero_quantity",
			req:      func(u string) ExecutionRequest { return marketOrder("ACME", models.SideBuy, 0, u) },
			wantCode: "INVALID_QUANTITY",
		},
		{
			name:     "negative_quantity",
			req:      func(u string) ExecutionRequest { return marketOrder("ACME", models.SideBuy, -5, u) },
			wantCode: "INVALID_QUANTITY",
		},
		{
			name:     "unknown_symbol",
			req:      func(u string) ExecutionRequest { return marketOrder("NOPE", models.SideBuy, 1, u) },
			wantCode: "INSTRUMENT_NOT_FOUND",
		},
		{
			name: "inactive_instrument",
			setup: func(t *testing.T, db *gorm.DB, _ string) {
				testutil.DeactivateInstrument(t, db, "ACME")
			},
			req:      func(u string) ExecutionRequest { return marketOrder("ACME", models.SideBuy, 1, u) },
			wantCode: "INSTRUMENT_INACTIVE",
		},
		{
			name: "non_positive_limit",
			req: func(u string) ExecutionRequest {
				return ExecutionRequest{UserID: u, Symbol: "ACME", Side: models.SideBuy, Quantity: 1, Order: models.LimitOrder{Price: decimal.Zero}}
			},
			wantCode: "INVALID_LIMIT_PRICE",
		},
		{
			name: "missing_side",
			req: func(u string) ExecutionRequest {
				return ExecutionRequest{UserID: u, Symbol: "ACME", Quantity: 1, Order: models.MarketOrder{}}
			},
			wantCode: "INVALID_INPUT",
		},
		{
			name: "missing_order",
			req: func(u string) ExecutionRequest {
				return ExecutionRequest{UserID: u, Symbol: "ACME", Side: models.SideBuy, Quantity: 1}
			},
			wantCode: "INVALID_INPUT",
		},
		{
			name:     "anonymous",
			req:      func(string) ExecutionRequest { return marketOrder("ACME", models.SideBuy, 1, "") },
			wantCode: "UNAUTHORIZED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testutil.SetupTestDB(t)
			defer testutil.TeardownTestDB(t, db)
			pub := &recordingPublisher{}
			svc := NewTradeService(db, keylock.New(), pub)
			testutil.CreateTestInstrument(t, db, "ACME", "100.00")
			user := testutil.NewUserID()
			if tt.setup != nil {
				tt.setup(t, db, user)
			}

			var before int64
			db.Model(&models.Position{}).Count(&before)

			result, err := svc.Execute(ctx, tt.req(user))
			testutil.AssertAppError(t, err, tt.wantCode)

			if result == nil || result.Status != ResultFailed || result.Message == "" {
				t.Errorf("expected FAILED result with a message, got %+v", result)
			}
			if n := countTrades(t, db, user); n != 0 {
				t.Errorf("expected no trade records, got %d", n)
			}
			var after int64
			db.Model(&models.Position{}).Count(&after)
			if after != before {
				t.Errorf("expected positions unchanged, had %d now %d", before, after)
			}
			if pub.count(user) != 0 {
				t.Error("expected no confirmation for a rejected trade")
			}
		})
	}
}

func TestExecute_OversellLeavesPositionUnchanged(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := NewTradeService(db, keylock.New(), nil)
	positions := NewPositionService(db)
	testutil.CreateTestInstrument(t, db, "ACME", "100.00")
	user := testutil.NewUserID()
	testutil.CreateTestPosition(t, db, user, "ACME", 3, "90.00")

	before, err := positions.TotalPortfolioValue(ctx, user)
	testutil.AssertNoError(t, err)

	_, err = svc.Execute(ctx, marketOrder("ACME", models.SideSell, 4, user))
	testutil.AssertAppError(t, err, "INSUFFICIENT_POSITION")

	pos, err := positions.GetPosition(ctx, user, "ACME")
	testutil.AssertNoError(t, err)
	if pos.Quantity != 3 {
		t.Errorf("expected quantity 3, got %d", pos.Quantity)
	}
	testutil.AssertDecimal(t, pos.AveragePrice, "90", "average price")
	testutil.AssertDecimal(t, pos.CurrentValue, "300", "current value")

	after, err := positions.TotalPortfolioValue(ctx, user)
	testutil.AssertNoError(t, err)
	if !after.TotalValue.Equal(before.TotalValue) {
		t.Errorf("expected portfolio value %s, got %s", before.TotalValue, after.TotalValue)
	}
	testutil.AssertDecimal(t, after.TotalValue, "300", "portfolio value")
}

func TestExecute_LimitOrderUsesLimitPrice(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := NewTradeService(db, keylock.New(), nil)
	testutil.CreateTestInstrument(t, db, "ACME", "100.00")
	user := testutil.NewUserID()

	result, err := svc.Execute(ctx, ExecutionRequest{
		UserID:   user,
		Symbol:   "ACME",
		Side:     models.SideBuy,
		Quantity: 4,
		Order:    models.LimitOrder{Price: decimal.RequireFromString("95.505")},
	})
	testutil.AssertNoError(t, err)

	testutil.AssertDecimal(t, result.ExecutedPrice, "95.51", "executed price")
	testutil.AssertDecimal(t, result.TotalAmount, "382.04", "total amount")
	if result.OrderKind != models.OrderKindLimit {
		t.Errorf("expected LIMIT order kind, got %s", result.OrderKind)
	}

	// valued at the market, not at the fill
	testutil.AssertDecimal(t, result.Position.AveragePrice, "95.51", "average price")
	testutil.AssertDecimal(t, result.Position.CurrentValue, "400", "current value")
	testutil.AssertDecimal(t, result.Position.UnrealizedPnL, "17.96", "unrealized P&L")
}

func TestExecute_SellToZeroKeepsPosition(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := NewTradeService(db, keylock.New(), nil)
	testutil.CreateTestInstrument(t, db, "ACME", "100.00")
	user := testutil.NewUserID()

	_, err := svc.Execute(ctx, marketOrder("ACME", models.SideBuy, 2, user))
	testutil.AssertNoError(t, err)
	_, err = svc.Execute(ctx, marketOrder("ACME", models.SideSell, 2, user))
	testutil.AssertNoError(t, err)

	var pos models.Position
	if err := db.Where("user_id = ? AND symbol = ?", user, "ACME").Take(&pos).Error; err != nil {
		t.Fatalf("expected zeroed position to remain: %v", err)
	}
	if pos.Quantity != 0 {
		t.Errorf("expected quantity 0, got %d", pos.Quantity)
	}
	if pos.Version != 2 {
		t.Errorf("expected version 2 after two trades, got %d", pos.Version)
	}

	// buying back reuses the row
	_, err = svc.Execute(ctx, marketOrder("ACME", models.SideBuy, 1, user))
	testutil.AssertNoError(t, err)
	var rows int64
	db.Model(&models.Position{}).Where("user_id = ?", user).Count(&rows)
	if rows != 1 {
		t.Errorf("expected a single position row, got %d", rows)
	}
}

func TestExecute_ConcurrentBuysAreSerialized(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := NewTradeService(db, keylock.New(), nil)
	testutil.CreateTestInstrument(t, db, "ACME", "100.00")
	user := testutil.NewUserID()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Execute(ctx, marketOrder("ACME", models.SideBuy, 1, user)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent buy failed: %v", err)
	}

	var pos models.Position
	db.Where("user_id = ? AND symbol = ?", user, "ACME").Take(&pos)
	if pos.Quantity != n {
		t.Errorf("expected quantity %d, got %d", n, pos.Quantity)
	}
	if n := countTrades(t, db, user); n != 20 {
		t.Errorf("expected 20 trade records, got %d", n)
	}
}

func TestSavePosition_StaleVersion(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	user := testutil.NewUserID()
	stored := testutil.CreateTestPosition(t, db, user, "ACME", 5, "10.00")

	stale := *stored
	db.Model(&models.Position{}).Where("id = ?", stored.ID).Update("version", 7)

	stale.Quantity = 6
	err := savePosition(db, &stale, true, time.Now().UTC())
	testutil.AssertAppError(t, err, "CONCURRENT_MODIFICATION")

	dup := models.Position{UserID: user, Symbol: "ACME", Quantity: 1}
	err = savePosition(db, &dup, false, time.Now().UTC())
	testutil.AssertAppError(t, err, "CONCURRENT_MODIFICATION")
}

func TestGetTradeHistory(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	testutil.CreateTestInstrument(t, db, "ACME", "100.00")
	user := testutil.NewUserID()
	other := testutil.NewUserID()

	clock := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := NewTradeService(db, keylock.New(), nil).(*tradeService)
	svc.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		_, err := svc.Execute(ctx, marketOrder("ACME", models.SideBuy, int64(i+1), user))
		testutil.AssertNoError(t, err)
		clock = clock.Add(time.Hour)
	}
	_, err := svc.Execute(ctx, marketOrder("ACME", models.SideBuy, 9, other))
	testutil.AssertNoError(t, err)

	t.Run("newest_first", func(t *testing.T) {
		page, err := svc.GetTradeHistory(ctx, user, clock.Add(-24*time.Hour), clock, pagination.PageRequest{})
		testutil.AssertNoError(t, err)
		if page.TotalItems != 3 {
			t.Fatalf("expected 3 trades, got %d", page.TotalItems)
		}
		if page.Data[0].Quantity != 3 || page.Data[2].Quantity != 1 {
			t.Errorf("expected newest first, got quantities %d..%d", page.Data[0].Quantity, page.Data[2].Quantity)
		}
	})

	t.Run("range", func(t *testing.T) {
		from := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
		page, err := svc.GetTradeHistory(ctx, user, from, clock, pagination.PageRequest{})
		testutil.AssertNoError(t, err)
		if page.TotalItems != 2 {
			t.Errorf("expected 2 trades after %s, got %d", from, page.TotalItems)
		}
	})

	t.Run("inverted_range", func(t *testing.T) {
		_, err := svc.GetTradeHistory(ctx, user, clock, clock.Add(-time.Hour), pagination.PageRequest{})
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})
}
