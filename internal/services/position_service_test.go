package services

import (
	"context"
	"testing"

	"github.com/MiaoJiyu/mini-biz-sim/internal/testutil"
)

func TestGetPosition(t *testing.T) {
	ctx := context.Background()

	t.Run("revalued_at_market", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewPositionService(db)
		testutil.CreateTestInstrument(t, db, "ACME", "120.00")
		user := testutil.NewUserID()
		testutil.CreateTestPosition(t, db, user, "ACME", 10, "100.00")

		pos, err := svc.GetPosition(ctx, user, "acme")
		testutil.AssertNoError(t, err)
		testutil.AssertDecimal(t, pos.CurrentValue, "1200", "current value")
		testutil.AssertDecimal(t, pos.UnrealizedPnL, "200", "unrealized P&L")
	})

	t.Run("not_found", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewPositionService(db)

		_, err := svc.GetPosition(ctx, testutil.NewUserID(), "ACME")
		testutil.AssertAppError(t, err, "POSITION_NOT_FOUND")
	})

	t.Run("other_users_position_not_visible", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewPositionService(db)
		testutil.CreateTestInstrument(t, db, "ACME", "100.00")
		testutil.CreateTestPosition(t, db, testutil.NewUserID(), "ACME", 1, "100.00")

		_, err := svc.GetPosition(ctx, testutil.NewUserID(), "ACME")
		testutil.AssertAppError(t, err, "POSITION_NOT_FOUND")
	})
}

func TestListForUser(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := NewPositionService(db)

	testutil.CreateTestInstrument(t, db, "BBB", "20.00")
	testutil.CreateTestInstrument(t, db, "AAA", "10.00")
	testutil.CreateTestInstrument(t, db, "CCC", "30.00")
	user := testutil.NewUserID()
	testutil.CreateTestPosition(t, db, user, "BBB", 2, "25.00")
	testutil.CreateTestPosition(t, db, user, "AAA", 5, "8.00")
	testutil.CreateTestPosition(t, db, user, "CCC", 0, "30.00")
	testutil.CreateTestPosition(t, db, testutil.NewUserID(), "AAA", 100, "1.00")

	positions, err := svc.ListForUser(ctx, user)
	testutil.AssertNoError(t, err)

	if len(positions) != 2 {
		t.Fatalf("expected 2 open positions, got %d", len(positions))
	}
	if positions[0].Symbol != "AAA" || positions[1].Symbol != "BBB" {
		t.Errorf("expected AAA, BBB in order, got %s, %s", positions[0].Symbol, positions[1].Symbol)
	}
	testutil.AssertDecimal(t, positions[0].CurrentValue, "50", "AAA value")
	testutil.AssertDecimal(t, positions[1].UnrealizedPnL, "-10", "BBB P&L")

	empty, err := svc.ListForUser(ctx, testutil.NewUserID())
	testutil.AssertNoError(t, err)
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected an empty non-nil list, got %v", empty)
	}
}

func TestTotalPortfolioValue(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := NewPositionService(db)

	testutil.CreateTestInstrument(t, db, "AAA", "10.00")
	testutil.CreateTestInstrument(t, db, "BBB", "20.00")
	user := testutil.NewUserID()
	testutil.CreateTestPosition(t, db, user, "AAA", 5, "8.00")
	testutil.CreateTestPosition(t, db, user, "BBB", 2, "25.00")

	value, err := svc.TotalPortfolioValue(ctx, user)
	testutil.AssertNoError(t, err)

	positions, err := svc.ListForUser(ctx, user)
	testutil.AssertNoError(t, err)
	sum := positions[0].CurrentValue.Add(positions[1].CurrentValue)
	if !value.TotalValue.Equal(sum) {
		t.Errorf("expected total %s to equal sum of positions %s", value.TotalValue, sum)
	}
	testutil.AssertDecimal(t, value.TotalValue, "90", "total value")
	testutil.AssertDecimal(t, value.TotalCost, "90", "total cost")
	testutil.AssertDecimal(t, value.UnrealizedPnL, "0", "unrealized P&L")
	if value.Positions != 2 {
		t.Errorf("expected 2 positions, got %d", value.Positions)
	}

	empty, err := svc.TotalPortfolioValue(ctx, testutil.NewUserID())
	testutil.AssertNoError(t, err)
	if !empty.TotalValue.IsZero() {
		t.Errorf("expected zero for a user without positions, got %s", empty.TotalValue)
	}
}
