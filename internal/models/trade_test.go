package models

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseSide(t *testing.T) {
	tests := []struct {
		in      string
		want    Side
		wantErr bool
	}{
		{in: "BUY", want: SideBuy},
		{in: "sell", want: SideSell},
		{in: " Buy ", want: SideBuy},
		{in: "short", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSide(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSide(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSide(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewOrderSpec(t *testing.T) {
	price := decimal.RequireFromString("12.34")

	t.Run("market_by_default", func(t *testing.T) {
		order, err := NewOrderSpec("", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := order.(MarketOrder); !ok {
			t.Errorf("expected MarketOrder, got %T", order)
		}
	})

	t.Run("limit_carries_price", func(t *testing.T) {
		order, err := NewOrderSpec("limit", &price)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		limit, ok := order.(LimitOrder)
		if !ok {
			t.Fatalf("expected LimitOrder, got %T", order)
		}
		if !limit.Price.Equal(price) {
			t.Errorf("expected price %s, got %s", price, limit.Price)
		}
		if order.Kind() != OrderKindLimit {
			t.Errorf("expected kind LIMIT, got %s", order.Kind())
		}
	})

	t.Run("limit_without_price", func(t *testing.T) {
		if _, err := NewOrderSpec("LIMIT", nil); !errors.Is(err, ErrMissingLimitPrice) {
			t.Errorf("expected ErrMissingLimitPrice, got %v", err)
		}
	})

	t.Run("unknown_kind", func(t *testing.T) {
		if _, err := NewOrderSpec("stop", &price); !errors.Is(err, ErrUnknownOrderKind) {
			t.Errorf("expected ErrUnknownOrderKind, got %v", err)
		}
	})
}

func TestInstrument_ChangePercent(t *testing.T) {
	inst := &Instrument{
		CurrentPrice:  decimal.RequireFromString("110"),
		PreviousClose: decimal.RequireFromString("100"),
	}
	if !inst.Change().Equal(decimal.RequireFromString("10")) {
		t.Errorf("expected change 10, got %s", inst.Change())
	}
	if !inst.ChangePercent().Equal(decimal.RequireFromString("10")) {
		t.Errorf("expected change percent 10, got %s", inst.ChangePercent())
	}

	inst.PreviousClose = decimal.Zero
	if !inst.ChangePercent().IsZero() {
		t.Errorf("expected zero change percent without previous close, got %s", inst.ChangePercent())
	}
}
