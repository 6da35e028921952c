// Copyright (c) 2025 BVK Chaitanya

package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/bvk/buydips/binance/internal"
	"github.com/bvk/buydips/exchange"
	"github.com/shopspring/decimal"
)

// newFakeExchange starts a local http server answering the time endpoint and
// rejecting every order with the given api error code.
func newFakeExchange(t *testing.T, ctx context.Context, rejectCode int) *Exchange {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/time", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"serverTime":%d}`, time.Now().UnixMilli())
	})
	mux.HandleFunc("/api/v3/order", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, `{"code":%d,"msg":"rejected"}`, rejectCode)
	})
	s := httptest.NewServer(mux)
	t.Cleanup(s.Close)

	u, err := url.Parse(s.URL)
	if err != nil {
		t.Fatal(err)
	}
	opts := &internal.Options{
		RestScheme:   "http",
		RestHostname: u.Host,
	}
	client, err := internal.New(ctx, "test-key", "test-secret", opts)
	if err != nil {
		t.Fatal(err)
	}
	ex := &Exchange{client: client}
	t.Cleanup(func() { ex.Close() })
	return ex
}

func TestMarketBuyErrorMapping(t *testing.T) {
	ctx := context.Background()

	for _, code := range []int{internal.ErrCodeInsufficientBalance, internal.ErrCodeMarginInsufficient} {
		ex := newFakeExchange(t, ctx, code)
		_, err := ex.MarketBuy(ctx, "client-order-1", "BTCUSDT", decimal.NewFromInt(25))
		if err == nil {
			t.Fatalf("code %d: want an error, got nil", code)
		}
		if !errors.Is(err, exchange.ErrInsufficientFunds) {
			t.Errorf("code %d: want ErrInsufficientFunds, got %v", code, err)
		}
	}

	// Other api error codes must not map to the insufficient funds error.
	ex := newFakeExchange(t, ctx, -1013)
	_, err := ex.MarketBuy(ctx, "client-order-2", "BTCUSDT", decimal.NewFromInt(25))
	if err == nil {
		t.Fatalf("want an error, got nil")
	}
	if errors.Is(err, exchange.ErrInsufficientFunds) {
		t.Errorf("code -1013 must not map to ErrInsufficientFunds, got %v", err)
	}
	var apiErr *internal.Error
	if !errors.As(err, &apiErr) || apiErr.Code != -1013 {
		t.Errorf("want the api error code preserved, got %v", err)
	}
}
