// Copyright (c) 2025 BVK Chaitanya

package server

import (
	"context"
	"fmt"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/bvk/buydips/config"
	"github.com/bvk/buydips/dipper"
	"github.com/bvk/buydips/exchange"
	"github.com/bvk/buydips/gobs"
	"github.com/bvk/buydips/kvutil"
	"github.com/bvkgo/kv"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/shopspring/decimal"
)

type fakeExchange struct {
	mu sync.Mutex

	prices []decimal.Decimal
	next   int

	numBuys int
}

func (f *fakeExchange) Close() error {
	return nil
}

func (f *fakeExchange) ExchangeName() string {
	return "fake"
}

func (f *fakeExchange) GetPrice(ctx context.Context, symbol string) (*exchange.Ticker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := f.prices[f.next]
	if f.next < len(f.prices)-1 {
		f.next++
	}
	return &exchange.Ticker{
		Symbol:     symbol,
		Price:      p,
		ServerTime: exchange.RemoteTime{Time: time.Now()},
	}, nil
}

func (f *fakeExchange) GetBalance(ctx context.Context, asset string) (*exchange.Balance, error) {
	return &exchange.Balance{Asset: asset, Free: decimal.NewFromInt(10000)}, nil
}

func (f *fakeExchange) MarketBuy(ctx context.Context, clientOrderID, symbol string, quoteSize decimal.Decimal) (*exchange.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.numBuys++
	return &exchange.Order{
		OrderID:       exchange.OrderID(fmt.Sprintf("order-%d", f.numBuys)),
		ClientOrderID: clientOrderID,
		Symbol:        symbol,
		Side:          "BUY",
		CreateTime:    exchange.RemoteTime{Time: time.Now()},
		QuoteSpent:    quoteSize,
		Status:        "FILLED",
		Done:          true,
	}, nil
}

func (f *fakeExchange) CheckSymbols(ctx context.Context, symbols []string) ([]string, error) {
	return nil, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Bot: config.Bot{
			Frequency:         1,
			OrderAmountUSD:    "25",
			RetryAfter:        1,
			MinInitialDrop:    10,
			MinAdditionalDrop: 3,
			DryRun:            true,
			Tickers:           []string{"BTCUSDT"},
		},
	}
}

func waitForJournal(ctx context.Context, t *testing.T, db kv.Database, want int) []*gobs.OrderRecord {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var records []*gobs.OrderRecord
		collect := func(ctx context.Context, r kv.Reader, key string, rec *gobs.OrderRecord) error {
			records = append(records, rec)
			return nil
		}
		begin, end := kvutil.PathRange(dipper.OrdersKeyspace)
		if err := kvutil.AscendDB(ctx, db, begin, end, collect); err != nil {
			t.Fatal(err)
		}
		if len(records) >= want {
			return records
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("journal did not reach %d records in time", want)
	return nil
}

func TestServerDryRunCycle(t *testing.T) {
	ctx := context.Background()

	db := kvmemdb.New()
	ex := &fakeExchange{
		prices: []decimal.Decimal{
			decimal.NewFromInt(100),
			decimal.NewFromInt(89),
		},
	}

	opts := &Options{RunInterval: 10 * time.Millisecond}
	s, err := New(ctx, opts, testConfig(), db, ex, nil /* telegram */)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	records := waitForJournal(ctx, t, db, 1)
	rec := records[0]
	if !rec.DryRun {
		t.Errorf("journal record is not marked as a dry run: %+v", rec)
	}
	if rec.Symbol != "BTCUSDT" {
		t.Errorf("journal record has wrong symbol: %+v", rec)
	}
	if ex.numBuys != 0 {
		t.Errorf("dry run placed %d real orders", ex.numBuys)
	}

	status := s.Status()
	if status.TotalCycles == 0 {
		t.Errorf("expected non-zero cycle count: %+v", status)
	}
	if status.TotalSimulated == 0 {
		t.Errorf("expected non-zero simulated order count: %+v", status)
	}
	if len(status.Tickers) != 1 || status.Tickers[0].Symbol != "BTCUSDT" {
		t.Errorf("unexpected ticker statuses: %+v", status.Tickers)
	}
}

func TestServerRejectsUnsupportedTickers(t *testing.T) {
	ctx := context.Background()

	db := kvmemdb.New()
	ex := &badSymbolExchange{fakeExchange{prices: []decimal.Decimal{decimal.NewFromInt(100)}}}

	if _, err := New(ctx, nil, testConfig(), db, ex, nil); err == nil {
		t.Fatalf("expected an error for unsupported tickers")
	}
}

type badSymbolExchange struct {
	fakeExchange
}

func (f *badSymbolExchange) CheckSymbols(ctx context.Context, symbols []string) ([]string, error) {
	return symbols, nil
}

func TestServerStatePersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()

	db := kvmemdb.New()
	ex := &fakeExchange{
		prices: []decimal.Decimal{
			decimal.NewFromInt(100),
			decimal.NewFromInt(89),
		},
	}

	opts := &Options{RunInterval: 10 * time.Millisecond}
	s, err := New(ctx, opts, testConfig(), db, ex, nil)
	if err != nil {
		t.Fatal(err)
	}
	waitForJournal(ctx, t, db, 1)
	first := s.Status()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	state, err := kvutil.GetDB[gobs.ServerState](ctx, db, ServerStateKey)
	if err != nil {
		t.Fatal(err)
	}
	if state.TotalCycles == 0 || state.TotalSimulated == 0 {
		t.Fatalf("saved state has no activity: %+v", state)
	}
	if state.TotalSimulated < first.TotalSimulated {
		t.Errorf("saved state %+v lost orders seen in last status %+v", state, first)
	}

	s2, err := New(ctx, opts, testConfig(), db, ex, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	if got := s2.Status(); got.TotalSimulated < first.TotalSimulated {
		t.Errorf("restarted server lost counters: %+v < %+v", got, first)
	}
}

func TestStatusDuringCycles(t *testing.T) {
	ctx := context.Background()

	db := kvmemdb.New()
	var prices []decimal.Decimal
	for i := 0; i < 200; i++ {
		prices = append(prices, decimal.NewFromInt(int64(100+i)))
	}
	ex := &fakeExchange{prices: prices}

	opts := &Options{RunInterval: time.Millisecond}
	s, err := New(ctx, opts, testConfig(), db, ex, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	// Hammer the status surface while cycles mutate the ticker states.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				v := s.Status()
				if len(v.Tickers) != 1 || v.Tickers[0].Symbol != "BTCUSDT" {
					t.Errorf("unexpected ticker statuses: %+v", v.Tickers)
					return
				}
				if st := v.Tickers[0].State; st != nil && !st.ReferenceHigh.IsPositive() {
					t.Errorf("unexpected reference high: %+v", st)
					return
				}
			}
		}()
	}
	time.Sleep(200 * time.Millisecond)
	close(stop)
	wg.Wait()
}

func putOrder(ctx context.Context, t *testing.T, db kv.Database, symbol string, at time.Time) {
	t.Helper()

	rec := &gobs.OrderRecord{
		Symbol:    symbol,
		Price:     decimal.NewFromInt(100),
		QuoteSize: decimal.NewFromInt(25),
		CreatedAt: exchange.RemoteTime{Time: at},
	}
	key := path.Join(dipper.OrdersKeyspace, symbol, at.UTC().Format(time.RFC3339Nano))
	if err := kvutil.SetDB(ctx, db, key, rec); err != nil {
		t.Fatal(err)
	}
}

func TestRecentOrdersAcrossSymbols(t *testing.T) {
	ctx := context.Background()

	db := kvmemdb.New()
	base := time.Now().UTC().Truncate(time.Second)

	// Journal keys are symbol-major; the newest order lives under the
	// alphabetically first symbol here.
	putOrder(ctx, t, db, "ZZZUSDT", base.Add(-2*time.Minute))
	putOrder(ctx, t, db, "AAAUSDT", base.Add(-1*time.Minute))
	putOrder(ctx, t, db, "ZZZUSDT", base.Add(-3*time.Minute))
	putOrder(ctx, t, db, "AAAUSDT", base)

	symbols := []string{"AAAUSDT", "ZZZUSDT"}
	records, err := recentOrders(ctx, db, symbols, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 4 {
		t.Fatalf("want 4 records, got %d", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].CreatedAt.Time.After(records[i-1].CreatedAt.Time) {
			t.Fatalf("records are not newest first: %+v", records)
		}
	}
	if records[0].Symbol != "AAAUSDT" || !records[0].CreatedAt.Time.Equal(base) {
		t.Errorf("want the globally newest order first, got %+v", records[0])
	}

	limited, err := recentOrders(ctx, db, symbols, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Fatalf("want 2 records, got %d", len(limited))
	}
	if limited[0].Symbol != "AAAUSDT" || limited[1].Symbol != "AAAUSDT" {
		t.Errorf("want the two newest orders, got %+v", limited)
	}
}
