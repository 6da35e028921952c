// Copyright (c) 2025 BVK Chaitanya

package dipper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bvk/buydips/exchange"
	"github.com/bvk/buydips/gobs"
	"github.com/bvk/buydips/kvutil"
	"github.com/bvk/buydips/runtime"
	"github.com/bvkgo/kv"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/shopspring/decimal"
)

type fakeExchange struct {
	price decimal.Decimal

	priceErr error
	buyErr   error

	numBuys int
	lastBuy struct {
		clientOrderID string
		symbol        string
		quoteSize     decimal.Decimal
	}
}

func (f *fakeExchange) Close() error         { return nil }
func (f *fakeExchange) ExchangeName() string { return "fake" }

func (f *fakeExchange) GetPrice(ctx context.Context, symbol string) (*exchange.Ticker, error) {
	if f.priceErr != nil {
		return nil, f.priceErr
	}
	return &exchange.Ticker{Symbol: symbol, Price: f.price}, nil
}

func (f *fakeExchange) MarketBuy(ctx context.Context, clientOrderID, symbol string, quoteSize decimal.Decimal) (*exchange.Order, error) {
	if f.buyErr != nil {
		return nil, f.buyErr
	}
	f.numBuys++
	f.lastBuy.clientOrderID = clientOrderID
	f.lastBuy.symbol = symbol
	f.lastBuy.quoteSize = quoteSize
	return &exchange.Order{
		OrderID:       "order-1",
		ClientOrderID: clientOrderID,
		Symbol:        symbol,
		Side:          "BUY",
		FilledPrice:   f.price,
		FilledSize:    quoteSize.Div(f.price),
		QuoteSpent:    quoteSize,
		Status:        "FILLED",
		Done:          true,
	}, nil
}

func (f *fakeExchange) GetBalance(ctx context.Context, asset string) (*exchange.Balance, error) {
	return &exchange.Balance{Asset: asset, Free: decimal.NewFromInt(1000)}, nil
}

func (f *fakeExchange) CheckSymbols(ctx context.Context, symbols []string) ([]string, error) {
	return nil, nil
}

type fakeMessenger struct {
	err      error
	messages []string
}

func (f *fakeMessenger) SendMessage(ctx context.Context, at time.Time, text string) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, text)
	return nil
}

func newTestRuntime(ex *fakeExchange, msgr *fakeMessenger) *runtime.Runtime {
	return &runtime.Runtime{
		Database:  kvmemdb.New(),
		Exchange:  ex,
		Messenger: msgr,
	}
}

func stepAt(t *testing.T, v *Dipper, rt *runtime.Runtime, now time.Time) {
	t.Helper()
	if err := v.Step(context.Background(), rt, now); err != nil {
		t.Fatal(err)
	}
}

func TestFirstStepSeedsReferenceHigh(t *testing.T) {
	ex := &fakeExchange{price: d("100")}
	rt := newTestRuntime(ex, &fakeMessenger{})

	v, err := New("BTCUSDT", testOptions(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	stepAt(t, v, rt, time.Now())

	status := v.Status()
	if status.State == nil || !status.State.ReferenceHigh.Equal(d("100")) {
		t.Fatalf("want reference high 100, got %+v", status.State)
	}
}

func TestDryRunNeverPlacesOrders(t *testing.T) {
	ex := &fakeExchange{price: d("100")}
	msgr := &fakeMessenger{}
	rt := newTestRuntime(ex, msgr)

	opts := testOptions()
	opts.DryRun = true
	v, err := New("BTCUSDT", opts, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	stepAt(t, v, rt, now)

	ex.price = d("90")
	stepAt(t, v, rt, now.Add(time.Minute))

	if ex.numBuys != 0 {
		t.Errorf("dry run placed %d orders", ex.numBuys)
	}
	status := v.Status()
	if status.State.DropCount != 1 || !status.State.LastOrderPrice.Equal(d("90")) {
		t.Errorf("dry run did not update state: %+v", status.State)
	}
	if status.NumSimulated != 1 {
		t.Errorf("want 1 simulated order, got %d", status.NumSimulated)
	}
	if len(msgr.messages) != 1 {
		t.Fatalf("want 1 notification, got %d", len(msgr.messages))
	}

	// The simulated order is journaled with the dry-run marker.
	var records []*gobs.OrderRecord
	begin, end := kvutil.PathRange(OrdersKeyspace + "BTCUSDT")
	collect := func(ctx context.Context, r kv.Reader, k string, rec *gobs.OrderRecord) error {
		records = append(records, rec)
		return nil
	}
	if err := kvutil.AscendDB(context.Background(), rt.Database, begin, end, collect); err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("want 1 journaled record, got %d", len(records))
	}
	if !records[0].DryRun {
		t.Errorf("journaled record is not marked as a dry run")
	}
}

func TestLiveBuyAndJournal(t *testing.T) {
	ex := &fakeExchange{price: d("100")}
	msgr := &fakeMessenger{}
	rt := newTestRuntime(ex, msgr)

	v, err := New("BTCUSDT", testOptions(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	stepAt(t, v, rt, now)

	ex.price = d("89")
	stepAt(t, v, rt, now.Add(time.Minute))

	if ex.numBuys != 1 {
		t.Fatalf("want 1 order, got %d", ex.numBuys)
	}
	if ex.lastBuy.symbol != "BTCUSDT" || !ex.lastBuy.quoteSize.Equal(d("25")) {
		t.Errorf("unexpected order: %+v", ex.lastBuy)
	}
	if len(ex.lastBuy.clientOrderID) == 0 {
		t.Errorf("order was placed without a client order id")
	}
	status := v.Status()
	if status.State.DropCount != 1 || !status.State.LastOrderPrice.Equal(d("89")) {
		t.Errorf("state after buy: %+v", status.State)
	}
	if len(msgr.messages) != 1 {
		t.Errorf("want 1 notification, got %d", len(msgr.messages))
	}
}

func TestInsufficientFundsFreezesTicker(t *testing.T) {
	ex := &fakeExchange{price: d("100")}
	msgr := &fakeMessenger{}
	rt := newTestRuntime(ex, msgr)

	v, err := New("BTCUSDT", testOptions(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	stepAt(t, v, rt, now)

	ex.price = d("89")
	ex.buyErr = exchange.ErrInsufficientFunds
	if err := v.Step(context.Background(), rt, now.Add(time.Minute)); err == nil {
		t.Fatalf("want an error from a failed buy, got nil")
	}
	if !v.Frozen(now.Add(2 * time.Minute)) {
		t.Errorf("ticker is not frozen after a failed buy")
	}
	if v.Frozen(now.Add(2 * time.Hour)) {
		t.Errorf("ticker is still frozen after the retry deadline")
	}
	if len(msgr.messages) != 1 {
		t.Errorf("want 1 warning notification, got %d", len(msgr.messages))
	}

	// Steps inside the freeze window do nothing, even at a buyable price.
	ex.buyErr = nil
	stepAt(t, v, rt, now.Add(2*time.Minute))
	if ex.numBuys != 0 {
		t.Errorf("frozen ticker placed an order")
	}

	// After the deadline the ticker trades again.
	stepAt(t, v, rt, now.Add(2*time.Hour))
	if ex.numBuys != 1 {
		t.Errorf("want 1 order after the freeze, got %d", ex.numBuys)
	}
}

func TestNotificationFailureDoesNotBlockTrading(t *testing.T) {
	ex := &fakeExchange{price: d("100")}
	msgr := &fakeMessenger{err: errors.New("telegram is down")}
	rt := newTestRuntime(ex, msgr)

	v, err := New("BTCUSDT", testOptions(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	stepAt(t, v, rt, now)

	ex.price = d("90")
	stepAt(t, v, rt, now.Add(time.Minute))

	if ex.numBuys != 1 {
		t.Fatalf("want 1 order despite notification failure, got %d", ex.numBuys)
	}
}

func TestPriceFetchFailureFreezesTicker(t *testing.T) {
	ex := &fakeExchange{price: d("100")}
	rt := newTestRuntime(ex, &fakeMessenger{})

	v, err := New("BTCUSDT", testOptions(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	stepAt(t, v, rt, now)

	ex.priceErr = errors.New("network is down")
	if err := v.Step(context.Background(), rt, now.Add(time.Minute)); err == nil {
		t.Fatalf("want an error from a failed price fetch, got nil")
	}
	if !v.Frozen(now.Add(2 * time.Minute)) {
		t.Errorf("ticker is not frozen after a failed price fetch")
	}
}

func TestBadExchangePriceSkipsCycle(t *testing.T) {
	ex := &fakeExchange{price: d("100")}
	rt := newTestRuntime(ex, &fakeMessenger{})

	v, err := New("BTCUSDT", testOptions(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	stepAt(t, v, rt, now)
	before := *v.Status().State

	ex.price = d("0")
	stepAt(t, v, rt, now.Add(time.Minute))

	if after := *v.Status().State; after != before {
		t.Fatalf("bad price mutated state: before %+v after %+v", before, after)
	}
	if ex.numBuys != 0 {
		t.Errorf("bad price resulted in an order")
	}
}
