// Copyright (c) 2025 BVK Chaitanya

package dipper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/bvk/buydips/exchange"
	"github.com/bvk/buydips/gobs"
	"github.com/bvk/buydips/idgen"
	"github.com/bvk/buydips/kvutil"
	"github.com/bvk/buydips/runtime"
	"github.com/google/uuid"
)

// OrdersKeyspace is the datastore prefix for the order journal.
const OrdersKeyspace = "/orders/"

// Dipper tracks one trading symbol and turns its dip decisions into orders,
// journal entries and notifications. All methods must be called from a
// single goroutine.
type Dipper struct {
	symbol string

	opts Options

	retryAfter time.Duration

	// state is nil until the first usable price seeds the reference high.
	state *gobs.TickerState

	idgen *idgen.Generator

	// frozenUntil is the deadline until which this ticker is skipped after
	// an exchange failure. Other tickers are not affected.
	frozenUntil time.Time

	numOrders    int
	numSimulated int
}

// Status is a point-in-time snapshot of a dipper for reporting.
type Status struct {
	Symbol string

	State *gobs.TickerState

	FrozenUntil time.Time

	NumOrders    int
	NumSimulated int
}

func New(symbol string, opts *Options, retryAfter time.Duration) (*Dipper, error) {
	if len(symbol) == 0 {
		return nil, fmt.Errorf("symbol cannot be empty")
	}
	if err := opts.Check(); err != nil {
		return nil, fmt.Errorf("invalid options for %q: %w", symbol, err)
	}
	if retryAfter < 0 {
		return nil, fmt.Errorf("retry-after duration cannot be negative")
	}
	v := &Dipper{
		symbol:     symbol,
		opts:       *opts,
		retryAfter: retryAfter,
		idgen:      idgen.New(path.Join("dippers", symbol, uuid.New().String()), 0),
	}
	return v, nil
}

func (v *Dipper) String() string {
	return "dipper:" + v.symbol
}

func (v *Dipper) Symbol() string {
	return v.symbol
}

// Frozen returns true when the ticker is in its post-failure freeze window.
func (v *Dipper) Frozen(now time.Time) bool {
	return now.Before(v.frozenUntil)
}

func (v *Dipper) Status() *Status {
	s := &Status{
		Symbol:       v.symbol,
		FrozenUntil:  v.frozenUntil,
		NumOrders:    v.numOrders,
		NumSimulated: v.numSimulated,
	}
	if v.state != nil {
		clone := *v.state
		s.State = &clone
	}
	return s
}

// Step runs one evaluation cycle for the ticker: fetch the price, evaluate
// and act on the decision. A returned error means this ticker's turn failed;
// the caller continues with other tickers either way.
func (v *Dipper) Step(ctx context.Context, rt *runtime.Runtime, now time.Time) error {
	if v.Frozen(now) {
		slog.Debug("ticker is frozen after a failure", "symbol", v.symbol, "until", v.frozenUntil)
		return nil
	}

	ticker, err := rt.Exchange.GetPrice(ctx, v.symbol)
	if err != nil {
		v.freeze(ctx, rt, now, fmt.Sprintf("could not fetch %s price: %v", v.symbol, err))
		return fmt.Errorf("could not fetch price for %q: %w", v.symbol, err)
	}
	price := ticker.Price

	if v.state == nil {
		if !price.IsPositive() {
			slog.Warn("ignoring non-positive price for untracked symbol", "symbol", v.symbol, "price", price)
			return nil
		}
		v.state = NewTickerState(v.symbol, price, now)
		slog.Info("tracking symbol from the first observed price", "symbol", v.symbol, "reference-high", price)
		return nil
	}

	d := Evaluate(v.state, price, &v.opts)
	switch d.Action {
	case BadPrice:
		slog.Warn("skipping symbol for this cycle", "symbol", v.symbol, "price", price, "reason", d.Reason)
		return nil

	case NewHigh:
		Apply(v.state, d, price, now)
		slog.Info("reference high reset", "symbol", v.symbol, "reference-high", price)
		return nil

	case Skip:
		slog.Debug("not enough of a dip", "symbol", v.symbol, "price", price, "reason", d.Reason)
		return nil
	}

	return v.buy(ctx, rt, now, d, ticker)
}

func (v *Dipper) buy(ctx context.Context, rt *runtime.Runtime, now time.Time, d Decision, ticker *exchange.Ticker) error {
	price := ticker.Price

	record := &gobs.OrderRecord{
		Symbol:    v.symbol,
		Price:     price,
		QuoteSize: d.QuoteSize,
		DropPct:   d.DropPct,
		DryRun:    v.opts.DryRun,
		CreatedAt: exchange.RemoteTime{Time: now},
	}

	if v.opts.DryRun {
		Apply(v.state, d, price, now)
		record.DropCount = v.state.DropCount
		v.numSimulated++
		if err := v.saveRecord(ctx, rt, now, record); err != nil {
			slog.Warn("could not journal simulated order (ignored)", "symbol", v.symbol, "err", err)
		}
		msg := fmt.Sprintf("DRY RUN: would buy %s of %s @ %s (%s)", d.QuoteSize, v.symbol, price, d.Reason)
		slog.Info("simulated buy order", "symbol", v.symbol, "price", price, "quote-size", d.QuoteSize, "drop-pct", d.DropPct)
		rt.Notify(ctx, now, msg)
		return nil
	}

	clientOrderID := v.idgen.NextID().String()
	order, err := rt.Exchange.MarketBuy(ctx, clientOrderID, v.symbol, d.QuoteSize)
	if err != nil {
		v.idgen.RevertID()
		if errors.Is(err, exchange.ErrInsufficientFunds) {
			v.freeze(ctx, rt, now, fmt.Sprintf("insufficient funds to buy %s of %s; trying again in %v", d.QuoteSize, v.symbol, v.retryAfter))
		} else {
			v.freeze(ctx, rt, now, fmt.Sprintf("could not place %s buy order: %v", v.symbol, err))
		}
		return fmt.Errorf("could not place market buy for %q: %w", v.symbol, err)
	}

	Apply(v.state, d, price, now)
	v.numOrders++

	record.OrderID = string(order.OrderID)
	record.ClientOrderID = order.ClientOrderID
	record.Size = order.FilledSize
	record.DropCount = v.state.DropCount
	if order.FilledPrice.IsPositive() {
		record.Price = order.FilledPrice
	}
	if err := v.saveRecord(ctx, rt, now, record); err != nil {
		slog.Warn("could not journal order (ignored)", "symbol", v.symbol, "order-id", order.OrderID, "err", err)
	}

	msg := fmt.Sprintf("Bought %s of %s @ %s, %s%% below %s", d.QuoteSize, v.symbol, record.Price, d.DropPct.StringFixed(1), dropAnchorName(v.state))
	slog.Info("placed buy order", "symbol", v.symbol, "order-id", order.OrderID, "price", record.Price, "quote-size", d.QuoteSize)
	rt.Notify(ctx, now, msg)
	return nil
}

func dropAnchorName(state *gobs.TickerState) string {
	if state.DropCount > 1 {
		return "the previous buy price"
	}
	return "the reference high"
}

func (v *Dipper) freeze(ctx context.Context, rt *runtime.Runtime, now time.Time, msg string) {
	v.frozenUntil = now.Add(v.retryAfter)
	slog.Warn("freezing ticker after a failure", "symbol", v.symbol, "until", v.frozenUntil, "msg", msg)
	rt.Notify(ctx, now, msg)
}

func (v *Dipper) saveRecord(ctx context.Context, rt *runtime.Runtime, now time.Time, record *gobs.OrderRecord) error {
	if rt.Database == nil {
		return nil
	}
	key := path.Join(OrdersKeyspace, v.symbol, now.UTC().Format(time.RFC3339Nano))
	return kvutil.SetDB(ctx, rt.Database, key, record)
}
