// Copyright (c) 2025 BVK Chaitanya

// Package dipper implements the buy-the-dip decision logic and the
// per-ticker runner acting on it.
//
// Every ticker tracks a reference high. A first buy triggers when the price
// drops a configured percentage below that high; every further buy requires
// an additional percentage drop below the previous buy price. A price above
// the reference high starts a fresh drop sequence.
package dipper

import (
	"fmt"
	"time"

	"github.com/bvk/buydips/exchange"
	"github.com/bvk/buydips/gobs"
	"github.com/shopspring/decimal"
)

type Action string

const (
	// Buy means the drop threshold is met and an order should be placed.
	Buy Action = "BUY"

	// Skip means no threshold is met and nothing should change.
	Skip Action = "SKIP"

	// NewHigh means the market traded above the reference high; the caller
	// should reset the drop sequence through Apply.
	NewHigh Action = "NEW-HIGH"

	// BadPrice means the input price (or tracked state) is unusable; the
	// caller should log and leave the state untouched.
	BadPrice Action = "BAD-PRICE"
)

// Options hold the per-ticker decision thresholds.
type Options struct {
	// OrderAmount is the quote-asset size of every buy order.
	OrderAmount decimal.Decimal

	// MinInitialDropPct is the percentage drop below the reference high that
	// triggers the first buy of a sequence.
	MinInitialDropPct decimal.Decimal

	// MinAdditionalDropPct is the percentage drop below the last order price
	// that triggers every subsequent buy.
	MinAdditionalDropPct decimal.Decimal

	// DryRun disables real order placement. State updates and notifications
	// still happen.
	DryRun bool
}

func (v *Options) Check() error {
	if !v.OrderAmount.IsPositive() {
		return fmt.Errorf("order amount must be positive")
	}
	if !v.MinInitialDropPct.IsPositive() {
		return fmt.Errorf("min initial drop percentage must be positive")
	}
	if !v.MinAdditionalDropPct.IsPositive() {
		return fmt.Errorf("min additional drop percentage must be positive")
	}
	return nil
}

// Decision is the outcome of evaluating one ticker against one price.
type Decision struct {
	Symbol string

	Action Action

	// QuoteSize is the order size for Buy decisions and zero otherwise.
	QuoteSize decimal.Decimal

	// DropPct is the percentage drop from the decision's anchor price: the
	// reference high before the first buy and the last order price after it.
	DropPct decimal.Decimal

	Reason string
}

var hundred = decimal.NewFromInt(100)

// DropPct returns the percentage drop of price below anchor. The result is
// negative when price is above anchor. The anchor must be positive.
func DropPct(anchor, price decimal.Decimal) decimal.Decimal {
	return anchor.Sub(price).Div(anchor).Mul(hundred)
}

// NewTickerState returns the initial tracking state for a symbol with the
// reference high seeded from the first observed price.
func NewTickerState(symbol string, price decimal.Decimal, at time.Time) *gobs.TickerState {
	return &gobs.TickerState{
		Symbol:        symbol,
		ReferenceHigh: price,
		UpdatedAt:     exchange.RemoteTime{Time: at},
	}
}

// Evaluate decides what to do for one ticker given its tracked state and the
// current market price. It is deterministic and has no side effects; state
// mutation is the caller's job through Apply.
func Evaluate(state *gobs.TickerState, price decimal.Decimal, opts *Options) Decision {
	d := Decision{Symbol: state.Symbol, Action: Skip}

	if !price.IsPositive() {
		d.Action = BadPrice
		d.Reason = fmt.Sprintf("market price %s is not positive", price)
		return d
	}
	if !state.ReferenceHigh.IsPositive() {
		d.Action = BadPrice
		d.Reason = fmt.Sprintf("reference high %s is not positive", state.ReferenceHigh)
		return d
	}

	if price.GreaterThan(state.ReferenceHigh) {
		d.Action = NewHigh
		d.Reason = fmt.Sprintf("price %s is above the reference high %s", price, state.ReferenceHigh)
		return d
	}

	if state.DropCount == 0 {
		d.DropPct = DropPct(state.ReferenceHigh, price)
		if d.DropPct.GreaterThanOrEqual(opts.MinInitialDropPct) {
			d.Action = Buy
			d.QuoteSize = opts.OrderAmount
			d.Reason = fmt.Sprintf("price %s is %s%% below the reference high %s", price, d.DropPct.StringFixed(2), state.ReferenceHigh)
			return d
		}
		d.Reason = fmt.Sprintf("drop %s%% from the reference high %s is not enough", d.DropPct.StringFixed(2), state.ReferenceHigh)
		return d
	}

	// Subsequent buys are measured from the last order price, not from the
	// original high.
	d.DropPct = DropPct(state.LastOrderPrice, price)
	if d.DropPct.GreaterThanOrEqual(opts.MinAdditionalDropPct) {
		d.Action = Buy
		d.QuoteSize = opts.OrderAmount
		d.Reason = fmt.Sprintf("price %s is %s%% below the last buy price %s", price, d.DropPct.StringFixed(2), state.LastOrderPrice)
		return d
	}
	d.Reason = fmt.Sprintf("drop %s%% from the last buy price %s is not enough", d.DropPct.StringFixed(2), state.LastOrderPrice)
	return d
}

// Apply performs the canonical state transition for a decision. It is the
// only place ticker states mutate.
func Apply(state *gobs.TickerState, d Decision, price decimal.Decimal, at time.Time) {
	switch d.Action {
	case Buy:
		state.DropCount++
		state.LastOrderPrice = price
		state.UpdatedAt = exchange.RemoteTime{Time: at}
	case NewHigh:
		state.ReferenceHigh = price
		state.LastOrderPrice = decimal.Decimal{}
		state.DropCount = 0
		state.UpdatedAt = exchange.RemoteTime{Time: at}
	}
}
