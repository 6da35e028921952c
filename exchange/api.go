// Copyright (c) 2025 BVK Chaitanya

// Package exchange defines the narrow interfaces the bot needs from an
// exchange: current prices, account balances and market buy orders.
// Implementations live in exchange specific packages (ex: binance).
package exchange

import (
	"context"
	"errors"
	"io"

	"github.com/shopspring/decimal"
)

// ErrInsufficientFunds is returned by MarketBuy when the account doesn't
// hold enough of the quote asset to cover the order.
var ErrInsufficientFunds = errors.New("insufficient funds")

type OrderID string

// Ticker holds the last traded price for a symbol.
type Ticker struct {
	Symbol     string
	Price      decimal.Decimal
	ServerTime RemoteTime
}

// Balance holds the free and locked amounts of a single asset.
type Balance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

type Order struct {
	OrderID OrderID

	ClientOrderID string

	Symbol string
	Side   string

	CreateTime RemoteTime

	// FilledSize is the executed amount in the base asset and QuoteSpent is
	// the total cost in the quote asset. FilledPrice is the average price.
	FilledSize  decimal.Decimal
	FilledPrice decimal.Decimal
	QuoteSpent  decimal.Decimal

	Status string

	// Done is true when the order is in a final state.
	Done bool
}

type PriceSource interface {
	// GetPrice returns the current price for a trading symbol.
	GetPrice(ctx context.Context, symbol string) (*Ticker, error)
}

type OrderPlacer interface {
	// MarketBuy places a market buy order for the given quote-asset amount.
	// The client order id makes retried placements idempotent.
	MarketBuy(ctx context.Context, clientOrderID, symbol string, quoteSize decimal.Decimal) (*Order, error)
}

type BalanceReader interface {
	// GetBalance returns the account balance for a single asset.
	GetBalance(ctx context.Context, asset string) (*Balance, error)
}

type Exchange interface {
	io.Closer

	ExchangeName() string

	PriceSource
	OrderPlacer
	BalanceReader

	// CheckSymbols returns the subset of the input symbols that are not
	// supported for spot trading on the exchange.
	CheckSymbols(ctx context.Context, symbols []string) ([]string, error)
}
