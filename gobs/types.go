// Copyright (c) 2025 BVK Chaitanya

// Package gobs holds the gob-encoded data types saved in the datastore and
// the in-memory ticker tracking state.
package gobs

import (
	"github.com/bvk/buydips/exchange"
	"github.com/shopspring/decimal"
)

// TickerState tracks the dip detection progress for one trading symbol. It
// lives in process memory only; a restart begins with a fresh state seeded
// from the first observed price.
type TickerState struct {
	Symbol string

	// ReferenceHigh is the anchor price that dip percentages are measured
	// from. It never increases except by an explicit reset when the market
	// trades above it.
	ReferenceHigh decimal.Decimal

	// LastOrderPrice is the price of the most recent buy in the current drop
	// sequence. It is zero when DropCount is zero.
	LastOrderPrice decimal.Decimal

	// DropCount is the number of buys made in the current drop sequence.
	DropCount int

	UpdatedAt exchange.RemoteTime
}

// OrderRecord is a journal entry for a placed (or simulated) buy order.
type OrderRecord struct {
	Symbol string

	OrderID       string
	ClientOrderID string

	Price     decimal.Decimal
	Size      decimal.Decimal
	QuoteSize decimal.Decimal

	DropPct   decimal.Decimal
	DropCount int

	DryRun bool

	CreatedAt exchange.RemoteTime
}

// TelegramState remembers chat ids learned from inbound messages so that
// notifications survive a restart without requiring users to message the bot
// again.
type TelegramState struct {
	UserChatIDMap map[string]int64
}

// ServerState holds the bot's summary counters saved across restarts.
type ServerState struct {
	TotalCycles int64

	TotalOrders    int64
	TotalSimulated int64
}
