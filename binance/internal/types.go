// Copyright (c) 2025 BVK Chaitanya

package internal

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Error is the exchange's error response envelope.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("binance api error %d: %s", e.Code, e.Message)
}

// Well-known api error codes.
const (
	ErrCodeInsufficientBalance = -2010
	ErrCodeMarginInsufficient  = -2019
)

type GetServerTimeResponse struct {
	ServerUnixMilli int64 `json:"serverTime"`
}

type GetExchangeInfoResponse struct {
	TimeZone        string        `json:"timezone"`
	ServerUnixMilli int64         `json:"serverTime"`
	SymbolInfoList  []*SymbolInfo `json:"symbols"`
}

type SymbolInfo struct {
	Symbol string `json:"symbol"`
	Status string `json:"status"`

	OrderTypes []string `json:"orderTypes"`

	BaseAsset          string `json:"baseAsset"`
	BaseAssetPrecision int    `json:"baseAssetPrecision"`

	QuoteAsset          string `json:"quoteAsset"`
	QuoteAssetPrecision int    `json:"quoteAssetPrecision"`

	IsSpotTradingAllowed bool `json:"isSpotTradingAllowed"`

	QuoteOrderQtyMarketAllowed bool `json:"quoteOrderQtyMarketAllowed"`
}

type GetTickerPriceResponse struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

type AssetBalance struct {
	Asset  string          `json:"asset"`
	Free   decimal.Decimal `json:"free"`
	Locked decimal.Decimal `json:"locked"`
}

type GetAccountResponse struct {
	CanTrade        bool            `json:"canTrade"`
	UpdateUnixMilli int64           `json:"updateTime"`
	Balances        []*AssetBalance `json:"balances"`
}

type OrderFill struct {
	Price           decimal.Decimal `json:"price"`
	Quantity        decimal.Decimal `json:"qty"`
	Commission      decimal.Decimal `json:"commission"`
	CommissionAsset string          `json:"commissionAsset"`
}

type CreateOrderRequest struct {
	Symbol string
	Side   string
	Type   string

	// QuoteOrderQty is the order size in the quote asset, used by market
	// orders. Exactly one of QuoteOrderQty and Quantity must be set.
	QuoteOrderQty decimal.Decimal
	Quantity      decimal.Decimal

	ClientOrderID string
}

type CreateOrderResponse struct {
	Symbol string `json:"symbol"`

	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`

	TransactUnixMilli int64 `json:"transactTime"`

	Price               decimal.Decimal `json:"price"`
	OrigQuantity        decimal.Decimal `json:"origQty"`
	ExecutedQuantity    decimal.Decimal `json:"executedQty"`
	CummulativeQuoteQty decimal.Decimal `json:"cummulativeQuoteQty"`

	Status string `json:"status"`
	Type   string `json:"type"`
	Side   string `json:"side"`

	Fills []*OrderFill `json:"fills"`
}

// MiniTickerEvent is a single update from the <symbol>@miniTicker websocket
// stream.
type MiniTickerEvent struct {
	EventType      string          `json:"e"`
	EventUnixMilli int64           `json:"E"`
	Symbol         string          `json:"s"`
	ClosePrice     decimal.Decimal `json:"c"`
	OpenPrice      decimal.Decimal `json:"o"`
	HighPrice      decimal.Decimal `json:"h"`
	LowPrice       decimal.Decimal `json:"l"`
}

// combinedStreamMessage is the envelope of the /stream?streams=... combined
// websocket endpoint.
type combinedStreamMessage struct {
	Stream string          `json:"stream"`
	Data   MiniTickerEvent `json:"data"`
}
