// Copyright (c) 2025 BVK Chaitanya

// Package binance implements the exchange interfaces on top of the Binance
// spot trading REST and websocket apis.
package binance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/bvk/buydips/binance/internal"
	"github.com/bvk/buydips/exchange"
	"github.com/shopspring/decimal"
	"github.com/visvasity/topic"
)

type Exchange struct {
	client *internal.Client
}

var _ exchange.Exchange = &Exchange{}

func NewExchange(ctx context.Context, key, secret string, opts *Options) (*Exchange, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	client, err := internal.New(ctx, key, secret, opts.internal())
	if err != nil {
		return nil, err
	}
	return &Exchange{client: client}, nil
}

func (v *Exchange) Close() error {
	if err := v.client.Close(); err != nil {
		slog.Error("could not close binance client (ignored)", "err", err)
	}
	return nil
}

func (v *Exchange) ExchangeName() string {
	return "binance"
}

// GetPrice returns the last traded price for a symbol.
func (v *Exchange) GetPrice(ctx context.Context, symbol string) (*exchange.Ticker, error) {
	resp, err := v.client.GetTickerPrice(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("could not fetch ticker price for %q: %w", symbol, err)
	}
	t := &exchange.Ticker{
		Symbol:     resp.Symbol,
		Price:      resp.Price,
		ServerTime: exchange.RemoteTime{Time: time.Now().UTC()},
	}
	return t, nil
}

// GetBalance returns the spot account balance for a single asset. Assets
// with no balance are reported as zero.
func (v *Exchange) GetBalance(ctx context.Context, asset string) (*exchange.Balance, error) {
	resp, err := v.client.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not fetch account balances: %w", err)
	}
	b := &exchange.Balance{Asset: asset}
	for _, ab := range resp.Balances {
		if ab.Asset == asset {
			b.Free = ab.Free
			b.Locked = ab.Locked
			break
		}
	}
	return b, nil
}

// MarketBuy places a market buy order sized in the quote asset and waits
// for the synchronous fill report.
func (v *Exchange) MarketBuy(ctx context.Context, clientOrderID, symbol string, quoteSize decimal.Decimal) (*exchange.Order, error) {
	req := &internal.CreateOrderRequest{
		Symbol:        symbol,
		Side:          "BUY",
		Type:          "MARKET",
		QuoteOrderQty: quoteSize,
		ClientOrderID: clientOrderID,
	}
	resp, err := v.client.CreateOrder(ctx, req)
	if err != nil {
		var apiErr *internal.Error
		if errors.As(err, &apiErr) {
			if apiErr.Code == internal.ErrCodeInsufficientBalance || apiErr.Code == internal.ErrCodeMarginInsufficient {
				return nil, fmt.Errorf("market buy for %q rejected: %w", symbol, exchange.ErrInsufficientFunds)
			}
		}
		return nil, fmt.Errorf("could not create market buy order for %q: %w", symbol, err)
	}
	order := &exchange.Order{
		OrderID:       exchange.OrderID(fmt.Sprintf("%d", resp.OrderID)),
		ClientOrderID: resp.ClientOrderID,
		Symbol:        resp.Symbol,
		Side:          resp.Side,
		CreateTime:    exchange.RemoteTime{Time: time.UnixMilli(resp.TransactUnixMilli).UTC()},
		FilledSize:    resp.ExecutedQuantity,
		QuoteSpent:    resp.CummulativeQuoteQty,
		Status:        resp.Status,
		Done:          slices.Contains(doneStatuses, resp.Status),
	}
	if resp.ExecutedQuantity.IsPositive() {
		order.FilledPrice = resp.CummulativeQuoteQty.Div(resp.ExecutedQuantity)
	}
	return order, nil
}

var doneStatuses = []string{"FILLED", "CANCELED", "REJECTED", "EXPIRED", "EXPIRED_IN_MATCH"}

// CheckSymbols returns the subset of symbols that cannot be traded with
// quote-sized market buys on the spot market.
func (v *Exchange) CheckSymbols(ctx context.Context, symbols []string) ([]string, error) {
	resp, err := v.client.GetExchangeInfo(ctx, nil /* symbols */)
	if err != nil {
		return nil, fmt.Errorf("could not fetch exchange info: %w", err)
	}
	var unsupported []string
	for _, symbol := range symbols {
		index := slices.IndexFunc(resp.SymbolInfoList, func(si *internal.SymbolInfo) bool {
			return si.Symbol == symbol
		})
		if index == -1 {
			unsupported = append(unsupported, symbol)
			continue
		}
		si := resp.SymbolInfoList[index]
		if si.Status != "TRADING" || !si.IsSpotTradingAllowed || !si.QuoteOrderQtyMarketAllowed {
			unsupported = append(unsupported, symbol)
		}
	}
	return unsupported, nil
}

// WatchTickers starts streaming live prices for the given symbols over a
// websocket connection.
func (v *Exchange) WatchTickers(symbols []string) error {
	return v.client.WatchTickers(symbols)
}

// SubscribeTickers returns a receiver for the live price stream started
// with WatchTickers.
func (v *Exchange) SubscribeTickers() (*topic.Receiver[*internal.MiniTickerEvent], error) {
	return v.client.SubscribeTickers()
}
