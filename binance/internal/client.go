// Copyright (c) 2025 BVK Chaitanya

// Package internal implements the low-level REST and websocket client for
// the Binance spot API.
package internal

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bvk/buydips/ctxutil"
	"github.com/visvasity/topic"
	"golang.org/x/time/rate"
)

type Client struct {
	cg ctxutil.CloseGroup

	opts Options

	key    string
	secret []byte

	client *http.Client

	limiter *rate.Limiter

	tickerTopic *topic.Topic[*MiniTickerEvent]

	// timeAdjustment is positive when local time is found to be ahead of the
	// server time, in which case, this value must be subtracted from the
	// local time before it can be used as a request timestamp.
	timeAdjustment atomic.Int64
}

// New creates a client for the exchange REST api. The key and secret may be
// empty, in which case only the public endpoints can be used.
func New(ctx context.Context, key, secret string, opts *Options) (*Client, error) {
	if opts == nil {
		opts = new(Options)
	}
	if err := opts.Check(); err != nil {
		return nil, err
	}

	stime, err := getServerTime(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("could not fetch the exchange server time: %w", err)
	}
	adjustment := time.Since(stime)
	if adjustment >= opts.MaxTimeAdjustment {
		return nil, fmt.Errorf("local time is out-of-sync by %v with the server", adjustment)
	}

	jar, err := cookiejar.New(nil /* options */)
	if err != nil {
		return nil, fmt.Errorf("could not create cookiejar: %w", err)
	}

	c := &Client{
		opts:   *opts,
		key:    key,
		secret: []byte(secret),
		client: &http.Client{
			Jar:     jar,
			Timeout: opts.HttpClientTimeout,
		},
		limiter:     rate.NewLimiter(rate.Limit(opts.RestRateLimitPerSecond), 1),
		tickerTopic: topic.New[*MiniTickerEvent](),
	}

	c.timeAdjustment.Store(int64(adjustment))
	c.cg.Go(c.goFindTimeAdjustment)
	return c, nil
}

func (c *Client) Close() error {
	c.cg.Close()
	c.tickerTopic.Close()
	return nil
}

func (c *Client) goFindTimeAdjustment(ctx context.Context) {
	for ctxutil.Sleep(ctx, c.opts.SyncTimeInterval); ctx.Err() == nil; ctxutil.Sleep(ctx, c.opts.SyncTimeInterval) {
		stime, err := getServerTime(ctx, &c.opts)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				slog.Warn("could not refresh server time (will retry)", "err", err)
			}
			continue
		}
		diff := time.Since(stime)
		c.timeAdjustment.Store(int64(diff))
		slog.Debug("updated local time adjustment", "adjustment", diff)
	}
}

// getServerTime returns the exchange server's current time.
func getServerTime(ctx context.Context, opts *Options) (time.Time, error) {
	var zero time.Time

	addrURL := fmt.Sprintf("%s://%s/api/v3/time", opts.RestScheme, opts.RestHostname)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addrURL, nil)
	if err != nil {
		return zero, err
	}
	client := http.Client{Timeout: opts.HttpClientTimeout}

	start := time.Now()
	resp, err := client.Do(req)
	stop := time.Now()
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return zero, fmt.Errorf("get server time failed with status code %d", resp.StatusCode)
	}

	latency := stop.Sub(start)
	if latency > opts.MaxFetchTimeLatency {
		return zero, fmt.Errorf("get server time took too long (%v > %v)", latency, opts.MaxFetchTimeLatency)
	}

	var st GetServerTimeResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return zero, err
	}
	stime := time.UnixMilli(st.ServerUnixMilli).UTC()
	return stime.Add(latency / 2), nil
}

func (c *Client) adjustedNow() time.Time {
	return time.Now().Add(-time.Duration(c.timeAdjustment.Load()))
}

// GetExchangeInfo returns metadata for the given symbols, or for all symbols
// when the input is empty.
func (c *Client) GetExchangeInfo(ctx context.Context, symbols []string) (*GetExchangeInfoResponse, error) {
	values := make(url.Values)
	if len(symbols) == 1 {
		values.Set("symbol", symbols[0])
	} else if len(symbols) > 1 {
		js, _ := json.Marshal(symbols)
		values.Set("symbols", string(js))
	}
	// Unknown symbols fail the whole request; permissive matching needs it.
	values.Set("permissions", "SPOT")

	resp := new(GetExchangeInfoResponse)
	if err := c.publicGetJSON(ctx, "/api/v3/exchangeInfo", values, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetTickerPrice returns the last traded price for a symbol.
func (c *Client) GetTickerPrice(ctx context.Context, symbol string) (*GetTickerPriceResponse, error) {
	values := make(url.Values)
	values.Set("symbol", symbol)

	resp := new(GetTickerPriceResponse)
	if err := c.publicGetJSON(ctx, "/api/v3/ticker/price", values, resp); err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("could not get ticker price", "symbol", symbol, "err", err)
		}
		return nil, err
	}
	return resp, nil
}

// GetAccount returns the account information with all asset balances.
func (c *Client) GetAccount(ctx context.Context) (*GetAccountResponse, error) {
	values := make(url.Values)
	values.Set("omitZeroBalances", "true")

	resp := new(GetAccountResponse)
	if err := c.signedJSON(ctx, http.MethodGet, "/api/v3/account", values, resp); err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("could not get account information", "err", err)
		}
		return nil, err
	}
	return resp, nil
}

// CreateOrder places a new order.
func (c *Client) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	values := make(url.Values)
	values.Set("symbol", req.Symbol)
	values.Set("side", req.Side)
	values.Set("type", req.Type)
	if !req.QuoteOrderQty.IsZero() {
		values.Set("quoteOrderQty", req.QuoteOrderQty.String())
	}
	if !req.Quantity.IsZero() {
		values.Set("quantity", req.Quantity.String())
	}
	if len(req.ClientOrderID) != 0 {
		values.Set("newClientOrderId", req.ClientOrderID)
	}
	values.Set("newOrderRespType", "FULL")

	resp := new(CreateOrderResponse)
	if err := c.signedJSON(ctx, http.MethodPost, "/api/v3/order", values, resp); err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("could not create order", "symbol", req.Symbol, "side", req.Side, "quote-size", req.QuoteOrderQty, "err", err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) publicGetJSON(ctx context.Context, apiPath string, values url.Values, responsePtr any) error {
	addrURL := &url.URL{
		Scheme:   c.opts.RestScheme,
		Host:     c.opts.RestHostname,
		Path:     apiPath,
		RawQuery: values.Encode(),
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addrURL.String(), nil)
	if err != nil {
		return err
	}
	return c.doJSON(ctx, req, responsePtr)
}

// signedJSON performs a signed request. The signature covers the full query
// string including the timestamp and validity window.
func (c *Client) signedJSON(ctx context.Context, method, apiPath string, values url.Values, responsePtr any) error {
	if len(c.key) == 0 {
		return fmt.Errorf("api credentials are not configured")
	}

	values.Set("timestamp", strconv.FormatInt(c.adjustedNow().UnixMilli(), 10))
	values.Set("recvWindow", strconv.FormatInt(c.opts.RecvWindow.Milliseconds(), 10))

	query := values.Encode()
	hash := hmac.New(sha256.New, c.secret)
	io.WriteString(hash, query)
	signature := hex.EncodeToString(hash.Sum(nil))

	addrURL := &url.URL{
		Scheme:   c.opts.RestScheme,
		Host:     c.opts.RestHostname,
		Path:     apiPath,
		RawQuery: query + "&signature=" + signature,
	}
	req, err := http.NewRequestWithContext(ctx, method, addrURL.String(), strings.NewReader(""))
	if err != nil {
		return err
	}
	req.Header.Set("X-MBX-APIKEY", c.key)
	return c.doJSON(ctx, req, responsePtr)
}

func (c *Client) doJSON(ctx context.Context, req *http.Request, responsePtr any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot {
		timeout := time.Second
		if x := resp.Header.Get("Retry-After"); len(x) != 0 {
			if v, err := strconv.Atoi(x); err == nil {
				timeout = time.Duration(v) * time.Second
			}
		}
		slog.Warn("request was rate-limited by the server", "retry-after", timeout, "status", resp.StatusCode)
		ctxutil.Sleep(ctx, timeout)
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		retry := req.Clone(ctx)
		retry.Body = http.NoBody
		return c.doJSON(ctx, retry, responsePtr)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("could not read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := new(Error)
		if err := json.Unmarshal(body, apiErr); err == nil && apiErr.Code != 0 {
			return apiErr
		}
		return fmt.Errorf("request failed with http status %d: %s", resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, responsePtr); err != nil {
		return fmt.Errorf("could not json-decode the response: %w", err)
	}
	return nil
}
