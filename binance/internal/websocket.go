// Copyright (c) 2025 BVK Chaitanya

package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/bvk/buydips/ctxutil"
	"github.com/gorilla/websocket"
	"github.com/visvasity/topic"
)

// WatchTickers starts the combined miniTicker stream for the given symbols
// in the background. Updates are published to the ticker topic until the
// client is closed. The stream reconnects automatically on failures.
func (c *Client) WatchTickers(symbols []string) error {
	if len(symbols) == 0 {
		return os.ErrInvalid
	}
	c.cg.Go(func(ctx context.Context) {
		c.goStreamTickers(ctx, symbols)
	})
	return nil
}

// SubscribeTickers returns a receiver of miniTicker updates from all watched
// symbols. Callers must close the receiver.
func (c *Client) SubscribeTickers() (*topic.Receiver[*MiniTickerEvent], error) {
	return topic.Subscribe(c.tickerTopic, 1, true)
}

func (c *Client) goStreamTickers(ctx context.Context, symbols []string) {
	for i := 0; ctx.Err() == nil; i = min(i+1, 5) {
		if err := c.streamTickers(ctx, symbols); err != nil {
			if !errors.Is(err, os.ErrClosed) && !errors.Is(err, context.Canceled) {
				slog.Warn("ticker stream failed (will reconnect)", "err", err)
			}
			ctxutil.Sleep(ctx, time.Second<<i)
		}
	}
}

func (c *Client) streamTickers(ctx context.Context, symbols []string) (status error) {
	var streams []string
	for _, s := range symbols {
		streams = append(streams, strings.ToLower(s)+"@miniTicker")
	}
	addrURL := &url.URL{
		Scheme:   "wss",
		Host:     c.opts.WebsocketHostname,
		Path:     "/stream",
		RawQuery: "streams=" + strings.Join(streams, "/"),
	}

	dialer := websocket.Dialer{
		EnableCompression: true,
	}
	conn, _, err := dialer.DialContext(ctx, addrURL.String(), nil)
	if err != nil {
		return fmt.Errorf("could not dial the websocket feed: %w", err)
	}
	defer conn.Close()

	// Unblock the reader when the context is canceled.
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	for ctx.Err() == nil {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return context.Cause(ctx)
			}
			return fmt.Errorf("could not read websocket message: %w", err)
		}
		var msg combinedStreamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("could not decode websocket message (ignored)", "err", err)
			continue
		}
		if len(msg.Data.Symbol) == 0 {
			continue
		}
		event := msg.Data
		c.tickerTopic.Send(&event)
	}
	return context.Cause(ctx)
}
