// Copyright (c) 2025 BVK Chaitanya

package binance

import (
	"time"

	"github.com/bvk/buydips/binance/internal"
)

type Options struct {
	// Timeout to use for the HTTP requests.
	HttpClientTimeout time.Duration

	// Max limit for time difference between local time and the server time.
	MaxTimeAdjustment time.Duration

	// Max time latency for fetching the server time from the exchange.
	MaxFetchTimeLatency time.Duration

	// RecvWindow is the validity window attached to signed requests.
	RecvWindow time.Duration
}

func (v *Options) setDefaults() {
	if v.HttpClientTimeout == 0 {
		v.HttpClientTimeout = 5 * time.Second
	}
	if v.MaxTimeAdjustment == 0 {
		v.MaxTimeAdjustment = time.Minute
	}
	if v.MaxFetchTimeLatency == 0 {
		v.MaxFetchTimeLatency = 5 * time.Second
	}
	if v.RecvWindow == 0 {
		v.RecvWindow = 5 * time.Second
	}
}

// Check validates the options.
func (v *Options) Check() error {
	return nil
}

func (v *Options) internal() *internal.Options {
	return &internal.Options{
		HttpClientTimeout:   v.HttpClientTimeout,
		MaxTimeAdjustment:   v.MaxTimeAdjustment,
		MaxFetchTimeLatency: v.MaxFetchTimeLatency,
		RecvWindow:          v.RecvWindow,
	}
}
