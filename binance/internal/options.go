// Copyright (c) 2025 BVK Chaitanya

package internal

import "time"

var (
	RestHostname      = "api.binance.com"
	WebsocketHostname = "stream.binance.com:9443"
)

type Options struct {
	// Hostnames for the REST and WebSocket service endpoints.
	RestHostname      string
	WebsocketHostname string

	// RestScheme selects the url scheme for the REST endpoints. Tests use
	// plain http against a local server.
	RestScheme string

	// Timeout to use for the HTTP requests.
	HttpClientTimeout time.Duration

	// Max time latency for fetching the server time from the exchange.
	MaxFetchTimeLatency time.Duration

	// Max limit for time difference between local time and the server time.
	MaxTimeAdjustment time.Duration

	// Interval between server time refetches.
	SyncTimeInterval time.Duration

	// RecvWindow is the validity window attached to signed requests.
	RecvWindow time.Duration

	// RestRateLimitPerSecond caps the request rate to the REST endpoints.
	RestRateLimitPerSecond int
}

func (v *Options) setDefaults() {
	if v.RestHostname == "" {
		v.RestHostname = RestHostname
	}
	if v.WebsocketHostname == "" {
		v.WebsocketHostname = WebsocketHostname
	}
	if v.RestScheme == "" {
		v.RestScheme = "https"
	}
	if v.HttpClientTimeout == 0 {
		v.HttpClientTimeout = 5 * time.Second
	}
	if v.MaxFetchTimeLatency == 0 {
		v.MaxFetchTimeLatency = 5 * time.Second
	}
	if v.MaxTimeAdjustment == 0 {
		v.MaxTimeAdjustment = time.Minute
	}
	if v.SyncTimeInterval == 0 {
		v.SyncTimeInterval = 30 * time.Minute
	}
	if v.RecvWindow == 0 {
		v.RecvWindow = 5 * time.Second
	}
	if v.RestRateLimitPerSecond == 0 {
		v.RestRateLimitPerSecond = 10
	}
}

func (v *Options) Check() error {
	v.setDefaults()
	return nil
}
