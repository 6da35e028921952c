// Copyright (c) 2025 BVK Chaitanya

// Package server runs the periodic buy-the-dip loop over all configured
// tickers and exposes status reporting over http and telegram.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/bvk/buydips/config"
	"github.com/bvk/buydips/ctxutil"
	"github.com/bvk/buydips/dipper"
	"github.com/bvk/buydips/exchange"
	"github.com/bvk/buydips/gobs"
	"github.com/bvk/buydips/kvutil"
	"github.com/bvk/buydips/runtime"
	"github.com/bvk/buydips/telegram"
	"github.com/bvkgo/kv"
)

// ServerStateKey is the datastore key for the saved summary counters.
const ServerStateKey = "/server/state"

type Server struct {
	cg ctxutil.CloseGroup

	opts Options

	cfg *config.Config

	db kv.Database

	ex exchange.Exchange

	telegramClient *telegram.Client

	rt *runtime.Runtime

	// dippers are stepped and read only from the cycle goroutine. Other
	// goroutines must use the statuses snapshot below.
	dippers []*dipper.Dipper

	start time.Time

	mu    sync.Mutex
	state *gobs.ServerState

	// statuses is the per-ticker snapshot published at the end of every
	// cycle for the status handlers.
	statuses []*dipper.Status

	// lastOrders and lastSimulated remember the dipper counters at the
	// previous state save so that only new orders are added to the
	// persisted totals.
	lastOrders    int64
	lastSimulated int64
}

// New creates the trading server. Configured tickers are verified against
// the exchange and the periodic price-check loop is started. The telegram
// client may be nil when notifications are not configured.
func New(ctx context.Context, opts *Options, cfg *config.Config, db kv.Database, ex exchange.Exchange, tgc *telegram.Client) (_ *Server, status error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	if err := cfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	unsupported, err := ex.CheckSymbols(ctx, cfg.Bot.Tickers)
	if err != nil {
		return nil, fmt.Errorf("could not verify tickers with the exchange: %w", err)
	}
	if len(unsupported) != 0 {
		return nil, fmt.Errorf("tickers %v are not supported for spot trading", unsupported)
	}

	dopts := &dipper.Options{
		OrderAmount:          cfg.OrderAmount(),
		MinInitialDropPct:    cfg.MinInitialDropPct(),
		MinAdditionalDropPct: cfg.MinAdditionalDropPct(),
		DryRun:               cfg.Bot.DryRun,
	}
	var dippers []*dipper.Dipper
	for _, symbol := range cfg.Bot.Tickers {
		d, err := dipper.New(symbol, dopts, cfg.RetryAfter())
		if err != nil {
			return nil, err
		}
		dippers = append(dippers, d)
	}

	state, err := kvutil.GetDB[gobs.ServerState](ctx, db, ServerStateKey)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("could not load saved server state: %w", err)
		}
		state = new(gobs.ServerState)
	}

	var msgr runtime.Messenger
	if tgc != nil {
		msgr = tgc
	}
	s := &Server{
		opts:           *opts,
		cfg:            cfg,
		db:             db,
		ex:             ex,
		telegramClient: tgc,
		rt: &runtime.Runtime{
			Database:  db,
			Exchange:  ex,
			Messenger: msgr,
		},
		dippers: dippers,
		start:   time.Now(),
		state:   state,
	}
	s.statuses = s.snapshot()

	if tgc != nil {
		if err := tgc.AddCommand(ctx, "status", "Prints the bot and per-ticker status", s.statusTelegramCmd); err != nil {
			return nil, err
		}
		if err := tgc.AddCommand(ctx, "recent", "Prints the most recent buy orders", s.recentTelegramCmd); err != nil {
			return nil, err
		}
	}

	if err := s.reportPastOrders(ctx); err != nil {
		slog.Warn("could not summarize past orders (ignored)", "err", err)
	}

	s.rt.Notify(ctx, time.Now(), s.startMessage())

	s.cg.Go(s.goRunCycles)
	return s, nil
}

func (s *Server) Close() error {
	s.cg.Close()
	return nil
}

func (s *Server) startMessage() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "buydips started watching %s every %v for drops of %v%%/%v%%",
		strings.Join(s.cfg.Bot.Tickers, ", "), s.cfg.CycleInterval(),
		s.cfg.Bot.MinInitialDrop, s.cfg.Bot.MinAdditionalDrop)
	if s.cfg.Bot.DryRun {
		sb.WriteString(" (dry run)")
	}
	return sb.String()
}

// reportPastOrders logs a per-ticker summary of the persisted order journal
// so that an operator can see prior activity after a restart.
func (s *Server) reportPastOrders(ctx context.Context) error {
	counts := make(map[string]int)
	for _, symbol := range s.cfg.Bot.Tickers {
		begin, end := kvutil.PathRange(path.Join(dipper.OrdersKeyspace, symbol) + "/")
		collect := func(ctx context.Context, r kv.Reader, key string, rec *gobs.OrderRecord) error {
			counts[rec.Symbol]++
			return nil
		}
		if err := kvutil.AscendDB(ctx, s.db, begin, end, collect); err != nil {
			return err
		}
	}
	for _, symbol := range s.cfg.Bot.Tickers {
		if n := counts[symbol]; n > 0 {
			slog.Info("found past buy orders in the journal", "symbol", symbol, "count", n)
		}
	}
	return nil
}

func (s *Server) goRunCycles(ctx context.Context) {
	interval := s.cfg.CycleInterval()
	if s.opts.RunInterval > 0 {
		interval = s.opts.RunInterval
	}
	for ctx.Err() == nil {
		s.runCycle(ctx)
		ctxutil.Sleep(ctx, interval)
	}
}

// runCycle steps every ticker once. A failing ticker freezes itself and
// never blocks the other tickers.
func (s *Server) runCycle(ctx context.Context) {
	now := time.Now()
	for _, d := range s.dippers {
		if ctx.Err() != nil {
			return
		}
		if err := d.Step(ctx, s.rt, now); err != nil {
			slog.Error("ticker cycle failed", "symbol", d.Symbol(), "err", err)
		}
	}
	s.updateState(ctx, s.snapshot())
}

// snapshot collects per-ticker statuses. Must be called from the cycle
// goroutine (or before it starts).
func (s *Server) snapshot() []*dipper.Status {
	var statuses []*dipper.Status
	for _, d := range s.dippers {
		statuses = append(statuses, d.Status())
	}
	return statuses
}

func (s *Server) updateState(ctx context.Context, statuses []*dipper.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.statuses = statuses

	s.state.TotalCycles++
	var orders, simulated int64
	for _, status := range statuses {
		orders += int64(status.NumOrders)
		simulated += int64(status.NumSimulated)
	}
	s.state.TotalOrders += orders - s.lastOrders
	s.state.TotalSimulated += simulated - s.lastSimulated
	s.lastOrders = orders
	s.lastSimulated = simulated

	if err := kvutil.SetDB(ctx, s.db, ServerStateKey, s.state); err != nil {
		slog.Error("could not save server state (ignored)", "err", err)
	}
}
