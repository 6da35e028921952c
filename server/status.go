// Copyright (c) 2025 BVK Chaitanya

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"sort"
	"time"

	"github.com/bvk/buydips/dipper"
	"github.com/bvk/buydips/gobs"
	"github.com/bvk/buydips/kvutil"
	"github.com/bvkgo/kv"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/visvasity/cli"
)

// Status is the bot's point-in-time summary returned by the /status http
// endpoint and the telegram status command.
type Status struct {
	PID int `json:"pid"`

	Uptime string `json:"uptime"`

	CPUPercent float64 `json:"cpu_percent"`
	MemoryRSS  uint64  `json:"memory_rss"`

	DryRun bool `json:"dry_run"`

	TotalCycles    int64 `json:"total_cycles"`
	TotalOrders    int64 `json:"total_orders"`
	TotalSimulated int64 `json:"total_simulated"`

	Tickers []*dipper.Status `json:"tickers"`
}

func (s *Server) Status() *Status {
	s.mu.Lock()
	v := &Status{
		PID:            os.Getpid(),
		Uptime:         time.Since(s.start).Round(time.Second).String(),
		DryRun:         s.cfg.Bot.DryRun,
		TotalCycles:    s.state.TotalCycles,
		TotalOrders:    s.state.TotalOrders,
		TotalSimulated: s.state.TotalSimulated,
		Tickers:        s.statuses,
	}
	s.mu.Unlock()

	if p, err := process.NewProcess(int32(v.PID)); err == nil {
		if cpu, err := p.CPUPercent(); err == nil {
			v.CPUPercent = cpu
		}
		if mem, err := p.MemoryInfo(); err == nil {
			v.MemoryRSS = mem.RSS
		}
	}
	return v
}

// StatusHandler returns the http handler serving the bot status as JSON.
func (s *Server) StatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		e := json.NewEncoder(w)
		e.SetIndent("", "  ")
		if err := e.Encode(s.Status()); err != nil {
			slog.Error("could not encode status response (ignored)", "err", err)
		}
	})
}

func (s *Server) statusTelegramCmd(ctx context.Context, args []string) error {
	stdout := cli.Stdout(ctx)
	v := s.Status()

	fmt.Fprintf(stdout, "uptime %s cycles %d orders %d", v.Uptime, v.TotalCycles, v.TotalOrders)
	if v.DryRun {
		fmt.Fprintf(stdout, " simulated %d (dry run)", v.TotalSimulated)
	}
	fmt.Fprintln(stdout)

	for _, t := range v.Tickers {
		if t.State == nil {
			fmt.Fprintf(stdout, "%s: waiting for the first price\n", t.Symbol)
			continue
		}
		fmt.Fprintf(stdout, "%s: high %s", t.Symbol, t.State.ReferenceHigh.String())
		if t.State.DropCount > 0 {
			fmt.Fprintf(stdout, " drops %d last-buy %s", t.State.DropCount, t.State.LastOrderPrice.String())
		}
		if !t.FrozenUntil.IsZero() && time.Now().Before(t.FrozenUntil) {
			fmt.Fprintf(stdout, " frozen-until %s", t.FrozenUntil.Format(time.RFC3339))
		}
		fmt.Fprintln(stdout)
	}
	return nil
}

var errStopIter = errors.New("stop iteration")

// recentOrders returns the newest order records across all symbols, newest
// first. Journal keys are symbol-major, so each symbol keyspace is scanned
// separately and the results are merged by timestamp.
func recentOrders(ctx context.Context, db kv.Database, symbols []string, limit int) ([]*gobs.OrderRecord, error) {
	var records []*gobs.OrderRecord
	for _, symbol := range symbols {
		var count int
		collect := func(ctx context.Context, r kv.Reader, key string, rec *gobs.OrderRecord) error {
			records = append(records, rec)
			if count++; count >= limit {
				return errStopIter
			}
			return nil
		}
		begin, end := kvutil.PathRange(path.Join(dipper.OrdersKeyspace, symbol) + "/")
		if err := kvutil.DescendDB(ctx, db, begin, end, collect); err != nil && !errors.Is(err, errStopIter) {
			return nil, err
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Time.After(records[j].CreatedAt.Time)
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *Server) recentTelegramCmd(ctx context.Context, args []string) error {
	stdout := cli.Stdout(ctx)

	records, err := recentOrders(ctx, s.db, s.cfg.Bot.Tickers, 10)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Fprintln(stdout, "no orders in the journal")
		return nil
	}
	for _, rec := range records {
		kind := "bought"
		if rec.DryRun {
			kind = "would buy"
		}
		fmt.Fprintf(stdout, "%s %s %s of %s at %s (%s%% drop #%d)\n",
			rec.CreatedAt.Format("2006-01-02 15:04:05"), kind, rec.QuoteSize.String(),
			rec.Symbol, rec.Price.String(), rec.DropPct.StringFixed(2), rec.DropCount)
	}
	return nil
}
