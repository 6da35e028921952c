// Copyright (c) 2025 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/bvk/buydips/server"
	"github.com/bvk/buydips/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type Status struct {
	cmdutil.ClientFlags
}

func (c *Status) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("status", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	return "status", fset, cli.CmdFunc(c.run)
}

func (c *Status) Purpose() string {
	return "Prints the running daemon's summary and per-ticker state"
}

func (c *Status) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("command takes no arguments")
	}

	v, err := cmdutil.Get[server.Status](ctx, &c.ClientFlags, "/status")
	if err != nil {
		return fmt.Errorf("is the daemon running? could not fetch status: %w", err)
	}

	stdout := cli.Stdout(ctx)
	fmt.Fprintf(stdout, "pid: %d\n", v.PID)
	fmt.Fprintf(stdout, "uptime: %s\n", v.Uptime)
	fmt.Fprintf(stdout, "cpu: %.2f%%\n", v.CPUPercent)
	fmt.Fprintf(stdout, "rss: %d\n", v.MemoryRSS)
	fmt.Fprintf(stdout, "cycles: %d\n", v.TotalCycles)
	if v.DryRun {
		fmt.Fprintf(stdout, "simulated orders: %d (dry run)\n", v.TotalSimulated)
	} else {
		fmt.Fprintf(stdout, "orders: %d\n", v.TotalOrders)
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TICKER\tREFERENCE-HIGH\tLAST-BUY\tDROPS\tFROZEN-UNTIL")
	for _, t := range v.Tickers {
		high, lastBuy := "-", "-"
		drops := 0
		if t.State != nil {
			high = t.State.ReferenceHigh.String()
			drops = t.State.DropCount
			if drops > 0 {
				lastBuy = t.State.LastOrderPrice.String()
			}
		}
		frozen := "-"
		if !t.FrozenUntil.IsZero() && time.Now().Before(t.FrozenUntil) {
			frozen = t.FrozenUntil.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", t.Symbol, high, lastBuy, drops, frozen)
	}
	return tw.Flush()
}
