// Copyright (c) 2025 BVK Chaitanya

package subcmds

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"path"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bvk/buydips/dipper"
	"github.com/bvk/buydips/gobs"
	"github.com/bvk/buydips/kvutil"
	"github.com/bvk/buydips/subcmds/cmdutil"
	"github.com/bvkgo/kv"
	"github.com/visvasity/cli"
)

type Orders struct {
	cmdutil.DBFlags

	symbol string

	limit int
}

func (c *Orders) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("orders", flag.ContinueOnError)
	c.DBFlags.SetFlags(fset)
	fset.StringVar(&c.symbol, "symbol", "", "only print orders for this trading symbol")
	fset.IntVar(&c.limit, "limit", 0, "max number of newest orders to print (0=all)")
	return "orders", fset, cli.CmdFunc(c.run)
}

func (c *Orders) Purpose() string {
	return "Prints buy orders recorded in the journal"
}

var errStopIter = errors.New("stop iteration")

func (c *Orders) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("command takes no arguments")
	}

	db, closer, err := c.DBFlags.GetDatabase(ctx)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	keyspace := dipper.OrdersKeyspace
	if len(c.symbol) != 0 {
		keyspace = path.Join(dipper.OrdersKeyspace, strings.ToUpper(c.symbol)) + "/"
	}
	begin, end := kvutil.PathRange(keyspace)

	// Early stop on the limit is only valid within one symbol keyspace;
	// across symbols the keys are symbol-major, not time ordered.
	var records []*gobs.OrderRecord
	collect := func(ctx context.Context, r kv.Reader, key string, rec *gobs.OrderRecord) error {
		records = append(records, rec)
		if len(c.symbol) != 0 && c.limit > 0 && len(records) >= c.limit {
			return errStopIter
		}
		return nil
	}
	if err := kvutil.DescendDB(ctx, db, begin, end, collect); err != nil && !errors.Is(err, errStopIter) {
		return err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Time.After(records[j].CreatedAt.Time)
	})
	if c.limit > 0 && len(records) > c.limit {
		records = records[:c.limit]
	}

	stdout := cli.Stdout(ctx)
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSYMBOL\tPRICE\tQUOTE-SIZE\tDROP\tSEQ\tKIND")
	for _, rec := range records {
		kind := "order"
		if rec.DryRun {
			kind = "dry-run"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s%%\t%d\t%s\n",
			rec.CreatedAt.Format(time.RFC3339), rec.Symbol, rec.Price.String(),
			rec.QuoteSize.String(), rec.DropPct.StringFixed(2), rec.DropCount, kind)
	}
	return tw.Flush()
}
