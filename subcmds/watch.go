// Copyright (c) 2025 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bvk/buydips/binance"
	"github.com/visvasity/cli"
	"github.com/visvasity/topic"
)

type Watch struct {
}

func (c *Watch) Purpose() string {
	return "Streams live prices for trading symbols"
}

func (c *Watch) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("watch", flag.ContinueOnError)
	return "watch", fset, cli.CmdFunc(c.run)
}

func (c *Watch) Description() string {
	return `

Command "watch" prints live price updates for the given symbols from the
exchange websocket feed until interrupted:

  $ buydips watch BTCUSDT ETHUSDT

`
}

func (c *Watch) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("needs one or more symbol arguments")
	}
	var symbols []string
	for _, arg := range args {
		symbols = append(symbols, strings.ToUpper(arg))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ex, err := binance.NewExchange(ctx, "", "", nil /* opts */)
	if err != nil {
		return err
	}
	defer ex.Close()

	if err := ex.WatchTickers(symbols); err != nil {
		return err
	}
	receiver, err := ex.SubscribeTickers()
	if err != nil {
		return err
	}
	defer receiver.Close()

	tickerCh, err := topic.ReceiveCh(receiver)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-tickerCh:
			if !ok {
				return nil
			}
			at := time.UnixMilli(event.EventUnixMilli).Format("15:04:05")
			fmt.Printf("%s %s %s\n", at, event.Symbol, event.ClosePrice.String())
		}
	}
}
