// Copyright (c) 2025 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bvk/buydips/binance"
	"github.com/bvk/buydips/config"
	"github.com/visvasity/cli"
	"golang.org/x/term"
)

type Setup struct {
	dataDir     string
	configPath  string
	skipTesting bool

	frequency         float64
	orderAmount       string
	retryAfter        float64
	minInitialDrop    float64
	minAdditionalDrop float64
	dryRun            bool
	tickers           string

	apiKey string

	telegramBotToken string
	telegramChatID   int64
}

func (c *Setup) Purpose() string {
	return "Setup creates or replaces the yaml configuration file"
}

func (c *Setup) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("setup", flag.ContinueOnError)
	fset.StringVar(&c.dataDir, "data-dir", "", "path to the data directory")
	fset.StringVar(&c.configPath, "config-file", "", "path to the yaml configuration file")
	fset.BoolVar(&c.skipTesting, "skip-testing", false, "don't test the parameters")
	fset.Float64Var(&c.frequency, "frequency", 10, "minutes between full price-check cycles")
	fset.StringVar(&c.orderAmount, "order-amount-usd", "25", "quote amount for every buy order")
	fset.Float64Var(&c.retryAfter, "retry-after", 60, "minutes a ticker stays frozen after a failure")
	fset.Float64Var(&c.minInitialDrop, "min-initial-drop", 10, "percentage drop that triggers the first buy")
	fset.Float64Var(&c.minAdditionalDrop, "min-additional-drop", 3, "percentage drop that triggers further buys")
	fset.BoolVar(&c.dryRun, "dry-run", false, "when true orders are only simulated")
	fset.StringVar(&c.tickers, "tickers", "", "comma separated trading symbols (ex: BTCUSDT,ETHUSDT)")
	fset.StringVar(&c.apiKey, "api-key", "", "exchange API key; the secret is read from the terminal")
	fset.StringVar(&c.telegramBotToken, "telegram-bot-token", "", "telegram bot's authentication token")
	fset.Int64Var(&c.telegramChatID, "telegram-chat-id", 0, "telegram chat id receiving notifications")
	return "setup", fset, cli.CmdFunc(c.run)
}

func (c *Setup) Description() string {
	return `

Command "setup" writes the yaml configuration file used by the "run" command.

Exchange API keys are required unless dry-run mode is turned on. The API
secret is never taken on the command-line; it is prompted for on the terminal
with echo turned off:

  $ buydips setup --tickers=BTCUSDT,ETHUSDT --api-key=xxxx

Telegram parameters are optional and only needed for notifications.

`
}

func (c *Setup) run(ctx context.Context, args []string) error {
	if len(c.dataDir) == 0 {
		c.dataDir = filepath.Join(os.Getenv("HOME"), ".buydips")
	}
	if _, err := os.Stat(c.dataDir); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("could not stat data directory %q: %w", c.dataDir, err)
		}
		if err := os.MkdirAll(c.dataDir, 0700); err != nil {
			return fmt.Errorf("could not create data directory %q: %w", c.dataDir, err)
		}
	}
	dataDir, err := filepath.Abs(c.dataDir)
	if err != nil {
		return fmt.Errorf("could not determine data-dir %q absolute path: %w", c.dataDir, err)
	}
	if len(c.configPath) == 0 {
		c.configPath = filepath.Join(dataDir, config.DefaultConfigName)
	}

	if len(c.tickers) == 0 {
		return fmt.Errorf("--tickers flag is required")
	}

	var apiSecret string
	if len(c.apiKey) != 0 {
		fmt.Printf("Enter the API secret for key %q: ", c.apiKey)
		data, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("could not read the API secret: %w", err)
		}
		apiSecret = strings.TrimSpace(string(data))
	}

	cfg := &config.Config{
		Bot: config.Bot{
			Frequency:         c.frequency,
			OrderAmountUSD:    c.orderAmount,
			RetryAfter:        c.retryAfter,
			MinInitialDrop:    c.minInitialDrop,
			MinAdditionalDrop: c.minAdditionalDrop,
			DryRun:            c.dryRun,
			Tickers:           strings.Split(c.tickers, ","),
		},
		Exchange: config.Credentials{
			APIKey:    c.apiKey,
			APISecret: apiSecret,
		},
		IM: config.IM{
			TelegramBotToken: c.telegramBotToken,
			TelegramChatID:   c.telegramChatID,
		},
	}
	if err := cfg.Check(); err != nil {
		return err
	}

	if !c.skipTesting {
		// Attempt to authenticate with the exchange to validate the keys and
		// the ticker symbols.
		ex, err := binance.NewExchange(ctx, cfg.Exchange.APIKey, cfg.Exchange.APISecret, nil /* opts */)
		if err != nil {
			return err
		}
		defer ex.Close()
		unsupported, err := ex.CheckSymbols(ctx, cfg.Bot.Tickers)
		if err != nil {
			return err
		}
		if len(unsupported) != 0 {
			return fmt.Errorf("tickers %v are not supported for spot trading", unsupported)
		}
	}

	if err := cfg.Save(c.configPath); err != nil {
		return err
	}
	fmt.Printf("saved configuration to %s\n", c.configPath)
	return nil
}
