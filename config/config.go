// Copyright (c) 2025 BVK Chaitanya

// Package config loads and validates the bot's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// DefaultConfigName is the config file name inside the data directory.
const DefaultConfigName = "buydips.yaml"

type Config struct {
	Bot      Bot         `yaml:"bot"`
	Exchange Credentials `yaml:"exchange"`
	IM       IM          `yaml:"im"`
}

type Bot struct {
	// Frequency is the number of minutes between full price-check cycles.
	Frequency float64 `yaml:"frequency"`

	// OrderAmountUSD is the quote-asset amount of every buy order.
	OrderAmountUSD string `yaml:"order_amount_usd"`

	// RetryAfter is the number of minutes a ticker stays frozen after an
	// exchange failure before it is attempted again.
	RetryAfter float64 `yaml:"retry_after"`

	// MinInitialDrop is the percentage drop from the reference high that
	// triggers the first buy of a drop sequence.
	MinInitialDrop float64 `yaml:"min_initial_drop"`

	// MinAdditionalDrop is the percentage drop from the last order price that
	// triggers every subsequent buy of a drop sequence.
	MinAdditionalDrop float64 `yaml:"min_additional_drop"`

	DryRun bool `yaml:"dry_run"`

	Tickers []string `yaml:"tickers"`
}

type Credentials struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
}

type IM struct {
	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramChatID   int64  `yaml:"telegram_chat_id"`
}

// Read parses the config file at the given path without validating it.
// Callers that do not adjust the configuration should use Load instead.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file %q: %w", path, err)
	}
	c := new(Config)
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("could not parse config file %q: %w", path, err)
	}
	return c, nil
}

// Load reads and validates the config file at the given path.
func Load(path string) (*Config, error) {
	c, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := c.Check(); err != nil {
		return nil, fmt.Errorf("invalid config file %q: %w", path, err)
	}
	return c, nil
}

// Check validates the configuration. A non-nil error is fatal at startup.
func (c *Config) Check() error {
	if c.Bot.Frequency <= 0 {
		return fmt.Errorf("bot.frequency must be a positive number of minutes")
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(c.Bot.OrderAmountUSD))
	if err != nil {
		return fmt.Errorf("bot.order_amount_usd is not a valid number: %w", err)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("bot.order_amount_usd must be positive")
	}
	if c.Bot.RetryAfter < 0 {
		return fmt.Errorf("bot.retry_after cannot be negative")
	}
	if c.Bot.MinInitialDrop <= 0 || c.Bot.MinInitialDrop > 100 {
		return fmt.Errorf("bot.min_initial_drop must be in (0, 100]")
	}
	if c.Bot.MinAdditionalDrop <= 0 || c.Bot.MinAdditionalDrop > 100 {
		return fmt.Errorf("bot.min_additional_drop must be in (0, 100]")
	}
	if len(c.Bot.Tickers) == 0 {
		return fmt.Errorf("bot.tickers cannot be empty")
	}
	var tickers []string
	for _, t := range c.Bot.Tickers {
		symbol := strings.ToUpper(strings.TrimSpace(t))
		if len(symbol) == 0 {
			return fmt.Errorf("bot.tickers contains an empty symbol")
		}
		if slices.Contains(tickers, symbol) {
			return fmt.Errorf("bot.tickers contains %q more than once", symbol)
		}
		tickers = append(tickers, symbol)
	}
	c.Bot.Tickers = tickers

	if len(c.Exchange.APIKey) == 0 || len(c.Exchange.APISecret) == 0 {
		if !c.Bot.DryRun {
			return fmt.Errorf("exchange credentials are required unless bot.dry_run is true")
		}
	}
	if c.IM.TelegramChatID != 0 && len(c.IM.TelegramBotToken) == 0 {
		return fmt.Errorf("im.telegram_chat_id is set without im.telegram_bot_token")
	}
	return nil
}

// OrderAmount returns bot.order_amount_usd as a decimal. Check must have
// succeeded before calling this.
func (c *Config) OrderAmount() decimal.Decimal {
	return decimal.RequireFromString(strings.TrimSpace(c.Bot.OrderAmountUSD))
}

// CycleInterval returns the duration between full price-check cycles.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.Bot.Frequency * float64(time.Minute))
}

// RetryAfter returns the duration a failed ticker stays frozen.
func (c *Config) RetryAfter() time.Duration {
	return time.Duration(c.Bot.RetryAfter * float64(time.Minute))
}

// MinInitialDropPct returns bot.min_initial_drop as a decimal percentage.
func (c *Config) MinInitialDropPct() decimal.Decimal {
	return decimal.NewFromFloat(c.Bot.MinInitialDrop)
}

// MinAdditionalDropPct returns bot.min_additional_drop as a decimal
// percentage.
func (c *Config) MinAdditionalDropPct() decimal.Decimal {
	return decimal.NewFromFloat(c.Bot.MinAdditionalDrop)
}

// HasTelegram reports whether notifications are configured.
func (c *Config) HasTelegram() bool {
	return len(c.IM.TelegramBotToken) != 0
}

// Save writes the config to the given path with restrictive permissions.
func (c *Config) Save(path string) error {
	if err := c.Check(); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, os.FileMode(0600))
}
