// Copyright (c) 2025 BVK Chaitanya

package subcmds

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRunDryRunOverride(t *testing.T) {
	c := new(Run)
	name, fset, _ := c.Command()
	if name != "run" {
		t.Fatalf("want command name run, got %q", name)
	}
	if err := fset.Parse([]string{"-dry-run"}); err != nil {
		t.Fatal(err)
	}
	if !c.dryRun {
		t.Fatalf("-dry-run flag did not set the override")
	}

	// A live config without api keys only validates with the override.
	data := `
bot:
  frequency: 10
  order_amount_usd: "25"
  retry_after: 60
  min_initial_drop: 10
  min_additional_drop: 3
  dry_run: false
  tickers:
    - BTCUSDT
`
	c.configPath = filepath.Join(t.TempDir(), "buydips.yaml")
	if err := os.WriteFile(c.configPath, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := c.loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Bot.DryRun {
		t.Fatalf("want dry run mode forced on, got off")
	}

	c.dryRun = false
	if _, err := c.loadConfig(); err == nil {
		t.Fatalf("want a validation failure without api keys, got nil")
	}
}
