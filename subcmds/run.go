// Copyright (c) 2025 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bvk/buydips/binance"
	"github.com/bvk/buydips/config"
	"github.com/bvk/buydips/ctxutil"
	"github.com/bvk/buydips/daemonize"
	"github.com/bvk/buydips/httputil"
	"github.com/bvk/buydips/server"
	"github.com/bvk/buydips/subcmds/cmdutil"
	"github.com/bvk/buydips/telegram"
	"github.com/bvkgo/kv/kvhttp"
	"github.com/bvkgo/kvbadger"
	"github.com/dgraph-io/badger/v4"
	"github.com/nightlyone/lockfile"
	"github.com/visvasity/cli"
	"github.com/visvasity/sglog"
)

type Run struct {
	cmdutil.ServerFlags

	background bool

	restart         bool
	shutdownTimeout time.Duration

	noPprof bool

	debug bool

	dryRun bool

	configPath string
	dataDir    string
}

func (c *Run) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("run", flag.ContinueOnError)
	c.ServerFlags.SetFlags(fset)
	fset.BoolVar(&c.background, "background", false, "runs the daemon in background")
	fset.BoolVar(&c.restart, "restart", false, "when true, kills any old instance")
	fset.DurationVar(&c.shutdownTimeout, "shutdown-timeout", 30*time.Second, "max timeout for shutdown when restarting")
	fset.BoolVar(&c.noPprof, "no-pprof", false, "when true net/http/pprof handler is not registered")
	fset.BoolVar(&c.debug, "debug", false, "when true debug level logs are enabled")
	fset.BoolVar(&c.dryRun, "dry-run", false, "when true orders are only simulated regardless of the configuration")
	fset.StringVar(&c.configPath, "config-file", "", "path to the yaml configuration file")
	fset.StringVar(&c.dataDir, "data-dir", "", "path to the data directory")
	return "run", fset, cli.CmdFunc(c.run)
}

func (c *Run) Purpose() string {
	return "Runs the buydips daemon in foreground or background"
}

func (c *Run) Description() string {
	return `

Command "run" starts the buydips service. The service fetches prices for the
configured tickers periodically and places market buy orders when prices drop
by the configured percentages.

CONFIGURATION FILE

The service reads a yaml configuration file from the data directory (or the
-config-file path). Use the "setup" command to create one. Exchange API keys
are required unless dry_run mode is turned on. The -dry-run flag forces
simulation mode without editing the configuration file.

`
}

// loadConfig reads the config file and applies the command line overrides.
// The -dry-run flag can force simulation mode even when the file configures
// live trading without api keys.
func (c *Run) loadConfig() (*config.Config, error) {
	cfg, err := config.Read(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.dryRun {
		cfg.Bot.DryRun = true
	}
	if err := cfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid config file %q: %w", c.configPath, err)
	}
	return cfg, nil
}

func (c *Run) run(ctx context.Context, args []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

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
	cfg, err := c.loadConfig()
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}

	if ip := net.ParseIP(c.IP); ip == nil {
		return fmt.Errorf("invalid ip address")
	}
	if c.Port <= 0 {
		return fmt.Errorf("invalid port number")
	}
	addr := &net.TCPAddr{
		IP:   net.ParseIP(c.IP),
		Port: c.Port,
	}

	// Health checker for the background process initialization.
	check := func(ctx context.Context) error {
		client := http.Client{Timeout: time.Second}
		resp, err := client.Get(fmt.Sprintf("http://%s/pid", addr.String()))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("http status: %d", resp.StatusCode)
		}
		return nil
	}

	if c.background {
		if err := daemonize.Daemonize(ctx, check); err != nil {
			return err
		}
	}

	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("could not create log directory %q: %w", logDir, err)
	}
	backend := sglog.NewBackend(&sglog.Options{
		LogDirs: []string{logDir},
	})
	defer backend.Close()
	slog.SetDefault(slog.New(backend.Handler()))
	if c.debug {
		backend.SetLevel(slog.LevelDebug)
	}

	log.SetFlags(log.Flags() | log.Lmicroseconds)
	log.Printf("using data directory %s and config file %s", dataDir, c.configPath)

	lockPath := filepath.Join(dataDir, "buydips.lock")
	flock, err := lockfile.New(lockPath)
	if err != nil {
		return fmt.Errorf("could not create lock file %q: %w", lockPath, err)
	}
	if err := flock.TryLock(); err != nil {
		if !c.restart {
			return fmt.Errorf("could not get lock on file %q: %w", lockPath, err)
		}
		owner, err := flock.GetOwner()
		if err != nil {
			return fmt.Errorf("could not get current owner of the lock file: %w", err)
		}
		if err := owner.Signal(os.Interrupt); err == nil {
			log.Printf("waiting for the previous instance to shutdown")
			if err := ctxutil.RetryTimeout(ctx, time.Second, c.shutdownTimeout, flock.TryLock); err != nil {
				if err := owner.Signal(os.Kill); err != nil {
					return fmt.Errorf("could not kill current owner of the lock file: %w", err)
				}
				ctxutil.Sleep(ctx, time.Millisecond)
			}
		}
		if err := flock.TryLock(); err != nil {
			return fmt.Errorf("could not get lock on file %q after killing previous instance: %w", lockPath, err)
		}
	}
	defer flock.Unlock()

	// Start the HTTP server.
	s, err := httputil.New(nil /* opts */)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.StartTCP(ctx, addr); err != nil {
		return fmt.Errorf("could not start http server on %s: %w", addr, err)
	}

	s.AddHandler("/pid", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, fmt.Sprintf("%d", os.Getpid()))
	}))

	if !c.noPprof {
		s.AddHandler("/debug/pprof/heap", pprof.Handler("heap"))
		s.AddHandler("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		s.AddHandler("/debug/pprof/allocs", pprof.Handler("allocs"))
		s.AddHandler("/debug/pprof/block", pprof.Handler("block"))
		s.AddHandler("/debug/pprof/mutex", pprof.Handler("mutex"))
	}

	// Open the database.
	bopts := badger.DefaultOptions(filepath.Join(dataDir, "db"))
	bdb, err := badger.Open(bopts)
	if err != nil {
		return fmt.Errorf("could not open the database: %w", err)
	}
	defer bdb.Close()
	db := kvbadger.New(bdb, cmdutil.IsGoodKey)

	s.AddHandler("/db/", http.StripPrefix("/db", kvhttp.Handler(db)))

	// Connect to the telegram service when configured.
	var tgc *telegram.Client
	if cfg.HasTelegram() {
		secrets := &telegram.Secrets{
			BotToken: cfg.IM.TelegramBotToken,
			ChatID:   cfg.IM.TelegramChatID,
		}
		v, err := telegram.New(ctx, db, secrets)
		if err != nil {
			return fmt.Errorf("could not create telegram client: %w", err)
		}
		defer v.Close()
		tgc = v
	}

	// Connect to the exchange. Dry run mode works without API keys.
	ex, err := binance.NewExchange(ctx, cfg.Exchange.APIKey, cfg.Exchange.APISecret, nil /* opts */)
	if err != nil {
		return fmt.Errorf("could not create exchange client: %w", err)
	}
	defer ex.Close()

	svr, err := server.New(ctx, nil /* opts */, cfg, db, ex, tgc)
	if err != nil {
		return err
	}
	defer svr.Close()

	s.AddHandler("/status", svr.StatusHandler())

	log.Printf("started buydips server at %s", addr)

	<-ctx.Done()
	log.Printf("buydips server is shutting down")
	return nil
}
