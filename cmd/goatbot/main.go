package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"goatbot/internal/bus"
	"goatbot/internal/command"
	"goatbot/internal/config"
	"goatbot/internal/dashboard"
	"goatbot/internal/dispatch"
	"goatbot/internal/event"
	"goatbot/internal/instagram"
	"goatbot/internal/metrics"
	"goatbot/internal/poller"
	"goatbot/internal/store"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	version    = "0.3.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "goatbot",
		Short: "GoatBot: Instagram DM command bot",
		Long:  "GoatBot polls Instagram direct-message inboxes and dispatches prefixed commands across multiple accounts.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.goatbot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(doctorCmd())

	daemon := &cobra.Command{Use: "daemon", Short: "Manage the background service"}
	daemon.AddCommand(installDaemonCmd())
	daemon.AddCommand(uninstallDaemonCmd())
	root.AddCommand(daemon)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config directory with defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			logger.Info("next: add an account with its session file to the config, then run 'goatbot run'")
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start polling all configured accounts",
		RunE:  runBot,
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, nil
}

// setupLogger replaces the bootstrap logger per the config's logging section.
func setupLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	out := io.Writer(os.Stderr)
	cleanup := func() {}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, f)
		cleanup = func() { f.Close() }
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), cleanup, nil
}

// accountRuntime tracks one account's poller for status reporting.
type accountRuntime struct {
	username string
	poller   *poller.Poller
}

func runBot(cmd *cobra.Command, args []string) error {
	// .env values feed the ${VAR} expansions in the config file.
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, cleanup, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	logger = log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	profiles, err := store.NewSQLiteStore(cfg.Store.DBPath, log)
	if err != nil {
		return err
	}
	defer profiles.Close()

	registry := command.NewRegistry(log)
	if err := command.RegisterBuiltins(registry, command.BuiltinDeps{
		StartTime: time.Now(),
		Version:   version,
		Store:     profiles,
	}); err != nil {
		return err
	}
	if cfg.Commands.ManifestPath != "" {
		manifest, err := command.LoadManifest(cfg.Commands.ManifestPath)
		if err != nil {
			return fmt.Errorf("load command manifest: %w", err)
		}
		manifest.Apply(registry, log)
	}
	for _, name := range cfg.Commands.Disabled {
		registry.Unregister(name)
	}
	log.Info("commands ready", "count", registry.Len())

	sink := bus.New(log)
	gate := dispatch.NewGate(cfg.Bot.AdminIDs, profiles, log)

	pollOpts := poller.Options{
		Floor:    time.Duration(cfg.Poll.FloorMs) * time.Millisecond,
		Ceiling:  time.Duration(cfg.Poll.CeilingMs) * time.Millisecond,
		Jitter:   time.Duration(cfg.Poll.JitterMs) * time.Millisecond,
		DedupCap: cfg.Poll.DedupCacheCap,
	}

	var accounts []*accountRuntime
	g, gctx := errgroup.WithContext(ctx)

	for _, acct := range cfg.Accounts {
		if acct.Disabled {
			log.Info("account disabled, skipping", "account", acct.Username)
			continue
		}
		session, err := instagram.LoadSession(acct.SessionFile)
		if err != nil {
			return fmt.Errorf("account %s: %w", acct.Username, err)
		}
		client := instagram.NewClient(session, log.With("account", acct.Username))

		// Cooldown windows are per account, like the dedup cache: a sender
		// throttled on one account stays free to use the others.
		cooldowns := dispatch.NewCooldownTracker()
		cooldowns.StartSweeper(1 * time.Hour)
		defer cooldowns.Stop()

		exec := dispatch.NewExecutor(dispatch.Options{
			Account:                acct.Username,
			Prefix:                 cfg.Bot.Prefix,
			DefaultCooldownSeconds: cfg.Bot.DefaultCooldownSeconds,
			Registry:               registry,
			Gate:                   gate,
			Cooldowns:              cooldowns,
			Store:                  profiles,
			Transport:              client,
			Sink:                   sink,
			Logger:                 log.With("account", acct.Username),
		})

		normalizer := event.NewNormalizer(client.SelfID(), log.With("account", acct.Username))
		p := poller.New(acct.Username, client, normalizer, exec.Dispatch, pollOpts, log)
		accounts = append(accounts, &accountRuntime{username: acct.Username, poller: p})

		g.Go(func() error {
			metrics.ActiveAccounts.Inc()
			defer metrics.ActiveAccounts.Dec()
			// An expired session stops only this account; the rest
			// keep polling.
			if err := p.Run(gctx); err != nil {
				log.Error("account poller stopped", "account", acct.Username, "err", err)
				sink.Publish(bus.Record{
					Timestamp: time.Now(), Kind: "poll",
					Account: acct.Username, Outcome: "stopped",
					Fields: map[string]any{"error": err.Error()},
				})
			}
			return nil
		})
	}

	if len(accounts) == 0 {
		return fmt.Errorf("no enabled accounts configured; edit %s", resolveConfigPath())
	}
	log.Info("goatbot started", "version", version, "accounts", len(accounts), "prefix", cfg.Bot.Prefix)

	if cfg.Dashboard.Enabled {
		dash := dashboard.New(dashboard.Options{
			Host:     cfg.Dashboard.Host,
			Port:     cfg.Dashboard.Port,
			Store:    profiles,
			Sink:     sink,
			Registry: registry,
			Accounts: func() []dashboard.AccountStatus {
				out := make([]dashboard.AccountStatus, 0, len(accounts))
				for _, a := range accounts {
					out = append(out, dashboard.AccountStatus{
						Username: a.username,
						State:    a.poller.State().String(),
					})
				}
				return out
			},
			Version: version,
			Logger:  log,
		})
		g.Go(func() error { return dash.Run(gctx) })
	}

	return g.Wait()
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false, "err", err)
				return nil
			}
			logger.Info("config", "path", cfgPath, "loaded", true)
			logger.Info("bot", "prefix", cfg.Bot.Prefix, "admins", len(cfg.Bot.AdminIDs))
			enabled := 0
			for _, acct := range cfg.Accounts {
				if !acct.Disabled {
					enabled++
				}
				logger.Info("account", "username", acct.Username, "session", acct.SessionFile, "disabled", acct.Disabled)
			}
			logger.Info("accounts", "total", len(cfg.Accounts), "enabled", enabled)
			if cfg.Dashboard.Enabled {
				logger.Info("dashboard", "addr", fmt.Sprintf("%s:%d", cfg.Dashboard.Host, cfg.Dashboard.Port))
			}
			return nil
		},
	}
}
