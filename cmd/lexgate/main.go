package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mpontes/lexgate/internal/analyzer"
	"github.com/mpontes/lexgate/internal/config"
	"github.com/mpontes/lexgate/internal/dispatch"
	"github.com/mpontes/lexgate/internal/llmproxy"
	"github.com/mpontes/lexgate/internal/natsbus"
	"github.com/mpontes/lexgate/internal/notify"
	"github.com/mpontes/lexgate/internal/resilience"
	"github.com/mpontes/lexgate/internal/scheduler"
	"github.com/mpontes/lexgate/internal/store"
	"github.com/mpontes/lexgate/internal/vault"
	"github.com/mpontes/lexgate/internal/web"
	"github.com/mpontes/lexgate/internal/worker"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("lexgate %s\n", version)
	case "gateway":
		if err := runGateway(); err != nil {
			slog.Error("gateway failed", "error", err)
			os.Exit(1)
		}
	case "backup":
		if err := runBackup(os.Args[2:]); err != nil {
			slog.Error("backup failed", "error", err)
			os.Exit(1)
		}
	case "restore":
		if err := runRestore(os.Args[2:]); err != nil {
			slog.Error("restore failed", "error", err)
			os.Exit(1)
		}
	case "vault":
		if err := runVault(os.Args[2:]); err != nil {
			slog.Error("vault failed", "error", err)
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: lexgate <command>\n\nCommands:\n  gateway    Start the lexgate gateway service\n  backup     Archive the data directory to a tar.zst file\n  restore    Restore a data directory archive\n  vault      Manage encrypted provider secrets\n  version    Print version\n")
}

func runGateway() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("starting lexgate gateway", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SQLite store
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()
	slog.Info("store initialized", "path", cfg.Store.Path)

	// Encrypted provider keys override plain env/config keys
	if cfg.Vault.Passphrase != "" {
		loadSecretKeys(db, vault.New(cfg.Vault.Passphrase), cfg)
	}

	// Embedded NATS
	bus, err := natsbus.New(cfg.NATS)
	if err != nil {
		return fmt.Errorf("init nats: %w", err)
	}
	defer bus.Close()
	slog.Info("nats started", "port", cfg.NATS.Port)

	nc, err := natsbus.NewClient(bus)
	if err != nil {
		return fmt.Errorf("init nats client: %w", err)
	}
	defer nc.Close()

	// Gemini analyzer for queued tasks
	gem := cfg.Providers.Gemini
	an := analyzer.New(gem.APIKey, gem.BaseURL, gem.DefaultModel, gem.Timeout,
		resilience.ExponentialPolicy(gem.RetryAttempts, gem.RetryBaseDelay, gem.RetryMaxDelay))
	dispatcher := dispatch.New(an)

	// Queue worker
	wkr := worker.New(db, dispatcher, nc, cfg.Worker)
	go wkr.Run(ctx)

	// Cron sweeps
	sched, err := scheduler.New(wkr, cfg.Scheduler)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	sched.Start(ctx)

	// Streaming gateway with usage telemetry on the bus
	gateway := llmproxy.FromConfig(cfg.Providers, func(u llmproxy.Usage) {
		if err := nc.PublishJSON(natsbus.TopicStreamUsage, u); err != nil {
			slog.Warn("publish stream usage", "error", err)
		}
	})

	// Telegram alerts
	if cfg.Notify.TelegramToken != "" {
		notifier, err := notify.New(cfg.Notify)
		if err != nil {
			return fmt.Errorf("init telegram notifier: %w", err)
		}
		if err := notifier.Subscribe(ctx, nc); err != nil {
			return fmt.Errorf("subscribe telegram notifier: %w", err)
		}
		slog.Info("telegram notifier started")
	} else {
		slog.Warn("telegram token not set, notifications disabled")
	}

	// Web API
	if cfg.Web.Enabled {
		srv := web.NewServer(db, bus, wkr, dispatcher, gateway, cfg.Web, cfg.Worker, version)
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("web server error", "error", err)
			}
		}()
		slog.Info("web server started", "port", cfg.Web.Port)
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)
	cancel()

	return nil
}

// loadSecretKeys replaces provider credentials with their encrypted-at-rest
// counterparts when present in the store.
func loadSecretKeys(db *store.Store, v *vault.Vault, cfg *config.Config) {
	if key, err := db.GetSecret(v, secretOpenAIKey); err != nil {
		slog.Warn("read openai key from vault", "error", err)
	} else if key != "" {
		cfg.Providers.OpenAI.APIKey = key
	}
	if key, err := db.GetSecret(v, secretGeminiKey); err != nil {
		slog.Warn("read gemini key from vault", "error", err)
	} else if key != "" {
		cfg.Providers.Gemini.APIKey = key
	}
	if tok, err := db.GetSecret(v, secretTelegramToken); err != nil {
		slog.Warn("read telegram token from vault", "error", err)
	} else if tok != "" {
		cfg.Notify.TelegramToken = tok
	}
}
