// Package main runs the campaign pipeline as a long-lived service:
// - HTTP API and WebSocket status feed
// - Job dispatcher (create_agent, execute_trading)
// - Campaign feed poller, result sweeper, market janitor
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"airdrop-optimizer/internal/config"
	"airdrop-optimizer/internal/orchestrator"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath, envFile string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Evaluate airdrop campaigns and run trading agents",
		Long: `server accepts campaigns over HTTP or from a campaign feed, scores their
viability and runs a trading agent for every viable one until its volume
target is met. Progress is exposed over HTTP and a WebSocket feed.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, envFile)
			if err != nil {
				return err
			}
			if err := applyFlags(cmd, cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return run(cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "YAML configuration file")
	f.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	f.String("backend", "", "storage backend: memory, postgres, redis")
	f.String("http-addr", "", "HTTP listen address")
	f.Int("workers", 0, "job dispatcher workers")
	f.String("feed-url", "", "campaign feed URL")
	f.String("campaign-file", "", "campaign YAML file polled instead of a feed URL")
	f.Bool("manual-start", false, "leave agents initializing until started over HTTP")

	return cmd
}

// applyFlags overrides cfg with the flags set on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	var err error
	if f.Changed("backend") {
		cfg.Storage.Backend, err = f.GetString("backend")
	}
	if err == nil && f.Changed("http-addr") {
		cfg.HTTP.Addr, err = f.GetString("http-addr")
	}
	if err == nil && f.Changed("workers") {
		cfg.Queue.Workers, err = f.GetInt("workers")
	}
	if err == nil && f.Changed("feed-url") {
		cfg.Feed.URL, err = f.GetString("feed-url")
	}
	if err == nil && f.Changed("campaign-file") {
		cfg.Feed.File, err = f.GetString("campaign-file")
	}
	if err == nil && f.Changed("manual-start") {
		var manual bool
		manual, err = f.GetBool("manual-start")
		cfg.Trading.AutoStart = !manual
	}
	return err
}

func run(cfg *config.Config) error {
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orch, err := orchestrator.New(ctx, cfg, orchestrator.Options{
		Logger: log.New(os.Stdout, "[orchestrator] ", log.LstdFlags|log.Lshortfile),
	})
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}
	defer orch.Close()

	// Channel to signal completion
	done := make(chan struct{})
	defer close(done)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           orch.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpErr := make(chan error, 1)
	go func() {
		logger.Printf("Starting HTTP server on %s", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
			cancel()
		}
	}()

	err = orch.Run(ctx)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Printf("HTTP shutdown: %v", serr)
	}

	select {
	case herr := <-httpErr:
		return fmt.Errorf("http server: %w", herr)
	default:
	}
	if err != nil {
		return err
	}

	logger.Println("Shutdown complete")
	return nil
}
