package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/benaskins/keyguard/internal/api"
	"github.com/benaskins/keyguard/internal/config"
	"github.com/benaskins/keyguard/internal/keychain"
	"github.com/benaskins/keyguard/internal/logbuf"
	"github.com/benaskins/keyguard/internal/metrics"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the keyguard daemon",
	Long:  "Serve the secret store over a Unix socket so that every client shares one gate.",
	RunE:  runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	path := resolvedConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	logs := logbuf.New(1000)
	slog.SetDefault(slog.New(slog.NewTextHandler(io.MultiWriter(os.Stderr, logs), nil)))

	slog.Info("keyguard daemon starting", "backend", cfg.Backend, "config", path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	store, closeStore, err := openStore(cfg, "daemon", keychain.WithObserver(collector))
	if err != nil {
		return err
	}
	defer closeStore()

	// Scope changes apply to the shared store; prefix and backend need a restart.
	go func() {
		err := config.Watch(ctx, path, func(next *config.Config) {
			store.Store().SetScope(next.AccessGroup, next.Synchronizable)
			slog.Info("config reloaded", "access_group", next.AccessGroup, "synchronizable", next.Synchronizable)
		})
		if err != nil {
			slog.Warn("config watch disabled", "error", err)
		}
	}()

	socketPath := cfg.Socket
	// Remove stale socket
	os.Remove(socketPath)
	if err := os.MkdirAll(filepath.Dir(socketPath), 0700); err != nil {
		return fmt.Errorf("creating socket dir: %w", err)
	}

	srv := api.NewServer(store, api.Options{
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
		Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logs:      logs,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenUnix(socketPath)
	}()

	slog.Info("keyguard daemon ready", "socket", socketPath)

	select {
	case sig := <-sigCh:
		slog.Info("received signal, shutting down", "signal", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server error", "error", err)
		}
	}

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	srv.Shutdown(shutdownCtx)
	os.Remove(socketPath)

	slog.Info("keyguard daemon stopped")
	return nil
}

func defaultSocketPath() string {
	return config.Default().Socket
}
