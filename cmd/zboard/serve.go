package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dreamware/zboard/internal/api"
	"github.com/dreamware/zboard/internal/board"
	"github.com/dreamware/zboard/internal/config"
	"github.com/dreamware/zboard/internal/events"
	"github.com/dreamware/zboard/internal/storage"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(verbose *bool) *cobra.Command {
	var (
		configPath string
		listen     string
		backend    string
		dsn        string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the board over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			// Flags are the last configuration layer
			flags := cmd.Flags()
			if flags.Changed("listen") {
				cfg.Listen = listen
			}
			if flags.Changed("backend") {
				cfg.Backend = config.Backend(backend)
			}
			if flags.Changed("dsn") {
				cfg.DSN = dsn
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger := loggerFromContext(cmd.Context())
			if !*verbose {
				level, _ := cfg.Level()
				logger.SetLevel(level)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (.toml, .yaml)")
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides ZBOARD_LISTEN)")
	cmd.Flags().StringVar(&backend, "backend", "", "memory, sqlite or postgres (overrides ZBOARD_BACKEND)")
	cmd.Flags().StringVar(&dsn, "dsn", "", "database file or connection string (overrides ZBOARD_DSN)")
	return cmd
}

// app is the wired service: store, change feed and HTTP handler
type app struct {
	store   storage.Store
	hub     *events.Hub
	api     *api.Server
	closers []func() error
}

// newApp opens the configured backend and wires everything on top of it.
// With Redis configured, writes publish to the shared channel and a relay
// feeds that channel back into the local hub.
func newApp(ctx context.Context, cfg config.Config, logger *log.Logger) (*app, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{store: store, hub: events.NewHub(events.DefaultBuffer)}
	a.closers = append(a.closers, store.Close)

	var publisher events.Publisher = a.hub
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		a.closers = append(a.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			a.close(logger)
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
		}

		sub := rdb.Subscribe(ctx, cfg.Redis.Channel)
		a.closers = append([]func() error{sub.Close}, a.closers...)
		go events.Relay(ctx, sub.Channel(), a.hub, logger)

		publisher = events.NewRedisPublisher(rdb, cfg.Redis.Channel)
		logger.Info("change feed shared through redis", "addr", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
	}

	svc := board.NewService(store, board.WithLogger(logger), board.WithPublisher(publisher))
	a.api = api.NewServer(svc,
		api.WithLogger(logger),
		api.WithRetry(api.RetryPolicy{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			InitialInterval: cfg.Retry.InitialInterval,
		}),
		api.WithFeed(a.hub))
	return a, nil
}

func (a *app) close(logger *log.Logger) {
	for _, c := range a.closers {
		if err := c(); err != nil {
			logger.Warn("closing", "err", err)
		}
	}
}

func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return storage.NewMemoryStore(), nil
	case config.BackendSQLite:
		return storage.OpenSQL(ctx, storage.DialectSQLite, cfg.DSN)
	case config.BackendPostgres:
		return storage.OpenSQL(ctx, storage.DialectPostgres, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// serve runs the HTTP server until ctx is done, then shuts down gracefully
func serve(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return serveOn(ctx, ln, cfg, logger)
}

func serveOn(ctx context.Context, ln net.Listener, cfg config.Config, logger *log.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer a.close(logger)

	// Configure HTTP server with security timeouts
	srv := &http.Server{
		Handler:           a.api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv.RegisterOnShutdown(a.api.Close)

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", ln.Addr().String(), "backend", cfg.Backend)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
	logger.Info("stopped")
	return nil
}
