package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/rehearsal"
	"github.com/aretw0/rehearsal/internal/config"
	"github.com/aretw0/rehearsal/pkg/adapters/memory"
	httpAdapter "github.com/aretw0/rehearsal/pkg/adapters/http"
	"github.com/aretw0/rehearsal/pkg/adapters/redis"
	"github.com/aretw0/rehearsal/pkg/observability"
	"github.com/aretw0/rehearsal/pkg/persistence/middleware"
	"github.com/aretw0/rehearsal/pkg/ports"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the results HTTP server",
		Long: `Serves stored test results, a live SSE stream of finished tests and
Prometheus metrics. Results are kept in Redis when redis.addr is configured
and in memory otherwise. With --demo the built-in scenarios run once at
startup so the API has something to show.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.HTTP.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			backend, locker, closeStore := openStore(cfg, logger)
			defer closeStore()
			store, err := protectResults(cfg.Results, backend)
			if err != nil {
				return err
			}

			metrics := observability.NewMetrics()
			server := httpAdapter.NewServer(store,
				httpAdapter.WithMetrics(metrics.Handler()),
				httpAdapter.WithVersion(rehearsal.Version),
				httpAdapter.WithLogger(logger))

			engine, err := rehearsal.New(
				rehearsal.WithConfig(cfg),
				rehearsal.WithLogger(logger),
				rehearsal.WithResultStore(store),
				rehearsal.WithLocker(locker, 0),
				rehearsal.WithLifecycleHooks(metrics.Hooks()),
				rehearsal.WithLifecycleHooks(server.Streams.Hooks()),
			)
			if err != nil {
				return err
			}

			listener, err := net.Listen("tcp", cfg.HTTP.Addr)
			if err != nil {
				return fmt.Errorf("listening on %s: %w", cfg.HTTP.Addr, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Starting Rehearsal Server on %s\n", listener.Addr())

			if runDemo, _ := cmd.Flags().GetBool("demo"); runDemo {
				go func() {
					if _, err := runScenarios(ctx, engine, scenarios); err != nil {
						logger.Error("demo scenarios failed", "error", err)
					}
				}()
			}

			return serve(ctx, &http.Server{Handler: server.Handler()}, listener, logger)
		},
	}
	cmd.Flags().String("addr", "", "Address to listen on (overrides http.addr)")
	cmd.Flags().Bool("demo", false, "Run the built-in scenarios once at startup")
	return cmd
}

// openStore selects the Redis store and locker when configured, or the
// in-memory ones otherwise.
func openStore(cfg *config.Config, logger *slog.Logger) (ports.ResultStore, ports.Locker, func()) {
	if cfg.Redis.Addr == "" {
		logger.Info("keeping results in memory")
		return memory.NewStore(), memory.NewLocker(), func() {}
	}

	var opts []redis.Option
	if cfg.Redis.Prefix != "" {
		opts = append(opts, redis.WithPrefix(cfg.Redis.Prefix))
	}
	if cfg.Redis.TTL > 0 {
		opts = append(opts, redis.WithTTL(cfg.Redis.TTL))
	}
	store := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, opts...)
	logger.Info("keeping results in redis", "addr", cfg.Redis.Addr)
	return store, redis.NewLocker(store.Client(), "rehearsal:"), func() {
		if err := store.Close(); err != nil {
			logger.Error("closing redis store", "error", err)
		}
	}
}

// protectResults wraps store with the redaction and encryption configured
// for failure causes. Redaction runs first so masked text is what gets
// encrypted.
func protectResults(cfg config.ResultsConfig, store ports.ResultStore) (ports.ResultStore, error) {
	var mws []middleware.Middleware
	if len(cfg.Redact) > 0 {
		redact, err := middleware.NewRedactMiddleware(cfg.Redact)
		if err != nil {
			return nil, err
		}
		mws = append(mws, redact)
	}
	active, fallback, err := cfg.Keys()
	if err != nil {
		return nil, err
	}
	if active != nil {
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallback,
		}))
	}
	return middleware.Chain(store, mws...), nil
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, listener net.Listener, logger *slog.Logger) error {
	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Serve(listener)
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		logger.Info("starting shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown did not complete", "timeout", shutdownTimeout, "error", err)
			if err := srv.Close(); err != nil {
				return fmt.Errorf("killing server: %w", err)
			}
		}
		logger.Info("server stopped gracefully")
		return nil
	}
}
