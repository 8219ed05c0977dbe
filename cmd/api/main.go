package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bistro/internal/auth"
	"bistro/internal/config"
	"bistro/internal/database"
	"bistro/internal/handler"
	"bistro/internal/lock"
	"bistro/internal/menu"
	"bistro/internal/middleware"
	"bistro/internal/notify"
	"bistro/internal/repository"
	"bistro/internal/router"
	"bistro/internal/service"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Logger)
	logger.Info().Msg("starting bistro API server")

	decimal.MarshalJSONWithoutQuotes = true

	loc, err := cfg.Reservation.Location()
	if err != nil {
		return fmt.Errorf("failed to load reservation time zone: %w", err)
	}

	// Create context for application lifecycle
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// Process-local order admission locks
	locks := lock.NewRegistry(cfg.Orders.StaleLockAfter, cfg.Orders.SweepInterval, logger)
	locks.Start(ctx)
	defer locks.Stop()

	notifier, closeNotifier := newNotifier(cfg.Notify, logger)
	defer closeNotifier()

	rdb := newRedis(ctx, cfg, logger)
	if rdb != nil {
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close redis client")
			}
		}()
	}

	catalog, err := menu.Open(ctx, cfg.Menu, logger)
	if err != nil {
		return fmt.Errorf("failed to load menu: %w", err)
	}

	// Initialize repositories
	reservationRepo := repository.NewReservationRepository(pool, logger)
	orderRepo := repository.NewOrderRepository(pool, logger)

	// Initialize services
	reservationService := service.NewReservationService(reservationRepo, notifier, loc, logger)
	orderService := service.NewOrderService(orderRepo, locks, catalog, service.GateConfig{
		LockTimeout:   cfg.Orders.LockTimeout,
		SimilarWindow: cfg.Orders.SimilarWindow,
		RetryAfter:    cfg.Orders.BusyRetryAfter,
	}, logger)

	// Initialize router
	var scripter redis.Scripter
	if rdb != nil {
		scripter = rdb
	}
	mux := router.New(router.Handlers{
		Reservations: handler.NewReservationHandler(reservationService, logger),
		Orders:       handler.NewOrderHandler(orderService, logger),
		Health:       handler.NewHealthHandler(pool, logger),
	}, router.Options{
		Tokens:     auth.NewManager(cfg.Auth),
		Limiter:    middleware.NewRateLimiter(scripter, cfg.RateLimit, logger),
		RateLimits: cfg.RateLimit,
		CORSOrigin: cfg.Server.CORSOrigin,
	}, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for errors from the server
	serverErrors := make(chan error, 1)

	// Start HTTP server in a goroutine
	go func() {
		logger.Info().
			Str("address", cfg.Server.Address()).
			Str("time_zone", loc.String()).
			Bool("rate_limit", cfg.RateLimit.Enabled).
			Bool("notifications", cfg.Notify.Enabled).
			Bool("menu_check", catalog != nil).
			Msg("HTTP server started")
		serverErrors <- server.ListenAndServe()
	}()

	// Channel to listen for interrupt signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or an error
	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info().
			Str("signal", sig.String()).
			Msg("shutdown signal received, starting graceful shutdown")

		// Create a context with timeout for shutdown
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		// Attempt graceful shutdown
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown server gracefully")
			// Force close
			if closeErr := server.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close server")
			}
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		logger.Info().Msg("server shutdown completed")
	}

	return nil
}

// newNotifier connects to the broker when notifications are enabled and
// falls back to logging events otherwise.
func newNotifier(cfg config.NotifyConfig, logger zerolog.Logger) (notify.Notifier, func()) {
	if !cfg.Enabled {
		logger.Info().Msg("AMQP notifications disabled, logging events instead")
		return notify.NewLogNotifier(logger), func() {}
	}

	n, err := notify.DialAMQP(cfg.URL, cfg.Exchange, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("AMQP broker unavailable, logging events instead")
		return notify.NewLogNotifier(logger), func() {}
	}

	return n, func() {
		if err := n.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close AMQP connection")
		}
	}
}

// newRedis returns a client for rate limiting, or nil when it is disabled.
// An unreachable server is logged; requests are let through until it
// recovers.
func newRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	if !cfg.RateLimit.Enabled {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, rate limits fail open")
	} else {
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")
	}
	return rdb
}
