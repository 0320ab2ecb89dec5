// Command phoneauth-server runs the phone authentication HTTP API with its
// delivery workers, retention sweeper and a Prometheus /metrics endpoint.
//
// Configuration is read from the environment and an optional .env file;
// see internal/config for the keys.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/MrEthical07/phoneauth"
	"github.com/MrEthical07/phoneauth/delivery"
	"github.com/MrEthical07/phoneauth/directory"
	"github.com/MrEthical07/phoneauth/httpapi"
	"github.com/MrEthical07/phoneauth/internal/config"
	"github.com/MrEthical07/phoneauth/metrics/export/prometheus"
	"github.com/MrEthical07/phoneauth/sweeper"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 20 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.LogPretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Str("service", "phoneauth").Logger()
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	engineCfg, err := cfg.Engine()
	if err != nil {
		return err
	}
	providerCfg, err := cfg.Provider()
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	sender, err := delivery.NewSender(providerCfg, logger, &http.Client{Timeout: providerCfg.Timeout})
	if err != nil {
		return fmt.Errorf("sms provider: %w", err)
	}

	builder := phoneauth.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithSender(sender).
		WithLogger(logger)
	if engineCfg.Audit.Enabled {
		builder = builder.WithAuditSink(phoneauth.NewLoggerSink(logger.With().Str("component", "audit").Logger()))
	}

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = directory.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		builder = builder.WithIdentityStore(directory.NewPostgresStore(pool))
		logger.Info().Msg("identity directory: postgres")
	} else {
		logger.Info().Msg("identity directory: redis")
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	engine.LogSecurityReport(logger)

	sweep, err := sweeper.New(ctx, engine, cfg.Sweeper(), logger.With().Str("component", "sweeper").Logger())
	if err != nil {
		return fmt.Errorf("sweeper: %w", err)
	}
	sweep.Start()

	api := httpapi.New(engine, httpapi.Options{
		TrustProxy:    cfg.TrustProxy,
		SecureCookies: cfg.IsProduction(),
		RefreshTTL:    engineCfg.JWT.RefreshTTL,
		Logger:        logger,
	})

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", prometheus.NewExporter(engine).Handler())
	mux.Handle("/", api)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		IdleTimeout:       time.Minute,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Str("sms_provider", providerCfg.Kind.String()).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	shutdown(logger, server, sweep, engine)
	return nil
}

// shutdown stops intake first, then drains the scheduler and the
// delivery queue in parallel.
func shutdown(logger zerolog.Logger, server *http.Server, sweep *sweeper.Sweeper, engine *phoneauth.Engine) {
	logger.Info().Msg("starting shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Err(err).Msg("http shutdown")
	}

	var wg sync.WaitGroup
	wg.Go(func() {
		if err := sweep.Shutdown(); err != nil {
			logger.Err(err).Msg("sweeper shutdown")
		}
	})
	wg.Go(func() {
		if err := engine.Close(ctx); err != nil {
			logger.Err(err).Int("pending", engine.DeliveryPending()).Msg("delivery drain incomplete")
		}
	})
	wg.Wait()

	logger.Info().Msg("shutdown complete")
}
