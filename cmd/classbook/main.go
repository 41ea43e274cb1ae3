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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"classbook/internal/api"
	"classbook/internal/audit"
	"classbook/internal/booking"
	"classbook/internal/cache"
	"classbook/internal/classes"
	"classbook/internal/config"
	"classbook/internal/db"
	"classbook/internal/events"
	"classbook/internal/interval"
	"classbook/internal/metrics"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn().Err(err).Msg("failed to read .env")
	}

	cfg, err := config.Load(os.Getenv("CLASSBOOK_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil && cfg.Logging.Level != "" {
		logger = logger.Level(level)
	}
	if !cfg.Logging.Pretty {
		logger = zerolog.New(os.Stdout).Level(logger.GetLevel()).With().Timestamp().Logger()
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid time zone")
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	var rdb *redis.Client
	var instanceCache classes.InstanceCache
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		instanceCache = cache.New(rdb, cfg.CacheTTL())
	}

	clock := time.Now
	policy := interval.Policy{Grace: cfg.Grace(), JoinLead: cfg.JoinLead()}
	classService := classes.NewService(database, instanceCache, policy, loc, cfg.HorizonWeeks(), logger)
	bookingService := booking.NewService(database, loc, cfg.MaxAdvanceDays(), logger)
	bookingService.SetSlotGranularity(cfg.SlotGranularity())

	bus := events.NewEventBus(func(e events.Event, err error) {
		logger.Error().Err(err).Str("event", e.Type).Msg("event handler failed")
	})
	activity := logger.With().Str("component", "activity").Logger()
	for _, typ := range []string{events.BookingCreated, events.BookingCanceled, events.BookingRescheduled, events.BookingCompleted} {
		bus.Subscribe(typ, func(e events.Event) error {
			activity.Debug().Str("event", e.Type).RawJSON("booking", e.Payload).Msg("booking event")
			return nil
		})
	}
	bookingService.SetPublisher(bus)
	exporter := audit.NewExporter(database, loc, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = config.WatchCatalog(ctx, cfg.Catalog.Path, cfg.CatalogReloadInterval(),
		func(cat *config.Catalog) {
			if err := database.SyncCatalog(ctx, cat, loc); err != nil {
				logger.Error().Err(err).Msg("catalog sync failed")
				return
			}
			classService.Invalidate(ctx)
			logger.Info().Int("providers", len(cat.Providers)).Msg("catalog synced")
		},
		func(err error) {
			logger.Error().Err(err).Msg("catalog reload rejected")
		},
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("load catalog error")
	}

	backup := db.NewBackupService(database, cfg.Backup, cfg.BackupInterval(), logger)
	go backup.Start(ctx)
	go bookingService.StartSweeper(ctx, cfg.CompleteInterval(), clock)
	if cfg.Audit.Enabled {
		go exporter.StartMonthly(ctx, cfg.Audit.Path, clock)
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, database, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	server := api.NewHTTPServer(api.Options{
		Address:         cfg.Server.Address,
		RateLimitRPS:    cfg.Server.RateLimitRPS,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		TrustUserParam:  cfg.Server.TrustUserIDParam,
		SlotGranularity: cfg.SlotGranularity(),
		Now:             clock,
	}, api.Deps{
		DB:       database,
		Classes:  classService,
		Bookings: bookingService,
		Exporter: exporter,
	}, logger)

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			logger.Error().Err(err).Msg("api shutdown error")
		}
	}()

	logger.Info().Str("time_zone", loc.String()).Msg("classbook started")
	if err := server.Start(); err != nil {
		logger.Error().Err(err).Msg("api server error")
	}
	logger.Info().Msg("classbook stopped")
}

func startHealthServer(ctx context.Context, port int, database *db.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := database.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
