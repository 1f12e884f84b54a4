package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/bartonmalow/suna/internal/adapter/daytona"
	sunahttp "github.com/bartonmalow/suna/internal/adapter/http"
	sunanats "github.com/bartonmalow/suna/internal/adapter/nats"
	"github.com/bartonmalow/suna/internal/adapter/natskv"
	sunaotel "github.com/bartonmalow/suna/internal/adapter/otel"
	"github.com/bartonmalow/suna/internal/adapter/postgres"
	"github.com/bartonmalow/suna/internal/adapter/ristretto"
	"github.com/bartonmalow/suna/internal/config"
	"github.com/bartonmalow/suna/internal/logger"
	"github.com/bartonmalow/suna/internal/resilience"
	"github.com/bartonmalow/suna/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("SUNA_CONFIG")
	if configPath == "" {
		configPath = config.DefaultConfigFile
	}
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLogger := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer closeLogger.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"cleanup_interval", cfg.Cleanup.Interval,
	)

	ctx := context.Background()

	// --- Infrastructure ---

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// NATS: core publish for control signals, JetStream KV for the
	// response buffer and run registry.
	bus, err := sunanats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = bus.Close() }()

	js, err := jetstream.New(bus.Conn())
	if err != nil {
		return fmt.Errorf("jetstream: %w", err)
	}
	responseKV, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: cfg.NATS.ResponseBucket,
	})
	if err != nil {
		return fmt.Errorf("response bucket: %w", err)
	}
	registryKV, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: cfg.NATS.RegistryBucket,
	})
	if err != nil {
		return fmt.Errorf("registry bucket: %w", err)
	}

	// Metrics export is optional; an empty endpoint disables it.
	var metrics *sunaotel.Metrics
	if cfg.Otel.Endpoint != "" {
		shutdown, err := sunaotel.InitMetrics(ctx, cfg.Otel.Endpoint, cfg.Logging.Service)
		if err != nil {
			return fmt.Errorf("otel: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()

		metrics, err = sunaotel.NewMetrics()
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		slog.Info("otel metrics enabled", "endpoint", cfg.Otel.Endpoint)
	}

	statsCache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer statsCache.Close()

	// --- Adapters ---

	provider := daytona.NewClient(cfg.Daytona.URL, cfg.Daytona.APIKey)
	provider.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	store := postgres.NewStore(pool)
	buffer := natskv.NewBuffer(responseKV)
	registry := natskv.NewRegistry(registryKV)

	// --- Services ---

	expirySvc := service.NewExpirySweeper(provider, metrics)
	failedSvc := service.NewFailedRunSweeper(store, provider, metrics)
	cleanupSvc := service.NewCleanupService(store, provider, expirySvc, failedSvc,
		statsCache, cfg.Cache.StatsTTL, metrics)
	cleanupSvc.MaxSandboxAge = cfg.Cleanup.MaxSandboxAge
	cleanupSvc.FailedRunLookback = cfg.Cleanup.FailedRunLookback
	stopSvc := service.NewStopService(store, buffer, bus, registry, cleanupSvc, metrics)

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	go cleanupSvc.RunPeriodic(loopCtx, cfg.Cleanup.Interval, cfg.Cleanup.RetryDelay)

	// --- HTTP ---

	handlers := &sunahttp.Handlers{
		Cleanup: cleanupSvc,
		Expiry:  expirySvc,
		Stop:    stopSvc,
	}

	r := chi.NewRouter()
	r.Use(sunahttp.CORS(cfg.Server.CORSOrigin))
	r.Use(sunahttp.SecurityHeaders)
	r.Use(sunahttp.RequestID)
	r.Use(sunahttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/health", healthHandler(pool.Ping, bus))
	sunahttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")
	stopLoop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// healthHandler returns an http.HandlerFunc reporting dependency health.
func healthHandler(pingDB func(context.Context) error, bus *sunanats.Bus) http.HandlerFunc {
	type healthStatus struct {
		Status   string `json:"status"`
		Postgres string `json:"postgres"`
		NATS     string `json:"nats"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		status := healthStatus{Status: "ok", Postgres: "ok", NATS: "ok"}
		code := http.StatusOK

		if err := pingDB(r.Context()); err != nil {
			status.Status = "degraded"
			status.Postgres = "unreachable"
			code = http.StatusServiceUnavailable
		}
		if !bus.Conn().IsConnected() {
			status.Status = "degraded"
			status.NATS = "disconnected"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	}
}
