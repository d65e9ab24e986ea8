package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"enterprisehub-backend/services/metrics-service/internal/api"
	"enterprisehub-backend/services/metrics-service/internal/bus"
	"enterprisehub-backend/services/metrics-service/internal/config"
	"enterprisehub-backend/services/metrics-service/internal/metrics"
	"enterprisehub-backend/services/metrics-service/internal/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	port := getenv("PORT", "8092")
	dsn := getenv("DATABASE_URL", "")
	natsURL := getenv("NATS_URL", "")
	configPath := getenv("METRICS_CONFIG_PATH", "")

	engineCfg := metrics.DefaultConfig()
	var entities []metrics.MonitoredEntity
	if configPath != "" {
		fileCfg, err := config.Load(configPath)
		if err != nil {
			logger.Error("failed to load config", slog.String("path", configPath), slog.String("error", err.Error()))
			os.Exit(1)
		}
		if engineCfg, err = fileCfg.EngineConfig(); err != nil {
			logger.Error("invalid config", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if entities, err = fileCfg.MonitoredEntities(); err != nil {
			logger.Error("invalid entity config", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	engine := metrics.NewEngine(engineCfg, logger)
	for _, entity := range entities {
		if err := engine.RegisterEntity(entity); err != nil {
			logger.Error("failed to register entity", slog.String("entity", entity.ID), slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	ctx := context.Background()
	var repo *storage.Repository
	if dsn != "" {
		store, err := storage.NewStore(ctx, dsn)
		if err != nil {
			logger.Error("failed to connect to db", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer store.Close()
		repo = storage.NewRepository(store)
		wireRepository(engine, repo, entities, logger)
	}

	if natsURL != "" {
		publisher, err := bus.NewPublisher(natsURL)
		if err != nil {
			logger.Error("failed to connect to nats", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer publisher.Close()
		subscriber, err := bus.NewSubscriber(natsURL)
		if err != nil {
			logger.Error("failed to connect to nats", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer subscriber.Close()
		wireBus(engine, publisher, subscriber, logger)
	}

	engine.Start()
	defer engine.Stop()

	handler := &api.Handler{Engine: engine, Logger: logger}
	if repo != nil {
		handler.Log = repo
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	handler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	logger.Info("metrics-service listening", slog.String("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", slog.String("error", err.Error()))
	}
}

// wireRepository mirrors registrations and alerts into Postgres.
func wireRepository(engine *metrics.Engine, repo *storage.Repository, entities []metrics.MonitoredEntity, logger *slog.Logger) {
	ctx := context.Background()
	for _, entity := range entities {
		weights, _ := json.Marshal(entity.Weights)
		targets, _ := json.Marshal(entity.Targets)
		rec := storage.EntityRecord{ID: entity.ID, Kind: string(entity.Kind), Weights: weights, Targets: targets}
		if err := repo.UpsertEntity(ctx, rec); err != nil {
			logger.Error("failed to persist entity", slog.String("entity", entity.ID), slog.String("error", err.Error()))
		}
	}
	engine.SubscribeAlerts(func(alert metrics.Alert) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rec := storage.AlertRecord{
			ID:           alert.ID,
			EntityID:     alert.EntityID,
			Metric:       alert.Metric,
			Severity:     string(alert.Severity),
			DeviationPct: alert.DeviationPct,
			BaselineVal:  alert.Baseline,
			ObservedVal:  alert.Observed,
			TSUTC:        alert.TS,
			Acknowledged: alert.Acknowledged,
		}
		if err := repo.CreateAlert(ctx, rec); err != nil {
			logger.Error("failed to persist alert", slog.String("alert", alert.ID), slog.String("error", err.Error()))
		}
	})
}

// wireBus publishes engine events and consumes samples pushed by
// collaborator teams.
func wireBus(engine *metrics.Engine, publisher *bus.Publisher, subscriber *bus.Subscriber, logger *slog.Logger) {
	engine.SubscribeAlerts(func(alert metrics.Alert) {
		if err := publisher.Publish(bus.SubjectAlertRaised, alert); err != nil {
			logger.Error("failed to publish alert", slog.String("error", err.Error()))
		}
	})
	engine.SubscribeTrends(func(event metrics.TrendEvent) {
		if err := publisher.Publish(bus.SubjectTrendChanged, event); err != nil {
			logger.Error("failed to publish trend event", slog.String("error", err.Error()))
		}
	})
	if _, err := subscriber.SubscribeSamples(func(evt bus.SampleEvent) {
		ts := evt.TS
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		if err := engine.RecordSample(evt.EntityID, evt.Metric, evt.Value, ts); err != nil {
			logger.Error("sample event rejected", slog.String("entity", evt.EntityID), slog.String("error", err.Error()))
		}
	}); err != nil {
		logger.Error("failed to subscribe to samples", slog.String("error", err.Error()))
	}
}

func getenv(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
