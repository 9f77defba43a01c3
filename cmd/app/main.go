package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"OrderPipeline/internal/brokers/nats"
	"OrderPipeline/internal/config"
	"OrderPipeline/internal/coordinator"
	"OrderPipeline/internal/domain/models"
	"OrderPipeline/internal/idempotency"
	"OrderPipeline/internal/ledger"
	"OrderPipeline/internal/risk"
	"OrderPipeline/internal/services/intake"
	"OrderPipeline/internal/storage/postgres"
	"OrderPipeline/internal/storage/redis"
	handler "OrderPipeline/transport"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	natsgo "github.com/nats-io/nats.go"
)

const (
	envLocal = "local"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("starting order pipeline",
		slog.String("env", cfg.Env),
		slog.String("port", cfg.HTTP.Port),
	)

	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.PostgresCfg.Username,
		cfg.PostgresCfg.Password,
		cfg.PostgresCfg.Host,
		cfg.PostgresCfg.Port,
		cfg.PostgresCfg.Database)

	storage, err := postgres.New(connString)
	if err != nil {
		log.Error("failed to connect to postgres", "error", err)
		panic(err)
	}

	nc, err := natsgo.Connect(cfg.NatsCfg.URL)
	if err != nil {
		log.Error("failed to connect to nats", "error", err)
		panic(err)
	}
	log.Info("connected to nats broker", "url", cfg.NatsCfg.URL)

	bus, err := nats.New(nc, log)
	if err != nil {
		log.Error("failed to init event bus", "error", err)
		panic(err)
	}

	redisClient := redis.New(cfg.RedisCfg)
	idemStore := idempotency.NewRedis(cfg.RedisCfg)

	positionLedger := ledger.New(log, storage)
	limitsCache := risk.NewLimitsCache(cfg.RiskCfg)
	riskValidator := risk.NewValidator(log, positionLedger, limitsCache)

	manager := coordinator.New(log, cfg.Coordinator, riskValidator, redisClient, positionLedger, storage, bus)
	if err := bus.Subscribe(models.TopicOrderCreated, manager.HandleOrderCreated); err != nil {
		log.Error("failed to subscribe to order created events", "error", err)
		panic(err)
	}

	intakeService := intake.New(log, idemStore, bus)

	validate := validator.New()

	orderHandler := handler.NewOrderHandler(log, intakeService, manager, storage, validate)
	riskHandler := handler.NewRiskHandler(log, riskValidator, redisClient, validate)
	positionHandler := handler.NewPositionHandler(log, positionLedger, redisClient)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Idempotency-Key")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Max-Age", "300")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	})
	r.Mount("/api/orders", orderHandler.Routes())
	r.Mount("/api/risk", riskHandler.Routes())
	r.Mount("/api/positions", positionHandler.Routes())

	log.Info("Starting server on " + cfg.HTTP.Port)
	if err := http.ListenAndServe(cfg.HTTP.Port, r); err != nil {
		log.Error("Server failed", "error", err)
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewJSONHandler(
				os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(
				os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(
				os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
