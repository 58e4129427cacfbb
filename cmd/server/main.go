package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatcommerce/internal/channel"
	"chatcommerce/internal/config"
	"chatcommerce/internal/credits"
	"chatcommerce/internal/db"
	"chatcommerce/internal/llm"
	"chatcommerce/internal/logging"
	"chatcommerce/internal/middleware"
	"chatcommerce/internal/pipeline"
	"chatcommerce/internal/rag"
	"chatcommerce/internal/routes"
	"chatcommerce/internal/store"
	"chatcommerce/internal/telemetry"
	"chatcommerce/internal/tools"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	logging.Init(cfg.Environment == "development")

	// Telemetry
	tp, err := telemetry.Init(ctx, cfg.OTelServiceName, cfg.OTelEndpoint, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to init telemetry: %v", err)
	}

	metrics, err := telemetry.NewGenAIMetrics(tp.Meter)
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Database not available: %v", err)
	}

	// Redis is optional: without it the rate limiter allows everything.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Printf("WARNING: invalid REDIS_URL, rate limiting disabled: %v", err)
		} else {
			redisClient = redis.NewClient(opts)
		}
	}

	// LLM providers
	var primary llm.Provider
	switch cfg.LLMProvider {
	case "anthropic":
		primary = llm.NewAnthropicProvider(cfg.AnthropicAPIKey)
	default:
		primary = llm.NewOpenAIProvider(cfg.OpenAIAPIKey)
	}

	var fallback llm.Provider
	if cfg.FallbackProvider == "anthropic" && cfg.AnthropicAPIKey != "" {
		fallback = llm.NewAnthropicProvider(cfg.AnthropicAPIKey)
	}

	llmClient := &llm.Client{
		Primary:              primary,
		Fallback:             fallback,
		Tracer:               tp.Tracer,
		Metrics:              metrics,
		PrimaryProvider:      cfg.LLMProvider,
		FallbackProviderName: cfg.FallbackProvider,
		FallbackModel:        cfg.FallbackModel,
		MaxAttempts:          cfg.MaxAttempts,
		BaseDelay:            cfg.RetryBaseDelay,
	}

	// Data layer
	st := store.New(pool)
	ledger := credits.NewPGLedger(pool)
	executor := tools.NewExecutor(st, cfg.AppURL)
	retriever := rag.NewPGRetriever(pool, llm.NewEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel))

	// Channel sessions
	sessions := channel.NewRegistry()
	limiter := channel.NewRateLimiter(redisClient)

	// Turn pipeline behind the failure boundary
	p := &pipeline.Pipeline{
		LLM:       llmClient,
		Executor:  executor,
		Ledger:    ledger,
		Retriever: retriever,
		Tracer:    tp.Tracer,
		Metrics:   metrics,
		Config:    cfg,
	}
	boundary := &pipeline.Boundary{
		Pipeline: p,
		Config:   cfg,
		Metrics:  metrics,
	}

	// Router
	r := chi.NewRouter()
	r.Use(middleware.OTelHTTP(cfg.OTelServiceName))

	r.Get("/api/health", routes.HealthHandler(cfg.OTelServiceName, sessions))
	r.Post("/api/turn", routes.TurnHandler(routes.TurnDeps{
		Store:         st,
		Runner:        boundary,
		Sessions:      sessions,
		Limiter:       limiter,
		HistoryWindow: cfg.HistoryWindow,
	}))
	r.Get("/api/orders", routes.OrdersByPhoneHandler(st))
	r.Get("/api/orders/{id}", routes.OrderHandler(st))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting %s on :%s", cfg.OTelServiceName, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	pool.Close()
	if redisClient != nil {
		redisClient.Close()
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Printf("Telemetry shutdown error: %v", err)
	}
}
