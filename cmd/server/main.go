package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowsyai/backend/docs"
	"github.com/flowsyai/backend/internal/audit"
	"github.com/flowsyai/backend/internal/config"
	"github.com/flowsyai/backend/internal/database"
	"github.com/flowsyai/backend/internal/handlers"
	"github.com/flowsyai/backend/internal/logger"
	"github.com/flowsyai/backend/internal/metrics"
	mW "github.com/flowsyai/backend/internal/middleware"
	"github.com/flowsyai/backend/internal/services"
	"github.com/flowsyai/backend/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// @title FlowsyAI Backend API
// @version 1.0
// @description Token ledger, AI agent runner and completion API
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg := config.Load()

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.L()

	docs.SwaggerInfo.Host = "localhost:" + cfg.Server.Port

	ctx := context.Background()

	dataStore, db, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to initialize store", zap.Error(err))
	}
	if db != nil {
		defer db.Close()
	}

	redisClient := database.InitRedis(ctx, cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
	}

	auditLog := audit.NewLogger(log)

	ledger := services.NewLedgerService(dataStore, services.LedgerConfig{
		BaseCost:       cfg.Tokens.CostPerAIInteraction,
		DefaultBalance: cfg.Tokens.DefaultBalance,
	}, auditLog, log)

	// A nil generator makes text agents answer with their fallback text.
	var generator services.TextGenerator
	var analyzer handlers.TextAnalyzer
	completions, err := services.NewCompletionService(services.CompletionConfig{
		APIKey:         cfg.OpenAI.APIKey,
		OrganizationID: cfg.OpenAI.OrganizationID,
		BaseURL:        cfg.OpenAI.BaseURL,
		Timeout:        cfg.OpenAI.Timeout,
	}, log)
	if err != nil {
		log.Warn("OpenAI client disabled", zap.Error(err))
	} else {
		generator = completions
		analyzer = completions
	}

	registry := services.NewDefaultRegistry(services.HandlerDeps{
		TextGenerator: generator,
		HTTPClient:    services.NewAPIConnectorClient(cfg.Agents.APIConnectorTimeout),
		Logger:        log,
	})
	agents := services.NewAgentService(dataStore, ledger, registry, services.AgentServiceOptions{
		RateLimiter: services.NewRateLimiter(redisClient, "agents", cfg.Agents.MaxExecutionsPerWindow, cfg.Agents.RateLimitWindow),
		Publisher:   services.NewExecutionPublisher(redisClient),
		Audit:       auditLog,
		Logger:      log,
	})

	vouchers, err := services.NewVoucherService(redisClient, ledger, services.VoucherConfig{
		TTL:        cfg.Vouchers.TTL,
		HashSecret: cfg.Vouchers.HashSecret,
	}, auditLog)
	if err != nil {
		log.Fatal("Failed to initialize vouchers", zap.Error(err))
	}

	if cfg.JWT.SecretKey == "" {
		log.Warn("JWT_SECRET_KEY is empty; every authenticated request will be rejected")
	}
	auth := mW.NewAuthenticator(cfg.JWT.SecretKey)

	api := &handlers.API{
		Tokens:      handlers.NewTokenHandler(ledger, log),
		Agents:      handlers.NewAgentHandler(agents, log),
		Vouchers:    handlers.NewVoucherHandler(vouchers, log),
		Completions: handlers.NewCompletionHandler(analyzer, log),
	}

	// Setup router
	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", healthHandler(db, redisClient))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware)
		api.Routes(r)
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info("Server starting", zap.String("addr", server.Addr), zap.String("store", cfg.Store.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server stopped")
}

// openStore returns the configured backend. db is nil for the memory store.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, *sql.DB, error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		s := store.NewMemoryStore()
		if err := store.SeedDemo(ctx, s, cfg.Tokens.DefaultBalance, time.Now()); err != nil {
			return nil, nil, err
		}
		logger.L().Info("Using in-memory store with demo fixtures", zap.String("user_id", store.DemoUserID))
		return s, nil, nil
	}

	db, err := database.InitDB(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
	}
	return store.NewPostgresStore(db), db, nil
}

func healthHandler(db *sql.DB, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "healthy", "database": "memory", "redis": "disabled"}
		code := http.StatusOK

		if db != nil {
			status["database"] = "up"
			if err := db.PingContext(r.Context()); err != nil {
				status["database"] = "down"
				status["status"] = "degraded"
				code = http.StatusServiceUnavailable
			}
		}
		if redisClient != nil {
			status["redis"] = "up"
			if err := redisClient.Ping(r.Context()).Err(); err != nil {
				status["redis"] = "down"
				status["status"] = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(status)
	}
}
