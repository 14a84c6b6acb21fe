// CBE Compass - Career Guidance Server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elimu-labs/cbe-compass/internal/api"
	"github.com/elimu-labs/cbe-compass/internal/config"
	"github.com/elimu-labs/cbe-compass/internal/deepseek"
	"github.com/elimu-labs/cbe-compass/internal/guidance"
	"github.com/elimu-labs/cbe-compass/internal/identity"
	"github.com/elimu-labs/cbe-compass/internal/middleware"
	"github.com/elimu-labs/cbe-compass/internal/retention"
	"github.com/elimu-labs/cbe-compass/internal/store"
	"github.com/elimu-labs/cbe-compass/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Initialize the DeepSeek client. Without an API key the server still
	// serves everything; chat answers apologize and recommendations come
	// from the rule-based recommender.
	client := deepseek.NewClient(cfg.DeepSeek.APIKey,
		deepseek.WithBaseURL(cfg.DeepSeek.BaseURL),
		deepseek.WithModel(cfg.DeepSeek.Model),
		deepseek.WithSampling(cfg.DeepSeek.Temperature, cfg.DeepSeek.MaxTokens),
	)
	aiEnabled := client.Configured()
	if aiEnabled {
		slog.Info("DeepSeek client configured", "model", cfg.DeepSeek.Model)
	} else {
		slog.Warn("DEEPSEEK_API_KEY not set, AI guidance degraded to fallback responses")
	}

	guidanceService := guidance.NewService(client)

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, guidanceService, aiEnabled)
	profileHandler := api.NewProfileHandler(baseHandler)
	recommendationHandler := api.NewRecommendationHandler(baseHandler)
	dashboardHandler := api.NewDashboardHandler(baseHandler)
	healthHandler := api.NewHealthHandler(repo, aiEnabled)
	chatHandler := guidance.NewHandler(guidanceService, repo, cfg)
	wsHandler := guidance.NewWebSocketHandler(guidanceService, repo, chatHandler.RateLimiter(), cfg, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// All routes use identity middleware (no auth needed).
	profileHandler.RegisterRoutes(r)
	recommendationHandler.RegisterRoutes(r)
	dashboardHandler.RegisterRoutes(r)
	chatHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Note: SSE connections require long timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,                 // 0 = no timeout for SSE support
		IdleTimeout:  120 * time.Second, // 2 minutes for idle connections
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	retention.Start(ctx, repo, cfg.Retention)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
