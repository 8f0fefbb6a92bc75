package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mini-waf/waf-go/internal/blocklist"
	"github.com/mini-waf/waf-go/internal/config"
	"github.com/mini-waf/waf-go/internal/db"
	"github.com/mini-waf/waf-go/internal/engine"
	"github.com/mini-waf/waf-go/internal/events"
	"github.com/mini-waf/waf-go/internal/handlers"
	"github.com/mini-waf/waf-go/internal/proxy"
	"github.com/mini-waf/waf-go/internal/ratelimit"
	"github.com/mini-waf/waf-go/internal/server"
	"github.com/mini-waf/waf-go/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	logger := server.SetupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := database.SeedDefaultRules(ctx); err != nil {
		logger.Error("failed to seed default rules", "err", err)
		os.Exit(1)
	}

	// A Redis outage must not keep the WAF down: only the URL is validated
	// here, and the soft tier fails open per request.
	redisStore, err := blocklist.NewRedisStore(cfg.RedisURL)
	if err != nil {
		logger.Error("invalid redis configuration", "err", err)
		os.Exit(1)
	}
	defer redisStore.Close()

	checker := blocklist.NewChecker(redisStore, database, logger)
	eng := engine.New(cfg.ThreatScoreThreshold)
	wsManager := ws.NewManager(logger)
	recorder := events.NewRecorder(database, wsManager, logger)
	proxyHandler := proxy.NewHandler(database, checker, eng, recorder, cfg.BackendURL, logger)

	healthHandler := handlers.NewHealthHandler(database, redisStore)
	logHandler := handlers.NewLogHandler(database, logger)
	ruleHandler := handlers.NewRuleHandler(database, logger)
	blockedIPHandler := handlers.NewBlockedIPHandler(database, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/ws/logs", wsManager.HandleWS)

	limiter := ratelimit.New(60, time.Minute)
	r.Route("/api", func(api chi.Router) {
		api.Use(corsMiddleware(cfg.CORSOrigins))
		api.Use(limiter.Middleware)

		api.Get("/logs", logHandler.List)
		api.Get("/stats", logHandler.Stats)
		api.Get("/rules", ruleHandler.List)
		api.Patch("/rules/{id}/toggle", ruleHandler.Toggle)
		api.Get("/blocked-ips", blockedIPHandler.List)
		api.Delete("/blocked-ips/{ip}", blockedIPHandler.Delete)
	})

	// Everything not claimed above goes through the inspection pipeline,
	// whatever the method.
	r.NotFound(proxyHandler.ServeHTTP)
	r.MethodNotAllowed(proxyHandler.ServeHTTP)

	// Expired hard blocks are already invisible to the read path; the
	// sweeper keeps the table itself tidy.
	go server.RunWithRecovery(ctx, logger, "blocklist-sweeper", func(ctx context.Context) {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := database.DeleteExpiredBlockedIPs(ctx); err != nil {
					logger.Warn("blocklist sweep failed", "err", err)
				} else if n > 0 {
					logger.Info("swept expired blocked ips", "count", n)
				}
			}
		}
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket subscribers hold the connection open
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "err", err)
		}
	}()

	logger.Info("waf listening", "addr", cfg.Addr(), "backend", cfg.BackendURL,
		"threshold", cfg.ThreatScoreThreshold)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// corsMiddleware allows the configured admin origins. With no origins
// configured it is a pass-through.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	wildcard := false
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
		allowed[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (wildcard || allowed[origin]) {
				if wildcard {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
				}
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			}
			if r.Method == http.MethodOptions && origin != "" && (wildcard || allowed[origin]) {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
