package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"opsdash/internal/api"
	"opsdash/internal/auth"
	"opsdash/internal/config"
	"opsdash/internal/db"
	"opsdash/internal/jobs"
	"opsdash/internal/pubsub"
	"opsdash/internal/schema"
	"opsdash/internal/service"
	"opsdash/internal/ws"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// Check for goose migrate command
	if len(os.Args) > 1 && os.Args[1] == "goose-migrate" {
		if err := runGooseMigrations(); err != nil {
			log.Fatalf("Goose migration failed: %v", err)
		}
		os.Exit(0)
	}

	if len(os.Args) > 1 && os.Args[1] != "serve" {
		log.Fatalf("Unknown command: %s (use 'serve' or 'goose-migrate')", os.Args[1])
	}

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.Load()

	// Database connection
	dbPool, err := db.NewPool(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer dbPool.Close()

	// Redis connection
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	defer rdb.Close()

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	// Pub/sub bus
	bus := pubsub.New(rdb, logger)

	// Services
	checker := schema.NewChecker(64)
	userSvc := service.NewUserService(dbPool.Queries)
	functionSvc := service.NewFunctionService(dbPool.Queries)
	requestSvc := service.NewRequestService(dbPool.Queries, dbPool.Queries, checker, bus)
	dashboardSvc := service.NewDashboardService(dbPool.Queries)

	// Background executor
	execServer, asynqClient := jobs.NewExecServer(cfg.RedisAddr, dbPool, requestSvc, logger)
	requestSvc.SetExecutionQueue(jobs.NewExecClient(asynqClient))
	go func() {
		if err := execServer.Start(); err != nil {
			logger.Fatal("Executor failed", zap.Error(err))
		}
	}()
	defer execServer.Stop()

	// Authentication
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	guard := auth.NewGuard(tokens, dbPool.Queries)

	var authenticator auth.Authenticator = auth.NewLocalAuthenticator(dbPool.Queries)
	if cfg.LDAPEnabled {
		authenticator = auth.NewLDAPAuthenticator(auth.LDAPConfig{
			URL:            cfg.LDAPURL,
			BaseDN:         cfg.LDAPBaseDN,
			UserDNTemplate: cfg.LDAPUserDNTemplate,
			Timeout:        cfg.LDAPTimeout,
		}, dbPool.Queries)
		logger.Info("LDAP authentication enabled", zap.String("url", cfg.LDAPURL))
	}

	// Bootstrap data
	if created, err := userSvc.EnsureDefaultAdmin(ctx); err != nil {
		logger.Warn("Failed to ensure default admin", zap.Error(err))
	} else if created {
		logger.Info("Created default admin account")
	}
	if err := functionSvc.SeedSamples(ctx); err != nil {
		logger.Warn("Failed to seed sample functions", zap.Error(err))
	}

	// WebSocket hub
	hub := ws.NewHub(logger)
	go hub.Run()
	bus.SetWSHub(hub)

	// HTTP router
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Timeout middleware - skip for WebSocket upgrades
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, req)
				return
			}
			middleware.Timeout(60 * time.Second)(next).ServeHTTP(w, req)
		})
	})

	// Mount API routes
	r.Mount("/api", api.Routes(api.Dependencies{
		Hub:       hub,
		Log:       logger,
		Auth:      authenticator,
		Tokens:    tokens,
		Guard:     guard,
		Users:     userSvc,
		Functions: functionSvc,
		Requests:  requestSvc,
		Dashboard: dashboardSvc,
	}))

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
	}

	logger.Info("Starting server", zap.String("addr", cfg.Addr))
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}
