package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/chatbridge/wabalink/golang_services/internal/platform/config"
	"github.com/chatbridge/wabalink/golang_services/internal/platform/database"
	"github.com/chatbridge/wabalink/golang_services/internal/platform/locker"
	"github.com/chatbridge/wabalink/golang_services/internal/platform/logger"
	verificationApp "github.com/chatbridge/wabalink/golang_services/internal/verification_service/app"
	"github.com/chatbridge/wabalink/golang_services/internal/verification_service/middleware"
	"github.com/chatbridge/wabalink/golang_services/internal/verification_service/provider"
	"github.com/chatbridge/wabalink/golang_services/internal/verification_service/repository/postgres"
	httptransport "github.com/chatbridge/wabalink/golang_services/internal/verification_service/transport/http"
)

const (
	serviceName     = "verification_service"
	shutdownTimeout = 15 * time.Second
)

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel).With("service", serviceName)
	appLogger.Info("Starting service...")
	appLogger.Info("Configuration loaded",
		"log_level", cfg.LogLevel,
		"server_port", cfg.ServerPort,
		"platform_base_url", cfg.PlatformBaseURL,
		"postgres_dsn_present", cfg.PostgresDSN != "",
	)

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to initialize database connection pool", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Database connection pool initialized")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(mainCtx).Err(); err != nil {
		appLogger.Error("Failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	recordLocks := locker.NewRedisLocker(redisClient, appLogger, serviceName)

	gateway := provider.NewGraphGateway(
		appLogger,
		cfg.PlatformBaseURL,
		cfg.PlatformAPIVersion,
		cfg.PlatformMaxRetries,
		&http.Client{Timeout: cfg.PlatformTimeout},
	)

	verificationRepo := postgres.NewPgVerificationRepository(dbPool, appLogger)
	companyRepo := postgres.NewPgCompanyConfigRepository(dbPool, appLogger)
	application := verificationApp.NewApplication(
		verificationRepo, companyRepo, gateway, recordLocks, appLogger,
		cfg.VerificationURLBase, cfg.DefaultCodeLanguage,
	)
	handler := httptransport.NewVerificationHandler(application, appLogger)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(cfg.JWTSecret, appLogger))
		handler.RegisterRoutes(r)
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		appLogger.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigCh:
			appLogger.Info("Shutdown signal received", "signal", sig.String())
			mainCancel()
		case <-groupCtx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Service exited with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Service stopped cleanly")
}
