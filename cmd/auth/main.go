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

	"taskboard/internal/config"
	"taskboard/internal/events"
	"taskboard/internal/handler"
	"taskboard/internal/middleware"
	"taskboard/internal/observability"
	"taskboard/internal/repository"
	"taskboard/internal/service"
	"taskboard/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
)

func main() {
	flags := pflag.NewFlagSet("auth", pflag.ExitOnError)
	addr := flags.String("addr", "", "listen address (overrides SERVER_ADDR)")
	envFile := flags.String("env-file", ".env", "optional .env file")
	_ = flags.Parse(os.Args[1:])

	if err := config.LoadEnvFile(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(config.LoadLogConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log configuration: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(observability.String("service", "auth"))

	if err := run(logger, *addr); err != nil {
		logger.Fatal("auth service stopped", observability.Error(err))
	}
}

func run(logger observability.Logger, addrOverride string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Configuration ---
	cfg, err := config.LoadAuthConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addrOverride != "" {
		cfg.Addr = addrOverride
	}
	overflow, err := events.ParseOverflowPolicy(cfg.EventsOverflow)
	if err != nil {
		return err
	}
	dbCfg, err := config.LoadDBConfig()
	if err != nil {
		return err
	}
	secret, err := config.ResolveJWTSecret(ctx, config.LoadSecretConfig())
	if err != nil {
		return err
	}

	// --- Database ---
	dbPool, err := config.ConnectDB(ctx, dbCfg, logger)
	if err != nil {
		return err
	}
	defer dbPool.Close()
	if err := config.AutoMigrate(ctx, dbPool, logger); err != nil {
		return err
	}

	// --- Wiring ---
	jwtUtil := utils.NewJWTUtil(secret, cfg.TokenLifetime)
	hub := events.NewHub(
		events.WithBufferSize(cfg.EventsBuffer),
		events.WithOverflowPolicy(overflow),
		events.WithLogger(logger),
	)
	userRepo := repository.NewUserRepository(dbPool)
	authService := service.NewAuthService(userRepo, jwtUtil,
		service.WithPublisher(hub),
		service.WithInitialAdmin(cfg.InitialAdminUsername),
		service.WithLogger(logger),
	)
	authHandler := handler.NewAuthHandler(authService, hub, logger)

	var guards handler.RouteGuards
	if cfg.UsersRequireAdmin {
		guards.Users = []gin.HandlerFunc{middleware.JWTAuthMiddleware(jwtUtil), middleware.AdminMiddleware()}
		guards.Events = []gin.HandlerFunc{middleware.JWTAuthMiddleware(jwtUtil), middleware.UserMiddleware()}
	} else {
		logger.Warn("GET /api/auth/users and the event streams are reachable without authentication on this service; set AUTH_USERS_REQUIRE_ADMIN=true to restrict them")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.Recovery(logger), middleware.RequestID(), middleware.AccessLog(logger, "auth"))

	authHandler.RegisterAuthRoutes(router.Group("/api"), guards)

	router.GET("/health", func(c *gin.Context) {
		if err := dbPool.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "db": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": "healthy"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// --- Server ---
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("auth service listening", observability.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	// Closing the hub ends open event streams so Shutdown does not wait on them.
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
