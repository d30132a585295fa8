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
	"taskboard/internal/gateway"
	"taskboard/internal/middleware"
	"taskboard/internal/observability"
	"taskboard/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

func main() {
	flags := pflag.NewFlagSet("gateway", pflag.ExitOnError)
	addr := flags.String("addr", "", "listen address (overrides SERVER_ADDR)")
	routesFile := flags.String("routes", "", "route table YAML file (overrides ROUTES_FILE)")
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
	logger = logger.With(observability.String("service", "gateway"))

	if err := run(logger, *addr, *routesFile); err != nil {
		logger.Fatal("gateway stopped", observability.Error(err))
	}
}

func run(logger observability.Logger, addrOverride, routesOverride string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadGatewayConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addrOverride != "" {
		cfg.Addr = addrOverride
	}
	if routesOverride != "" {
		cfg.RoutesFile = routesOverride
	}

	secret, err := config.ResolveJWTSecret(ctx, config.LoadSecretConfig())
	if err != nil {
		return err
	}
	// The gateway only verifies; lifetime is irrelevant here.
	verifier := utils.NewJWTUtil(secret, 0)

	specs, backends, err := config.LoadRoutes(cfg.RoutesFile, cfg.Backends)
	if err != nil {
		return err
	}
	table, err := gateway.NewTable(specs, backends)
	if err != nil {
		return err
	}
	for _, r := range table.Routes() {
		logger.Info("route registered",
			observability.String("route", r.Name),
			observability.String("pattern", r.Pattern),
			observability.Bool("requires_auth", r.RequiresAuth),
			observability.String("backend", r.Backend.String()),
		)
	}

	opts := []gateway.RouterOption{gateway.WithRouterLogger(logger)}
	if cfg.RateLimitRPS > 0 {
		if cfg.RedisAddr != "" {
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
			defer func() { _ = client.Close() }()
			if err := client.Ping(ctx).Err(); err != nil {
				logger.Warn("redis not reachable at startup, limiter fails open until it is", observability.Error(err))
			}
			opts = append(opts, gateway.WithLimiter(gateway.NewRedisLimiter(client, max(cfg.RateLimitRPS, cfg.RateLimitBurst))))
			logger.Info("rate limiting enabled", observability.String("store", "redis"), observability.Int("rps", cfg.RateLimitRPS))
		} else {
			opts = append(opts, gateway.WithLimiter(gateway.NewLocalLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)))
			logger.Info("rate limiting enabled", observability.String("store", "memory"), observability.Int("rps", cfg.RateLimitRPS))
		}
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.Recovery(logger), middleware.RequestID(), middleware.AccessLog(logger, "gateway"))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	gateway.NewRouter(table, verifier, opts...).Mount(router)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", observability.String("addr", cfg.Addr))
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
