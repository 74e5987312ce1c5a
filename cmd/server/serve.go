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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rohits-web03/todo-api/internal/api"
	"github.com/rohits-web03/todo-api/internal/api/handlers"
	"github.com/rohits-web03/todo-api/internal/api/middleware"
	"github.com/rohits-web03/todo-api/internal/api/services"
	"github.com/rohits-web03/todo-api/internal/config"
	"github.com/rohits-web03/todo-api/internal/logger"
	"github.com/rohits-web03/todo-api/internal/metrics"
	"github.com/rohits-web03/todo-api/internal/repositories"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveFlags struct {
	port    string
	driver  string
	migrate bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.port, "port", "", "listen port (overrides PORT)")
	serveCmd.Flags().StringVar(&serveFlags.driver, "driver", "", "storage driver: postgres, mongo or memory (overrides STORAGE_DRIVER)")
	serveCmd.Flags().BoolVar(&serveFlags.migrate, "migrate", true, "create schema and indexes on startup")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Envs
	if serveFlags.port != "" {
		cfg.Port = serveFlags.port
	}
	if serveFlags.driver != "" {
		cfg.StorageDriver = serveFlags.driver
	}

	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer func() { _ = log.Sync() }()

	proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg, log, serveFlags.migrate)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			log.Warn("failed to close storage", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	svcLog := logger.WithComponent(log, "services")
	todoService := services.NewTodoService(store.Todos, services.WithLogger(svcLog))
	userService := services.NewUserService(store.Users, store.Todos, services.WithLogger(svcLog))

	h := &handlers.Handler{
		Todos:           todoService,
		Users:           userService,
		Logger:          logger.WithComponent(log, "http"),
		Metrics:         collector,
		Google:          services.NewGoogleOAuthConfig(cfg.Google),
		JWTSecret:       cfg.JWTSecret,
		Environment:     cfg.Environment,
		FrontendBaseURL: cfg.FrontendBaseURL,
	}
	if cfg.R2.Enabled() {
		h.Images = repositories.NewR2ImageStore(cfg.R2)
		log.Info("profile image uploads enabled", zap.String("bucket", cfg.R2.BucketName))
	}

	router := api.SetupRouter(api.RouterConfig{
		Handler:            h,
		Auth:               middleware.NewAuth(cfg.JWTSecret),
		Logger:             log,
		Metrics:            collector,
		Gatherer:           reg,
		Cors:               cfg.CorsConfig,
		LoginRatePerMinute: cfg.LoginRatePerMinute,
		TrustedProxies:     proxies,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
		// Timeouts prevent resource exhaustion from slow clients
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting todo api server",
			zap.String("port", cfg.Port),
			zap.String("driver", cfg.StorageDriver),
			zap.String("env", cfg.Environment),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("could not listen on port %s: %w", cfg.Port, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down server")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
