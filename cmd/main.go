package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"stocktracker/config"
	"stocktracker/data"
	"stocktracker/data/cache"
	"stocktracker/data/repository/postgres"
	"stocktracker/internal/externalApi/yahooApi"
	"stocktracker/internal/reportGenerator/xlsxGenerator"
	"stocktracker/internal/scheduler"
	"stocktracker/internal/service/portfolioService"
	"stocktracker/internal/transport/httpapi"
)

func main() {
	cfg := config.MustLoad()

	setupLogger(cfg)

	slog.Debug("config", slog.Any("cfg", cfg))

	pgClient := data.NewPostgresClient(cfg)
	defer pgClient.Close()

	pgRepo := postgres.NewPostgres(cfg, pgClient)

	quoteCache := newQuoteCache(cfg)

	yahooApiClient := yahooApi.New(cfg)

	reportGenerator := xlsxGenerator.New()

	portfolioSrv := portfolioService.New(cfg, pgRepo, quoteCache, yahooApiClient, reportGenerator)

	sched := scheduler.New()
	sched.NewIntervalJob("warm quote cache", portfolioSrv.WarmQuoteCache, cfg.Jobs.WarmQuoteCacheInterval, true)
	sched.Start()
	defer sched.Stop()

	if !cfg.API.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	controller := httpapi.NewController(portfolioSrv)
	controller.RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		slog.Info("HTTP server started", slog.Int("port", cfg.HTTP.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server failed", slog.String("err", err.Error()))
			os.Exit(1)
		}
	}()

	// Waiting interruption signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-interrupt

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", slog.String("err", err.Error()))
	}
}

func newQuoteCache(cfg *config.Config) portfolioService.QuoteCache {
	if cfg.Cache.Backend == "memory" {
		slog.Info("using in-memory quote cache")
		return cache.NewMemoryCache(cfg)
	}

	redisClient := data.NewRedisClient(cfg)
	return cache.NewRedisCache(redisClient, cfg)
}

func setupLogger(cfg *config.Config) {
	var logLevel slog.Level

	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)
}
