package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cinemastudio/internal/bootstrap"
	"cinemastudio/internal/http/handlers"
	httpapi "cinemastudio/internal/http/httpapi"
	"cinemastudio/internal/infra"
	"cinemastudio/internal/storage"
)

func main() {
	// Optional .env
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctx := context.Background()
	rt, err := bootstrap.NewRuntime(ctx, cfg, logger, registry)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to wire studio")
	}
	defer rt.Close()

	app := handlers.NewApp(rt.Service, logger)
	router := httpapi.NewRouter(app, httpapi.RouterOptions{
		Logger:          logger,
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Metrics:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		GeneratedDir:    rt.Store.Dir(storage.AreaGenerated),
		UploadsDir:      rt.Store.Dir(storage.AreaUploads),
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("backend", rt.Service.Backend()).Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
