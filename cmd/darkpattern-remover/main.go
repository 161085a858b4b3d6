// Package main runs the dark pattern removal service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/darkpattern-remover/internal/browser"
	"github.com/Rorqualx/darkpattern-remover/internal/cleaner"
	"github.com/Rorqualx/darkpattern-remover/internal/config"
	"github.com/Rorqualx/darkpattern-remover/internal/handlers"
	"github.com/Rorqualx/darkpattern-remover/internal/metrics"
	"github.com/Rorqualx/darkpattern-remover/internal/middleware"
	"github.com/Rorqualx/darkpattern-remover/internal/stats"
	"github.com/Rorqualx/darkpattern-remover/internal/store"
	"github.com/Rorqualx/darkpattern-remover/pkg/version"
)

func main() {
	cfg := config.Load()

	// Logging first so that validation warnings are visible.
	setupLogging(cfg.LogLevel)
	cfg.Validate()

	log.Info().
		Str("version", version.Full()).
		Str("go_version", version.GoVersion()).
		Msg("Starting dark pattern remover")

	settings, err := store.Open(cfg.StoreBackend, cfg.StorePath, cfg.StoreHotReload)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("Failed to open settings store")
	}

	var pool *browser.Pool
	if cfg.StaticOnly {
		log.Warn().Msg("STATIC_ONLY set, browser pool disabled; page.clean is unavailable")
	} else {
		log.Info().Int("size", cfg.BrowserPoolSize).Msg("Initializing browser pool...")
		pool, err = browser.NewPool(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize browser pool")
		}
		metrics.UpdatePoolMetrics(pool.Size(), pool.Available())
	}

	statsMgr := stats.NewManager(cfg.MaxTrackedHosts)
	c := cleaner.New(pool, settings, statsMgr, cfg)
	handler := handlers.New(pool, c, cfg)

	// Recovery is outermost so that it also covers logging.
	chain := middleware.Chain(
		middleware.Recovery,
		middleware.Logging,
		middleware.APIKey(cfg),
	)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           chain(handler),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.MaxTimeout + 10*time.Second,
		WriteTimeout:      cfg.MaxTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	stopCh := make(chan struct{})

	var metricsServer *http.Server
	if cfg.PrometheusEnabled {
		metrics.SetBuildInfo(version.Full(), version.GoVersion())
		go metrics.StartMemoryCollector(10*time.Second, stopCh)

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.PrometheusPort),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}

		go func() {
			log.Info().Int("port", cfg.PrometheusPort).Msg("Prometheus metrics server started")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	go func() {
		log.Info().
			Str("address", addr).
			Bool("static_only", pool == nil).
			Str("store", cfg.StoreBackend).
			Bool("metrics_enabled", cfg.PrometheusEnabled).
			Msg("Dark pattern remover is ready to accept requests")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	close(stopCh)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Metrics server shutdown error")
		}
	}

	statsMgr.Close()

	if pool != nil {
		if err := pool.Close(); err != nil {
			log.Error().Err(err).Msg("Browser pool close error")
		}
	}
	if err := settings.Close(); err != nil {
		log.Error().Err(err).Msg("Settings store close error")
	}

	log.Info().Msg("Shutdown complete")
}

// setupLogging configures the global zerolog logger.
func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
