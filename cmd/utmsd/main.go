// Command utmsd runs the UTMS scheduler agent: it loads the entity,
// pattern, and variable catalogs from the on-disk layout, then runs the
// scheduler loop and the ambient health/metrics HTTP surface until
// interrupted.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"utms/internal/config"
	"utms/internal/logger"
	"utms/internal/system"
)

func main() {
	var logLevel string
	flag.StringVar(&logLevel, "log-level", "", "override UTMS_LOG_LEVEL")
	flag.Parse()

	cfg := config.Load()
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	sys, err := system.New(cfg)
	if err != nil {
		logger.Error("utmsd: startup failed: %v", err)
		os.Exit(1)
	}
	defer sys.Close()

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: sys.HTTP.Handler(),
	}
	go func() {
		logger.Info("utmsd: ambient HTTP surface listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("utmsd: HTTP server failed: %v", err)
		}
	}()

	go sys.Agent.Run()
	logger.Info("utmsd: scheduler agent running, tick=%s horizon=%s", cfg.TickInterval, cfg.Horizon)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("utmsd: received signal %v, shutting down", sig)

	sys.Agent.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("utmsd: HTTP shutdown error: %v", err)
	}

	logger.Info("utmsd: shutdown complete")
}
