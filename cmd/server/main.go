package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/voxrelay/voxrelay/internal/capture"
	"github.com/voxrelay/voxrelay/internal/config"
	"github.com/voxrelay/voxrelay/internal/gateway"
	"github.com/voxrelay/voxrelay/internal/httpserver"
	"github.com/voxrelay/voxrelay/internal/logging"
	"github.com/voxrelay/voxrelay/internal/settings"
)

func main() {
	cfg := config.Load()

	logger := logging.New(cfg.LogFile, cfg.Debug)
	defer logger.Sync()

	pool := gateway.NewPool(cfg.GatewayBaseURL, cfg.ConnPoolSize, cfg.ConnPoolTTL, logger)
	defer pool.Close()

	store := settings.NewStore(cfg.SettingsDir)

	var recognizer capture.Recognizer
	if cfg.STTAPIKey != "" {
		recognizer = capture.NewWSRecognizer(capture.WSConfig{
			URL:        cfg.STTWebSocketURL,
			APIKey:     cfg.STTAPIKey,
			SampleRate: 16000,
			Logger:     logger,
		})
	} else {
		// No recognizer credentials: replay a scripted conversation so the
		// rest of the pipeline can still be exercised end to end.
		logger.Warn("STT_API_KEY not set, running with scripted capture")
		recognizer = &capture.ScriptedRecognizer{Events: []capture.Event{
			{Text: "what can", Final: false},
			{Text: "what can you do", Final: true},
		}}
	}

	srv := httpserver.New(httpserver.Deps{
		Pool:            pool,
		Store:           store,
		Recognizer:      recognizer,
		DispatchTimeout: cfg.DispatchTimeout,
		Logger:          logger,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.HTTPAddress))
		serverErrors <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	case sig := <-sigChan:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		_ = server.Close()
	}
}
