package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"chat-relay-backend/internal/config"
	"chat-relay-backend/internal/handlers"
	"chat-relay-backend/internal/metrics"
	"chat-relay-backend/internal/router"
	"chat-relay-backend/internal/services"
	"chat-relay-backend/internal/web"
)

func main() {
	log.Info("🚀 Starting chat relay...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()

	logger := log.New()
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown LOG_LEVEL %q, using info", cfg.LogLevel)
	}
	if cfg.Env != "development" {
		logger.SetFormatter(&log.JSONFormatter{})
	}
	logger.Info("✓ Environment variables loaded")

	// ──── Step 2: Initialize Metrics ────
	recorder := metrics.NewRecorder()

	// ──── Step 3: Initialize Upstream Client ────
	completionClient := services.NewCompletionClient(services.CompletionConfig{
		BaseURL: cfg.OpenRouterBaseURL,
		APIKey:  cfg.OpenRouterAPIKey,
		Model:   cfg.OpenRouterModel,
		Timeout: cfg.UpstreamTimeout,
	}, recorder, logger)
	logger.WithFields(log.Fields{
		"model":   cfg.OpenRouterModel,
		"timeout": cfg.UpstreamTimeout,
	}).Info("✓ Completion client initialized")

	// ──── Step 4: Parse Templates ────
	tmpl, err := web.Templates()
	if err != nil {
		logger.Fatalf("✗ Template parsing failed: %v", err)
	}

	// ──── Initialize Handlers ────
	chatHandler := handlers.NewChatHandler(completionClient, recorder, logger)
	pageHandler := handlers.NewPageHandler(tmpl, cfg.OpenRouterModel, logger)

	// ──── Step 5: Start HTTP Server ────
	r := router.New(chatHandler, pageHandler, recorder, logger, cfg.AllowedOrigin)

	// No WriteTimeout: a chat request lasts as long as the upstream call.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	logger.Infof("✓ Chat relay ready on http://localhost:%s", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatalf("Server error: %v", err)
	}
}
