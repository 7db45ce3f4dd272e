// Command main is the entry point for the Codezen forum backend server.
package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"codezen/internal/config"
	"codezen/internal/observability"
	"codezen/internal/server"
)

// @title Codezen Forum API
// @version 1.0
// @description Finance discussion forum with nested comment threads and live updates over WebSocket
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@codezen.dev

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:5002
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Optional. Type "Bearer" followed by a space and a JWT whose "username" claim names the author.

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

const shutdownTimeout = 10 * time.Second

func tracingConfig(cfg *config.Config) observability.TracingConfig {
	return observability.TracingConfig{
		ServiceName:    "codezen-api",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		StoreDriver:    cfg.StoreDriver,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSamplerRatio,
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, tracingConfig(cfg))
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	served := make(chan error, 1)
	go func() { served <- srv.Start() }()

	var serveErr error
	select {
	case serveErr = <-served:
	case <-ctx.Done():
		log.Println("Shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("Tracing shutdown error: %v", err)
	}
	return serveErr
}
