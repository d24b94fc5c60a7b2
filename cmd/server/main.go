// Command main is the entry point for the HelpMatch API server.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"helpmatch/internal/bootstrap"
	"helpmatch/internal/config"
	"helpmatch/internal/server"
)

// @title HelpMatch API
// @version 1.0
// @description Community assistance requests: post, claim, prove and rate help.
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@helpmatch.dev

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8375
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	fixture := flag.String("seed-fixture", "", "YAML fixture to load on startup (ignored in production)")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{SeedFixture: *fixture})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	srv, err := server.NewServerWithDeps(cfg, rt.DB, rt.Redis)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown server resources
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server resource shutdown error: %v", err)
	}
	rt.ShutdownTracing(shutdownCtx)
}
