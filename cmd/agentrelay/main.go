// Package main is the entry point for the agentrelay server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sevir/agentrelay/internal/config"
	"github.com/sevir/agentrelay/internal/metrics"
	"github.com/sevir/agentrelay/internal/runner"
	"github.com/sevir/agentrelay/internal/server"
	"github.com/sevir/agentrelay/internal/session"
	"github.com/sevir/agentrelay/pkg/models"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

func main() {
	// Parse flags
	var (
		configPath      = flag.String("config", "", "Path to config file")
		host            = flag.String("host", "", "Server host (default: 127.0.0.1)")
		port            = flag.Int("port", 0, "Server port (default: 8000)")
		dockerImage     = flag.String("docker-image", "", "Run agents inside this container image")
		responseTimeout = flag.Duration("response-timeout", 0, "Response deadline per run (0 = unbounded)")
		showVersion     = flag.Bool("version", false, "Show version and exit")
		initConfig      = flag.Bool("init", false, "Initialize default config and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("agentrelay %s (%s)\n", version, commit)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Override with flags
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dockerImage != "" {
		cfg.DockerImage = *dockerImage
	}
	if *responseTimeout != 0 {
		cfg.ResponseTimeout = models.Duration(*responseTimeout)
	}

	if *initConfig {
		if err := cfg.Save(*configPath); err != nil {
			log.Fatalf("Failed to save config: %v", err)
		}
		fmt.Println("Configuration initialized")
		os.Exit(0)
	}

	registry := session.NewRegistry()
	m := metrics.New(prometheus.DefaultRegisterer)

	run := runner.New(registry, runner.Options{
		ResponseTimeout: time.Duration(cfg.ResponseTimeout),
		Grace:           time.Duration(cfg.TerminateGrace),
		Metrics:         m,
	})

	srv := server.New(server.Config{
		Addr:      cfg.Address(),
		Version:   version,
		Commit:    commit,
		AppConfig: cfg,
		Registry:  registry,
		Runner:    run,
	})

	// Handle shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}

		registry.TerminateAll()
	}()

	log.Printf("agentrelay %s starting", version)
	log.Printf("Run endpoint:    http://%s/run", cfg.Address())
	log.Printf("Stop endpoint:   http://%s/stop/:id", cfg.Address())
	log.Printf("Agents endpoint: http://%s/agents", cfg.Address())
	log.Printf("Health check:    http://%s/health", cfg.Address())
	log.Printf("Metrics:         http://%s/metrics", cfg.Address())

	// Start server
	if err := srv.Start(); err != nil {
		select {
		case <-ctx.Done():
			// Expected shutdown
		default:
			log.Fatalf("Server error: %v", err)
		}
	}
}
