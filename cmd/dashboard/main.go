package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/backend"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/bus"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/dashboard"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/logger"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/metrics"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/realtime"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/webui"
)

var (
	// Command-line flags
	backendURL  = flag.String("backend", "http://localhost:8000", "Counting backend base URL")
	apiKey      = flag.String("api-key", "", "Bearer API key for the backend")
	pushURL     = flag.String("push", "", "Backend websocket push URL (default: derived from -backend)")
	httpAddr    = flag.String("http", ":8090", "HTTP server address")
	metricsAddr = flag.String("metrics", ":9090", "Metrics server address")
	targetFPS   = flag.Int("fps", 30, "Editor render loop frame rate")
	refresh     = flag.Duration("refresh", dashboard.DefaultRefreshInterval, "Dashboard refetch interval")
	logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error, silent)")
	logColor    = flag.Bool("log-color", true, "Enable colored log output")
)

func main() {
	flag.Parse()

	// Initialize logger
	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, *logColor)

	logger.Info("Main", "Dashboard server starting...")
	logger.Info("Main", "Backend: %s", *backendURL)
	logger.Info("Main", "Log level: %s", level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	b := bus.New(m)
	client := backend.New(*backendURL, *apiKey, m)
	manager := dashboard.NewManager(client, b, *refresh)

	cfg := webui.DefaultConfig()
	cfg.Addr = *httpAddr
	cfg.TargetFPS = *targetFPS
	server := webui.NewServer(cfg, client, b, manager, m)
	server.SetBaseContext(ctx)

	// Metrics server
	go func() {
		logger.Info("Main", "Metrics server on %s", *metricsAddr)
		if err := m.StartServer(*metricsAddr); err != nil {
			logger.Error("Main", "Metrics server error: %v", err)
		}
	}()

	// Dashboard refetch loop
	go manager.Run(ctx)

	// Backend push channel
	push := *pushURL
	if push == "" {
		push = derivePushURL(*backendURL)
	}
	logger.Info("Main", "Push channel: %s", push)
	go realtime.NewClient(push, manager).Run(ctx)

	// HTTP server
	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.Handler(),
	}
	go func() {
		logger.Info("Main", "HTTP server on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Main", "Shutting down...")
	cancel()
	server.Hub().Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Main", "Shutdown error: %v", err)
	}
	logger.Info("Main", "Server stopped")
}

// derivePushURL maps the backend REST base URL onto its websocket endpoint.
func derivePushURL(base string) string {
	url := strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url + "/ws"
}
