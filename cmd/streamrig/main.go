// Streamrig event core — routes live-stream events through mapping rules,
// expands patterns, and dispatches device commands through the safety
// arbiter and the bounded priority queue.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"

	"github.com/streamrig/streamrig/pkg/api"
	"github.com/streamrig/streamrig/pkg/config"
	"github.com/streamrig/streamrig/pkg/device"
	"github.com/streamrig/streamrig/pkg/events"
	"github.com/streamrig/streamrig/pkg/ingest"
	"github.com/streamrig/streamrig/pkg/mapping"
	"github.com/streamrig/streamrig/pkg/notify"
	"github.com/streamrig/streamrig/pkg/pattern"
	"github.com/streamrig/streamrig/pkg/queue"
	"github.com/streamrig/streamrig/pkg/safety"
	"github.com/streamrig/streamrig/pkg/services"
	"github.com/streamrig/streamrig/pkg/store"
	"github.com/streamrig/streamrig/pkg/version"
)

// hubWriteTimeout bounds a single WebSocket write; slow clients are dropped.
const hubWriteTimeout = 5 * time.Second

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// notifyingDispatcher decorates the pool so emergency-stop transitions
// reach the operator channel. Only real transitions produce an alert.
type notifyingDispatcher struct {
	*queue.DispatcherPool
	notifier *notify.Notifier
}

func (d *notifyingDispatcher) TriggerEmergencyStop(reason string) bool {
	triggered := d.DispatcherPool.TriggerEmergencyStop(reason)
	if triggered {
		d.notifier.NotifyEmergencyStop(context.Background(), true, reason)
	}
	return triggered
}

func (d *notifyingDispatcher) ClearEmergencyStop() bool {
	cleared := d.DispatcherPool.ClearEmergencyStop()
	if cleared {
		d.notifier.NotifyEmergencyStop(context.Background(), false, "")
	}
	return cleared
}

func main() {
	// Parse command-line flags
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	slog.Info("Starting streamrig", "version", version.Full(), "config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(*configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize the settings store
	dbConfig, err := store.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	st, err := store.New(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("Error closing settings store", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL settings store")

	// Persisted safety overrides win over file configuration.
	persisted, err := st.LoadSafetyConfig(ctx)
	if err != nil {
		slog.Error("Failed to load persisted safety config", "error", err)
		os.Exit(1)
	}
	if persisted != nil {
		if err := mergo.Merge(cfg.Safety, persisted, mergo.WithOverride); err != nil {
			slog.Error("Failed to apply persisted safety config", "error", err)
			os.Exit(1)
		}
		slog.Info("Applied persisted safety overrides",
			"max_intensity", cfg.Safety.MaxIntensity,
			"max_commands_per_minute", cfg.Safety.MaxCommandsPerMinute)
	}

	// 3. Event stream: recorder, WebSocket hub, publisher
	recorder := events.NewRecorder()
	hub := events.NewHub(hubWriteTimeout)
	publisher := events.NewPublisher(recorder, hub)

	// 4. Safety arbiter and engines
	latch := safety.NewLatch()
	ledger := safety.NewRateLedger()
	arbiter := safety.NewArbiter(cfg.Safety, latch, ledger)

	mapEngine := mapping.NewEngine(cfg.Safety, publisher)
	patEngine := pattern.NewEngine()

	mappingSvc := services.NewMappingService(mapEngine, st)
	patternSvc := services.NewPatternService(patEngine, st)

	mappingCount, err := mappingSvc.Load(ctx)
	if err != nil {
		slog.Error("Failed to load mappings", "error", err)
		os.Exit(1)
	}
	patternCount, err := patternSvc.Load(ctx)
	if err != nil {
		slog.Error("Failed to load patterns", "error", err)
		os.Exit(1)
	}
	slog.Info("Services initialized", "mappings", mappingCount, "patterns", patternCount)

	// 5. Device backend client and operator notifier
	deviceClient := device.NewClient(cfg.Device)
	notifier := notify.New(cfg.Notify)

	// 6. Dispatcher pool; pattern items flow back in through the pool
	pool := queue.NewDispatcherPool(cfg.Queue, arbiter, deviceClient, patEngine, publisher, notifier)
	patEngine.SetSubmitter(pool)
	dispatcher := &notifyingDispatcher{DispatcherPool: pool, notifier: notifier}

	router := ingest.NewRouter(mapEngine, patEngine, pool)

	// 7. HTTP server
	server := api.NewServer(cfg.Server, mappingSvc, patternSvc, router, dispatcher, deviceClient, recorder, hub, st)
	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: server.Routes(),
	}

	// 8. Start workers and HTTP server (non-blocking)
	pool.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Streamrig started successfully", "workers", cfg.Queue.WorkerCount)

	// 9. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 10. Graceful shutdown: drain workers first, then the HTTP server
	workerShutdownCtx, workerCancel := context.WithTimeout(ctx, cfg.Queue.GracefulShutdownTimeout)
	defer workerCancel()

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Dispatcher pool stopped gracefully")
	case <-workerShutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded, queued items abandoned")
	}

	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
