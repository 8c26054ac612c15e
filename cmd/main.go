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

	"github.com/parquedb/parquedb/internal/blob"
	"github.com/parquedb/parquedb/internal/compaction"
	"github.com/parquedb/parquedb/internal/config"
	"github.com/parquedb/parquedb/internal/config/dto"
	"github.com/parquedb/parquedb/internal/engine"
	"github.com/parquedb/parquedb/internal/observability"
	"github.com/parquedb/parquedb/internal/server"
	pkgblob "github.com/parquedb/parquedb/pkg/blob"
	"github.com/parquedb/parquedb/pkg/document"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	var cfgPath string
	if *configPath != "" {
		cfgPath = *configPath
	} else if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		cfgPath = envPath
	} else {
		cfgPath = "config/application.yaml"
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: cfg.Observability.Logging.Output,
	})
	logger.Info("starting parquedb",
		"version", cfg.Application.Version,
		"environment", cfg.Application.Environment,
	)

	registry := prometheus.NewRegistry()
	// NewMetrics registers every collector on registry via promauto;
	// the handle itself isn't needed until call sites inside engine
	// start recording domain metrics directly.
	observability.NewMetrics(registry)

	store, err := newBlobStore(context.Background(), cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to create blob store: %w", err)
	}

	actor, err := document.NewEntityId("system", cfg.Application.Name)
	if err != nil {
		return fmt.Errorf("failed to construct default actor: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, err := engine.Open(ctx, store, engine.Config{
		Branch:              cfg.Branch.Name,
		MaxBufferedEvents:   cfg.Branch.MaxBufferedEvents,
		MaxEventsPerSegment: cfg.Branch.MaxEventsPerSegment,
		Compaction: compaction.Config{
			Enabled:                   cfg.Compaction.Enabled,
			EventThreshold:            cfg.Compaction.EventThreshold,
			BatchFileThreshold:        cfg.Compaction.BatchFileThreshold,
			AutoCompactOnStartup:      cfg.Compaction.AutoCompactOnStartup,
			AutoCompactFileThreshold:  cfg.Compaction.AutoCompactFileThreshold,
			AutoCompactEventThreshold: cfg.Compaction.AutoCompactEventThreshold,
		},
		DefaultActor: actor,
	})
	if err != nil {
		return fmt.Errorf("failed to open engine: %w", err)
	}

	healthChecker := newEngineHealthChecker(eng, cfg.Observability.Health.MaxUncompactedSegments)

	httpServer := server.NewServer(
		cfg.Observability.Health.Port,
		cfg.Observability.Metrics.Port,
		healthChecker,
		registry,
		logger,
	)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	logger.Info("parquedb started successfully",
		"branch", cfg.Branch.Name,
		"storage_backend", cfg.Storage.Backend,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("received termination signal, shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Shutdown.GracePeriodSeconds)*time.Second)
	defer shutdownCancel()

	if err := eng.DisposeAsync(shutdownCtx); err != nil {
		logger.Error("failed to flush engine on shutdown", "error", err)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down HTTP server", "error", err)
	}

	logger.Info("parquedb stopped successfully")
	return nil
}

func newBlobStore(ctx context.Context, cfg dto.StorageConfig) (pkgblob.Store, error) {
	switch cfg.Backend {
	case "file":
		return blob.NewFileStore(cfg.File.BasePath)
	case "s3":
		return blob.NewS3Store(ctx, blob.S3Config{
			Bucket:       cfg.S3.Bucket,
			Region:       cfg.S3.Region,
			BasePath:     cfg.S3.BasePath,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.UsePathStyle,
			SSEEnabled:   cfg.S3.SSEEnabled,
			SSEKMSKeyID:  cfg.S3.SSEKMSKeyID,
		})
	case "azure":
		return blob.NewAzureStore(blob.AzureConfig{
			AccountName: cfg.Azure.AccountName,
			AccountKey:  os.Getenv("AZURE_STORAGE_ACCOUNT_KEY"),
			Container:   cfg.Azure.Container,
		})
	case "gcs":
		return blob.NewGCSStore(ctx, blob.GCSConfig{
			Bucket:               cfg.GCS.Bucket,
			ProjectID:            cfg.GCS.ProjectID,
			BasePath:             cfg.GCS.BasePath,
			CredentialsFile:      cfg.GCS.CredentialsFile,
			CredentialsJSON:      os.Getenv("GCP_CREDENTIALS_JSON"),
			UseDefaultCredential: cfg.GCS.UseDefaultCredential,
		})
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s (supported: file, s3, azure, gcs)", cfg.Backend)
	}
}

// engineHealthChecker reports liveness unconditionally (the process
// doesn't hold any connection that can drop) and reports readiness
// false once the compaction backlog crosses the configured threshold,
// since a runaway segment count means query latency is about to
// degrade badly enough that traffic should stop routing here.
type engineHealthChecker struct {
	eng                    *engine.Engine
	maxUncompactedSegments int
}

func newEngineHealthChecker(eng *engine.Engine, maxUncompactedSegments int) *engineHealthChecker {
	return &engineHealthChecker{eng: eng, maxUncompactedSegments: maxUncompactedSegments}
}

func (h *engineHealthChecker) Liveness() bool { return true }

func (h *engineHealthChecker) Readiness(ctx context.Context) bool {
	stats := h.eng.GetCompactionStats()
	if h.maxUncompactedSegments > 0 && stats.BatchFileCount > h.maxUncompactedSegments {
		return false
	}
	return true
}

func (h *engineHealthChecker) IsHealthy() bool {
	return h.Readiness(context.Background())
}

func (h *engineHealthChecker) GetStatus() map[string]string {
	stats := h.eng.GetCompactionStats()
	status := "ok"
	if h.maxUncompactedSegments > 0 && stats.BatchFileCount > h.maxUncompactedSegments {
		status = "compaction backlog"
	}
	return map[string]string{
		"compaction": status,
		"segments":   fmt.Sprintf("%d", stats.BatchFileCount),
	}
}
