package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/tvoe/vidgrab/internal/config"
	"github.com/tvoe/vidgrab/internal/db"
	"github.com/tvoe/vidgrab/internal/logging"
	"github.com/tvoe/vidgrab/internal/metrics"
	"github.com/tvoe/vidgrab/internal/selection"
	"github.com/tvoe/vidgrab/internal/service"
	"github.com/tvoe/vidgrab/internal/storage/s3"
	"github.com/tvoe/vidgrab/internal/temporal/activities"
	"github.com/tvoe/vidgrab/internal/temporal/workflows"
	"github.com/tvoe/vidgrab/internal/ytdlp"
)

const lowDiskThreshold = 10 * 1024 * 1024 * 1024

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	// Initialize logger
	logger, err := logging.New(cfg.Log)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	if err := cfg.ValidateJobs(); err != nil {
		logger.Fatal("invalid worker configuration", zap.Error(err))
	}
	if err := os.MkdirAll(cfg.Worker.WorkdirRoot, 0755); err != nil {
		logger.Fatal("failed to create workdir root", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	database, err := db.New(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close()
	if err := database.EnsureSchema(ctx); err != nil {
		logger.Fatal("failed to apply database schema", zap.Error(err))
	}

	// Initialize repositories
	jobRepo := db.NewJobRepository(database)
	errorRepo := db.NewErrorRepository(database)
	artifactRepo := db.NewArtifactRepository(database)

	// Initialize S3 client
	s3Client, err := s3.New(cfg.S3)
	if err != nil {
		logger.Fatal("failed to initialize S3 client", zap.Error(err))
	}

	// Initialize Temporal client
	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.Address,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		logger.Fatal("failed to connect to Temporal", zap.Error(err))
	}
	defer temporalClient.Close()

	m := metrics.New(prometheus.DefaultRegisterer)

	registry, err := selection.LoadRegistry(cfg.Policy.File)
	if err != nil {
		logger.Fatal("failed to load resolution policies", zap.Error(err))
	}
	tool := ytdlp.NewClient(cfg.YtDlp, logger, m)
	videos := service.NewVideoService(tool, registry, selection.NewEngine(logger), cfg.Worker.WorkdirRoot, logger, m)

	// Create activities
	acts := activities.NewActivities(
		cfg,
		jobRepo,
		errorRepo,
		artifactRepo,
		videos,
		tool,
		s3.NewWorkspaceUploader(s3Client, 2),
		logger,
		m,
	)

	// Create worker
	w := worker.New(temporalClient, cfg.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     cfg.Worker.MaxParallelJobs,
		MaxConcurrentWorkflowTaskExecutionSize: cfg.Worker.MaxParallelJobs * 2,
	})

	w.RegisterWorkflow(workflows.DownloadWorkflow)
	w.RegisterActivity(acts)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start metrics server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		metricsAddr := fmt.Sprintf(":%d", cfg.Worker.MetricsPort)
		logger.Info("starting metrics server", zap.String("addr", metricsAddr))
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	go monitorDiskSpace(ctx, cfg.Worker.WorkdirRoot, m, logger)
	go runOrphanCleanup(ctx, cfg.Worker.WorkdirRoot, logger)

	// Start worker in a goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- w.Run(worker.InterruptCh())
	}()

	logger.Info("worker started",
		zap.String("taskQueue", cfg.Temporal.TaskQueue),
		zap.Int("maxParallelJobs", cfg.Worker.MaxParallelJobs),
		zap.String("workdir", cfg.Worker.WorkdirRoot),
	)

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		if err != nil {
			logger.Error("worker error", zap.Error(err))
		}
	}

	cancel()
	w.Stop()
	logger.Info("worker stopped")
}

// monitorDiskSpace reports free space of the workdir filesystem
func monitorDiskSpace(ctx context.Context, workdir string, m *metrics.Metrics, logger *zap.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			free, err := ytdlp.FreeBytes(workdir)
			if err != nil {
				logger.Warn("failed to get disk stats", zap.Error(err))
				continue
			}

			m.SetDiskFreeBytes(float64(free))
			if free < lowDiskThreshold {
				logger.Warn("low disk space", zap.String("free", humanize.IBytes(free)))
			}
		}
	}
}

// runOrphanCleanup periodically removes workspaces left by crashed jobs
func runOrphanCleanup(ctx context.Context, workdir string, logger *zap.Logger) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := ytdlp.CleanupOrphans(workdir, 24*time.Hour)
			if err != nil {
				logger.Warn("orphan cleanup failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("removed orphan workspaces", zap.Int("count", removed))
			}
		}
	}
}
