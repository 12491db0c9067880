package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/tvoe/vidgrab/internal/api"
	"github.com/tvoe/vidgrab/internal/config"
	"github.com/tvoe/vidgrab/internal/db"
	"github.com/tvoe/vidgrab/internal/logging"
	"github.com/tvoe/vidgrab/internal/metrics"
	"github.com/tvoe/vidgrab/internal/selection"
	"github.com/tvoe/vidgrab/internal/service"
	"github.com/tvoe/vidgrab/internal/storage/s3"
	"github.com/tvoe/vidgrab/internal/ytdlp"
)

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New(prometheus.DefaultRegisterer)

	registry, err := selection.LoadRegistry(cfg.Policy.File)
	if err != nil {
		logger.Fatal("failed to load resolution policies", zap.Error(err))
	}

	tool := ytdlp.NewClient(cfg.YtDlp, logger, m)
	videos := service.NewVideoService(tool, registry, selection.NewEngine(logger), cfg.Download.TempDir, logger, m)

	var jobs *api.JobBackend
	if cfg.Jobs.Enabled {
		var closeJobs func()
		jobs, closeJobs = connectJobs(ctx, cfg, logger)
		defer closeJobs()
	}

	handler := api.NewHandler(cfg, videos, tool, jobs, logger, m)
	router := api.NewRouter(handler, cfg.API, logger)
	server := api.NewServer(cfg.API, router, logger)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	logger.Info("API server started",
		zap.String("addr", server.Addr()),
		zap.String("ytdlp", cfg.YtDlp.BinaryPath),
		zap.Bool("jobsEnabled", cfg.Jobs.Enabled),
	)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		if err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}

	logger.Info("API server stopped")
}

// connectJobs wires the stores and the Temporal client behind the job
// endpoints. The returned func releases them.
func connectJobs(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*api.JobBackend, func()) {
	database, err := db.New(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := database.EnsureSchema(ctx); err != nil {
		logger.Fatal("failed to apply database schema", zap.Error(err))
	}

	s3Client, err := s3.New(cfg.S3)
	if err != nil {
		logger.Fatal("failed to initialize S3 client", zap.Error(err))
	}

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.Address,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		logger.Fatal("failed to connect to Temporal", zap.Error(err))
	}

	logger.Info("job backend connected",
		zap.String("temporalAddress", cfg.Temporal.Address),
		zap.String("taskQueue", cfg.Temporal.TaskQueue),
	)

	backend := &api.JobBackend{
		Jobs:       db.NewJobRepository(database),
		Errors:     db.NewErrorRepository(database),
		Artifacts:  db.NewArtifactRepository(database),
		Objects:    s3Client,
		Database:   database,
		Temporal:   temporalClient,
		TaskQueue:  cfg.Temporal.TaskQueue,
		PresignTTL: cfg.S3.PresignTTL,
	}
	return backend, func() {
		temporalClient.Close()
		database.Close()
	}
}
