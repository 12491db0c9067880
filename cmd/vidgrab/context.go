package main

import (
	"context"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tvoe/vidgrab/internal/config"
	"github.com/tvoe/vidgrab/internal/domain"
	"github.com/tvoe/vidgrab/internal/logging"
	"github.com/tvoe/vidgrab/internal/metrics"
	"github.com/tvoe/vidgrab/internal/selection"
	"github.com/tvoe/vidgrab/internal/service"
	"github.com/tvoe/vidgrab/internal/ytdlp"
)

type videoService interface {
	GetVideoDetails(ctx context.Context, videoURL string) (*domain.VideoInfo, error)
	Download(ctx context.Context, videoURL, format string, progressFn ytdlp.ProgressCallback) (*service.DownloadedFile, error)
}

type commandContext struct {
	policyFlag *string
	verbose    *bool

	once     sync.Once
	err      error
	registry *selection.Registry
	videos   videoService
}

func newCommandContext(policyFlag *string, verbose *bool) *commandContext {
	return &commandContext{
		policyFlag: policyFlag,
		verbose:    verbose,
	}
}

// ensure builds the registry and the video service on first use
func (c *commandContext) ensure() error {
	c.once.Do(func() {
		if c.registry != nil {
			return
		}
		_ = godotenv.Load()

		cfg, err := config.Load()
		if err != nil {
			c.err = err
			return
		}
		if c.policyFlag != nil && strings.TrimSpace(*c.policyFlag) != "" {
			cfg.Policy.File = strings.TrimSpace(*c.policyFlag)
		}

		cfg.Log.Format = "console"
		if c.verbose == nil || !*c.verbose {
			cfg.Log.Level = "warn"
		}
		logger, err := logging.New(cfg.Log)
		if err != nil {
			c.err = err
			return
		}

		registry, err := selection.LoadRegistry(cfg.Policy.File)
		if err != nil {
			c.err = err
			return
		}

		// the CLI exposes no metrics endpoint
		m := metrics.New(prometheus.NewRegistry())
		tool := ytdlp.NewClient(cfg.YtDlp, logger.Named("ytdlp"), m)

		c.registry = registry
		c.videos = service.NewVideoService(tool, registry, selection.NewEngine(logger), cfg.Download.TempDir, logger, m)
	})
	return c.err
}
