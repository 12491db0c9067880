package ytdlp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/tvoe/vidgrab/internal/config"
	"github.com/tvoe/vidgrab/internal/domain"
	"github.com/tvoe/vidgrab/internal/metrics"
)

const (
	opMetadata = "metadata"
	opDownload = "download"
	opVersion  = "version"
)

// Client wraps yt-dlp invocations used by the service
type Client struct {
	metadataRunner CommandRunner
	downloadRunner CommandRunner
	ffmpegLocation string
	extraArgs      []string
	logger         *zap.Logger
	metrics        *metrics.Metrics
}

// NewClient creates a client running the configured yt-dlp binary
func NewClient(cfg config.YtDlpConfig, logger *zap.Logger, m *metrics.Metrics) *Client {
	return NewClientWithRunners(
		cfg,
		NewRunner(cfg.BinaryPath, cfg.MetadataTimeout),
		NewRunner(cfg.BinaryPath, cfg.DownloadTimeout),
		logger,
		m,
	)
}

// NewClientWithRunners creates a client on top of the given runners
func NewClientWithRunners(cfg config.YtDlpConfig, metadataRunner, downloadRunner CommandRunner, logger *zap.Logger, m *metrics.Metrics) *Client {
	return &Client{
		metadataRunner: metadataRunner,
		downloadRunner: downloadRunner,
		ffmpegLocation: cfg.FFmpegLocation,
		extraArgs:      cfg.ExtraArgs,
		logger:         logger,
		metrics:        m,
	}
}

// MetadataArgs builds the arguments for a metadata dump
func (c *Client) MetadataArgs(videoURL string) []string {
	args := []string{"-J", "--no-playlist", "--no-warnings"}
	args = append(args, c.extraArgs...)
	return append(args, videoURL)
}

// DownloadArgs builds the arguments for downloading format into outPath
func (c *Client) DownloadArgs(videoURL, format, outPath string) []string {
	args := []string{
		"-f", format,
		"--merge-output-format", domain.MergeContainer,
	}
	if c.ffmpegLocation != "" {
		args = append(args, "--ffmpeg-location", c.ffmpegLocation)
	}
	args = append(args,
		"--postprocessor-args", "ffmpeg:-c:a aac",
		"--no-playlist",
		"--newline",
		"-o", outPath,
	)
	args = append(args, c.extraArgs...)
	return append(args, videoURL)
}

// FetchMetadata dumps and decodes the metadata of a single video
func (c *Client) FetchMetadata(ctx context.Context, videoURL string) (*domain.VideoMetadata, error) {
	result, err := c.run(ctx, c.metadataRunner, opMetadata, c.MetadataArgs(videoURL), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrExtractionFailed, err)
	}
	if result.ExitCode != 0 {
		c.logger.Warn("metadata extraction failed",
			zap.String("url", videoURL),
			zap.Int("exitCode", result.ExitCode),
			zap.String("stderr", tail(result.Stderr)),
		)
		return nil, &domain.ExtractionError{
			Op:       opMetadata,
			ExitCode: result.ExitCode,
			Stderr:   result.Stderr,
			Err:      domain.ErrExtractionFailed,
		}
	}

	meta, err := DecodeMetadata(result.Stdout, videoURL)
	if err != nil {
		c.logger.Warn("failed to decode metadata",
			zap.String("url", videoURL),
			zap.Int("bytes", len(result.Stdout)),
			zap.Error(err),
		)
		return nil, err
	}

	c.logger.Debug("metadata fetched",
		zap.String("url", videoURL),
		zap.Int("variants", len(meta.Variants)),
		zap.Duration("took", result.Duration),
	)
	return meta, nil
}

// Download fetches format into outPath and returns the size of the file
func (c *Client) Download(ctx context.Context, videoURL, format, outPath string, progressFn ProgressCallback) (int64, error) {
	result, err := c.run(ctx, c.downloadRunner, opDownload, c.DownloadArgs(videoURL, format, outPath), progressFn)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrDownloadFailed, err)
	}
	if result.ExitCode != 0 {
		c.logger.Warn("download failed",
			zap.String("url", videoURL),
			zap.String("format", format),
			zap.Int("exitCode", result.ExitCode),
			zap.String("stderr", tail(result.Stderr)),
		)
		return 0, &domain.ExtractionError{
			Op:       opDownload,
			ExitCode: result.ExitCode,
			Stderr:   result.Stderr,
			Err:      domain.ErrDownloadFailed,
		}
	}

	size, err := ValidateOutput(outPath)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrDownloadFailed, err)
	}

	c.metrics.AddDownloadBytes(float64(size))
	c.logger.Info("download finished",
		zap.String("url", videoURL),
		zap.String("format", format),
		zap.String("size", humanize.IBytes(uint64(size))),
		zap.Duration("took", result.Duration),
	)
	return size, nil
}

// Version returns the installed yt-dlp version
func (c *Client) Version(ctx context.Context) (string, error) {
	result, err := c.run(ctx, c.metadataRunner, opVersion, []string{"--version"}, nil)
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("yt-dlp --version exited with code %d", result.ExitCode)
	}
	return strings.TrimSpace(string(result.Stdout)), nil
}

func (c *Client) run(ctx context.Context, runner CommandRunner, op string, args []string, progressFn ProgressCallback) (*Result, error) {
	c.metrics.IncrementToolProcesses()
	defer c.metrics.DecrementToolProcesses()

	started := time.Now()
	result, err := runner.Run(ctx, args, progressFn)

	outcome := "success"
	switch {
	case err != nil:
		outcome = "error"
	case result.ExitCode != 0:
		outcome = "failed"
	}
	c.metrics.RecordToolDuration(op, outcome, time.Since(started).Seconds())

	return result, err
}

// tail keeps the last part of stderr for log lines
func tail(s string) string {
	const max = 2048
	s = strings.TrimSpace(s)
	if len(s) > max {
		return s[len(s)-max:]
	}
	return s
}
