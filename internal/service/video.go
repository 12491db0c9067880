package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tvoe/vidgrab/internal/domain"
	"github.com/tvoe/vidgrab/internal/metrics"
	"github.com/tvoe/vidgrab/internal/selection"
	"github.com/tvoe/vidgrab/internal/ytdlp"
)

// Extractor fetches metadata and media for a video URL
type Extractor interface {
	FetchMetadata(ctx context.Context, videoURL string) (*domain.VideoMetadata, error)
	Download(ctx context.Context, videoURL, format, outPath string, progressFn ytdlp.ProgressCallback) (int64, error)
}

// Resolved is a video with the options computed for it
type Resolved struct {
	Platform  domain.Platform
	Metadata  *domain.VideoMetadata
	Selection *selection.Selection
}

// Option returns the offered option for format
func (r *Resolved) Option(format string) (domain.DownloadOption, error) {
	opt, ok := domain.FindOption(r.Selection.Options, format)
	if !ok {
		return domain.DownloadOption{}, fmt.Errorf("%q: %w", format, domain.ErrFormatNotOffered)
	}
	return opt, nil
}

// Info builds the client-facing description of the video
func (r *Resolved) Info() *domain.VideoInfo {
	m := r.Metadata
	return &domain.VideoInfo{
		Title:                m.Title,
		URL:                  m.URL,
		Platform:             r.Platform,
		Thumbnail:            m.Thumbnail,
		DurationSeconds:      m.DurationSeconds,
		DurationString:       domain.FormatDuration(m.Duration()),
		Channel:              m.Channel,
		ChannelFollowerCount: m.ChannelFollowerCount,
		LikeCount:            m.LikeCount,
		ViewCount:            m.ViewCount,
		DownloadOptions:      r.Selection.Options,
	}
}

// DownloadedFile is a finished download waiting to be delivered
type DownloadedFile struct {
	Path        string
	FileName    string
	ContentType string
	Size        int64
	Option      domain.DownloadOption

	workspace *ytdlp.Workspace
}

// Open opens the file for reading
func (f *DownloadedFile) Open() (*os.File, error) {
	return os.Open(f.Path)
}

// Cleanup removes the file and its workspace
func (f *DownloadedFile) Cleanup() error {
	if f.workspace == nil {
		return nil
	}
	return f.workspace.Cleanup()
}

// VideoService resolves download options and performs downloads
type VideoService struct {
	extractor Extractor
	registry  *selection.Registry
	engine    *selection.Engine
	tempDir   string
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewVideoService creates a new video service
func NewVideoService(
	extractor Extractor,
	registry *selection.Registry,
	engine *selection.Engine,
	tempDir string,
	logger *zap.Logger,
	m *metrics.Metrics,
) *VideoService {
	return &VideoService{
		extractor: extractor,
		registry:  registry,
		engine:    engine,
		tempDir:   tempDir,
		logger:    logger,
		metrics:   m,
	}
}

// Resolve fetches the video's metadata and computes its download options
func (s *VideoService) Resolve(ctx context.Context, videoURL string) (*Resolved, error) {
	platform := domain.DetectPlatform(videoURL)
	policy, err := s.registry.Lookup(platform)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With(zap.String("url", videoURL), zap.String("platform", string(platform)))

	meta, err := s.extractor.FetchMetadata(ctx, videoURL)
	if err != nil {
		return nil, err
	}

	sel, err := s.engine.Select(meta, policy)
	if err != nil {
		logger.Info("no options for video", zap.Error(err))
		return nil, err
	}

	for _, a := range sel.Advisories {
		logger.Debug("selection advisory", zap.String("format", a.Format), zap.Error(a.Err))
	}
	s.metrics.ObserveOptions(string(platform), len(sel.Options), len(sel.Advisories))

	return &Resolved{Platform: platform, Metadata: meta, Selection: sel}, nil
}

// GetVideoDetails returns the video's description and download options
func (s *VideoService) GetVideoDetails(ctx context.Context, videoURL string) (*domain.VideoInfo, error) {
	resolved, err := s.Resolve(ctx, videoURL)
	s.record("info", videoURL, err)
	if err != nil {
		return nil, err
	}
	return resolved.Info(), nil
}

// Download fetches one of the offered formats into a temporary workspace.
// The caller must Cleanup the returned file.
func (s *VideoService) Download(ctx context.Context, videoURL, format string, progressFn ytdlp.ProgressCallback) (*DownloadedFile, error) {
	file, err := s.download(ctx, videoURL, format, progressFn)
	s.record("download", videoURL, err)
	return file, err
}

func (s *VideoService) download(ctx context.Context, videoURL, format string, progressFn ytdlp.ProgressCallback) (*DownloadedFile, error) {
	resolved, err := s.Resolve(ctx, videoURL)
	if err != nil {
		return nil, err
	}
	opt, err := resolved.Option(format)
	if err != nil {
		return nil, err
	}

	ws := ytdlp.NewWorkspace(s.tempDir, uuid.New())
	if err := ws.Create(); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	path := ws.OutputPath(resolved.Metadata.Title)
	size, err := s.extractor.Download(ctx, videoURL, format, path, progressFn)
	if err != nil {
		if cleanupErr := ws.Cleanup(); cleanupErr != nil {
			s.logger.Warn("failed to remove workspace", zap.String("dir", ws.Dir()), zap.Error(cleanupErr))
		}
		return nil, err
	}

	return &DownloadedFile{
		Path:        path,
		FileName:    filepath.Base(path),
		ContentType: domain.ContentTypeFor(path),
		Size:        size,
		Option:      opt,
		workspace:   ws,
	}, nil
}

func (s *VideoService) record(operation, videoURL string, err error) {
	outcome := "success"
	switch {
	case err == nil:
	case domain.IsClientError(err):
		outcome = "rejected"
	case errors.Is(err, context.Canceled):
		outcome = "canceled"
	default:
		outcome = "error"
	}
	s.metrics.IncrementRequests(operation, string(domain.DetectPlatform(videoURL)), outcome)
}
