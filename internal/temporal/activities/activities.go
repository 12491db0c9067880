package activities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/tvoe/vidgrab/internal/config"
	"github.com/tvoe/vidgrab/internal/domain"
	"github.com/tvoe/vidgrab/internal/metrics"
	"github.com/tvoe/vidgrab/internal/service"
	"github.com/tvoe/vidgrab/internal/storage/s3"
	"github.com/tvoe/vidgrab/internal/ytdlp"
)

const (
	infoFileName = "info.json"
	// minimum interval between progress writes while downloading
	progressInterval = 2 * time.Second
)

// JobStore persists job state
type JobStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	SetStarted(ctx context.Context, jobID uuid.UUID) error
	SetTitle(ctx context.Context, jobID uuid.UUID, title string) error
	UpdateProgress(ctx context.Context, jobID uuid.UUID, stage domain.Stage, stageProgress, overallProgress int) error
	SetFinished(ctx context.Context, jobID uuid.UUID, status domain.JobStatus) error
}

// ErrorStore records job errors
type ErrorStore interface {
	Create(ctx context.Context, jobErr *domain.JobError) error
}

// ArtifactStore records stored files
type ArtifactStore interface {
	Create(ctx context.Context, artifact *domain.Artifact) error
	DeleteByJobID(ctx context.Context, jobID uuid.UUID) error
}

// Resolver computes the download options of a video
type Resolver interface {
	Resolve(ctx context.Context, videoURL string) (*service.Resolved, error)
}

// Downloader fetches one format of a video
type Downloader interface {
	Download(ctx context.Context, videoURL, format, outPath string, progressFn ytdlp.ProgressCallback) (int64, error)
}

// Uploader stores a job workspace
type Uploader interface {
	UploadWorkspace(ctx context.Context, jobID uuid.UUID, dir, bucket string, progressFn func(s3.UploadProgress)) ([]*domain.Artifact, error)
}

// Activities holds all activity implementations
type Activities struct {
	config       *config.Config
	jobRepo      JobStore
	errorRepo    ErrorStore
	artifactRepo ArtifactStore
	resolver     Resolver
	downloader   Downloader
	uploader     Uploader
	bucket       string
	logger       *zap.Logger
	metrics      *metrics.Metrics
}

// NewActivities creates a new activities instance
func NewActivities(
	cfg *config.Config,
	jobRepo JobStore,
	errorRepo ErrorStore,
	artifactRepo ArtifactStore,
	resolver Resolver,
	downloader Downloader,
	uploader Uploader,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Activities {
	return &Activities{
		config:       cfg,
		jobRepo:      jobRepo,
		errorRepo:    errorRepo,
		artifactRepo: artifactRepo,
		resolver:     resolver,
		downloader:   downloader,
		uploader:     uploader,
		bucket:       cfg.S3.BucketOutput,
		logger:       logger,
		metrics:      m,
	}
}

// ActivityInput holds common input for activities
type ActivityInput struct {
	JobID uuid.UUID `json:"jobId"`
}

// ResolveOutput holds the option a job will download
type ResolveOutput struct {
	Title      string `json:"title"`
	Format     string `json:"format"`
	Resolution string `json:"resolution"`
	Streams    int    `json:"streams"`
}

// ResolveFormat fetches the video's metadata, checks the job's format is
// offered and prepares the workspace
func (a *Activities) ResolveFormat(ctx context.Context, input ActivityInput) (*ResolveOutput, error) {
	logger := a.logger.With(zap.String("jobId", input.JobID.String()), zap.String("activity", "ResolveFormat"))
	startTime := time.Now()
	defer func() {
		a.metrics.RecordStageDuration(string(domain.StageResolving), time.Since(startTime).Seconds())
	}()

	if err := a.jobRepo.SetStarted(ctx, input.JobID); err != nil {
		logger.Error("failed to update job status", zap.Error(err))
	}
	a.metrics.IncrementJobsActive()
	a.updateProgress(ctx, logger, input.JobID, domain.StageResolving, 0)

	job, err := a.jobRepo.GetByID(ctx, input.JobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	resolved, err := a.resolver.Resolve(ctx, job.VideoURL)
	if err != nil {
		return nil, a.recordError(ctx, job, domain.StageResolving, domain.CodeFor(err), err)
	}
	option, err := resolved.Option(job.Format)
	if err != nil {
		return nil, a.recordError(ctx, job, domain.StageResolving, domain.ErrCodeFormatNotOffered, err)
	}
	a.updateProgress(ctx, logger, input.JobID, domain.StageResolving, 50)

	if err := a.jobRepo.SetTitle(ctx, input.JobID, resolved.Metadata.Title); err != nil {
		logger.Warn("failed to store title", zap.Error(err))
	}

	workspace := ytdlp.NewWorkspace(a.config.Worker.WorkdirRoot, input.JobID)
	if err := workspace.Create(); err != nil {
		return nil, a.recordError(ctx, job, domain.StageResolving, domain.ErrCodeInternalError, err)
	}

	info, err := json.MarshalIndent(resolved.Info(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode video info: %w", err)
	}
	if err := os.WriteFile(workspace.MetaPath(infoFileName), info, 0644); err != nil {
		return nil, a.recordError(ctx, job, domain.StageResolving, domain.ErrCodeInternalError, err)
	}

	a.updateProgress(ctx, logger, input.JobID, domain.StageResolving, 100)
	logger.Info("format resolved",
		zap.String("format", option.Format),
		zap.String("resolution", option.Resolution),
		zap.String("platform", string(resolved.Platform)),
	)

	return &ResolveOutput{
		Title:      resolved.Metadata.Title,
		Format:     option.Format,
		Resolution: option.Resolution,
		Streams:    strings.Count(option.Format, "+") + 1,
	}, nil
}

// DownloadInput holds download input
type DownloadInput struct {
	JobID   uuid.UUID `json:"jobId"`
	Title   string    `json:"title"`
	Streams int       `json:"streams"`
}

// DownloadOutput holds download output
type DownloadOutput struct {
	FileName  string `json:"fileName"`
	SizeBytes int64  `json:"sizeBytes"`
}

// DownloadVideo downloads the job's format into its workspace
func (a *Activities) DownloadVideo(ctx context.Context, input DownloadInput) (*DownloadOutput, error) {
	logger := a.logger.With(zap.String("jobId", input.JobID.String()), zap.String("activity", "DownloadVideo"))
	startTime := time.Now()
	defer func() {
		a.metrics.RecordStageDuration(string(domain.StageDownloading), time.Since(startTime).Seconds())
	}()

	a.updateProgress(ctx, logger, input.JobID, domain.StageDownloading, 0)

	job, err := a.jobRepo.GetByID(ctx, input.JobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	workspace := ytdlp.NewWorkspace(a.config.Worker.WorkdirRoot, input.JobID)
	if !workspace.Exists() {
		if err := workspace.Create(); err != nil {
			return nil, a.recordError(ctx, job, domain.StageDownloading, domain.ErrCodeInternalError, err)
		}
	}
	outPath := workspace.OutputPath(input.Title)

	var mu sync.Mutex
	lastProgress := -1
	var lastWrite time.Time
	progressFn := func(p ytdlp.Progress) {
		progress := ytdlp.CalculateProgress(p, input.Streams)
		activity.RecordHeartbeat(ctx, progress)

		mu.Lock()
		defer mu.Unlock()
		if progress == lastProgress || time.Since(lastWrite) < progressInterval {
			return
		}
		lastProgress = progress
		lastWrite = time.Now()
		a.updateProgress(ctx, logger, input.JobID, domain.StageDownloading, progress)
	}

	size, err := a.downloader.Download(ctx, job.VideoURL, job.Format, outPath, progressFn)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, a.recordError(ctx, job, domain.StageDownloading, domain.CodeFor(err), err)
	}

	a.updateProgress(ctx, logger, input.JobID, domain.StageDownloading, 100)
	logger.Info("video downloaded", zap.String("path", outPath), zap.Int64("sizeBytes", size))

	return &DownloadOutput{FileName: filepath.Base(outPath), SizeBytes: size}, nil
}

// UploadOutput holds upload output
type UploadOutput struct {
	ArtifactCount int   `json:"artifactCount"`
	SizeBytes     int64 `json:"sizeBytes"`
}

// UploadArtifacts uploads the workspace to S3 and records the artifacts
func (a *Activities) UploadArtifacts(ctx context.Context, input ActivityInput) (*UploadOutput, error) {
	logger := a.logger.With(zap.String("jobId", input.JobID.String()), zap.String("activity", "UploadArtifacts"))
	startTime := time.Now()
	defer func() {
		a.metrics.RecordStageDuration(string(domain.StageUploading), time.Since(startTime).Seconds())
	}()

	a.updateProgress(ctx, logger, input.JobID, domain.StageUploading, 0)

	job, err := a.jobRepo.GetByID(ctx, input.JobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	workspace := ytdlp.NewWorkspace(a.config.Worker.WorkdirRoot, input.JobID)
	artifacts, err := a.uploader.UploadWorkspace(ctx, input.JobID, workspace.Dir(), a.bucket, func(p s3.UploadProgress) {
		progress := p.Percent()
		a.updateProgress(ctx, logger, input.JobID, domain.StageUploading, progress)
		activity.RecordHeartbeat(ctx, progress)
	})
	if err != nil {
		return nil, a.recordError(ctx, job, domain.StageUploading, domain.ErrCodeNetworkError, err)
	}

	if err := a.artifactRepo.DeleteByJobID(ctx, input.JobID); err != nil {
		return nil, fmt.Errorf("failed to clear artifacts: %w", err)
	}

	var total int64
	for _, artifact := range artifacts {
		if err := a.artifactRepo.Create(ctx, artifact); err != nil {
			return nil, fmt.Errorf("failed to save artifact: %w", err)
		}
		if artifact.SizeBytes != nil {
			total += *artifact.SizeBytes
		}
	}

	a.metrics.AddUploadBytes(float64(total))
	a.metrics.RecordUploadDuration(time.Since(startTime).Seconds())
	a.updateProgress(ctx, logger, input.JobID, domain.StageUploading, 100)
	logger.Info("artifacts uploaded", zap.Int("count", len(artifacts)), zap.Int64("bytes", total))

	return &UploadOutput{ArtifactCount: len(artifacts), SizeBytes: total}, nil
}

// CleanupInput holds cleanup input
type CleanupInput struct {
	JobID uuid.UUID `json:"jobId"`
}

// Cleanup removes the job workspace
func (a *Activities) Cleanup(ctx context.Context, input CleanupInput) error {
	logger := a.logger.With(zap.String("jobId", input.JobID.String()), zap.String("activity", "Cleanup"))
	startTime := time.Now()
	defer func() {
		a.metrics.RecordStageDuration(string(domain.StageCleanup), time.Since(startTime).Seconds())
	}()

	a.updateProgress(ctx, logger, input.JobID, domain.StageCleanup, 0)

	workspace := ytdlp.NewWorkspace(a.config.Worker.WorkdirRoot, input.JobID)
	freed, err := workspace.DiskUsage()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("failed to measure workspace", zap.Error(err))
	}
	if err := workspace.Cleanup(); err != nil {
		logger.Warn("failed to cleanup workspace", zap.Error(err))
	}

	a.updateProgress(ctx, logger, input.JobID, domain.StageCleanup, 100)
	logger.Info("cleanup complete", zap.Int64("freedBytes", freed))

	return nil
}

// FinalizeJobInput holds the final state of a job
type FinalizeJobInput struct {
	JobID   uuid.UUID        `json:"jobId"`
	Status  domain.JobStatus `json:"status"`
	Error   string           `json:"error,omitempty"`
	Started bool             `json:"started"`
}

// FinalizeJob stores the terminal status of a job
func (a *Activities) FinalizeJob(ctx context.Context, input FinalizeJobInput) error {
	logger := a.logger.With(zap.String("jobId", input.JobID.String()), zap.String("activity", "FinalizeJob"))

	if input.Started {
		a.metrics.DecrementJobsActive()
	}

	if err := a.jobRepo.SetFinished(ctx, input.JobID, input.Status); err != nil {
		return fmt.Errorf("failed to finalize job: %w", err)
	}
	a.metrics.IncrementJobsTotal(string(input.Status))

	logger.Info("job finalized", zap.String("status", string(input.Status)), zap.String("error", input.Error))
	return nil
}

// Helper methods

func (a *Activities) updateProgress(ctx context.Context, logger *zap.Logger, jobID uuid.UUID, stage domain.Stage, stageProgress int) {
	job := domain.Job{CurrentStage: &stage, StageProgress: stageProgress}
	if err := a.jobRepo.UpdateProgress(ctx, jobID, stage, stageProgress, job.CalculateOverallProgress()); err != nil {
		logger.Warn("failed to update progress", zap.String("stage", string(stage)), zap.Error(err))
	}
}

func (a *Activities) recordError(ctx context.Context, job *domain.Job, stage domain.Stage, code string, err error) error {
	class := domain.ClassifyError(code)
	jobErr := domain.NewJobError(job.ID, stage, class, code, err.Error(), job.Attempt)

	var extractionErr *domain.ExtractionError
	if errors.As(err, &extractionErr) {
		jobErr.WithDetails("exitCode", extractionErr.ExitCode)
	}

	if createErr := a.errorRepo.Create(ctx, jobErr); createErr != nil {
		a.logger.Error("failed to record job error", zap.String("jobId", job.ID.String()), zap.Error(createErr))
	}

	a.metrics.IncrementStageFailures(string(stage), string(class))

	if class == domain.ErrorClassFatal {
		return temporal.NewNonRetryableApplicationError(err.Error(), code, err)
	}
	return temporal.NewApplicationError(err.Error(), code, err)
}
