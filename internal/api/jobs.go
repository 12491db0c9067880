package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/tvoe/vidgrab/internal/db"
	"github.com/tvoe/vidgrab/internal/domain"
	"github.com/tvoe/vidgrab/internal/temporal/workflows"
)

// JobStore persists download jobs
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Job, error)
	SetWorkflowID(ctx context.Context, jobID uuid.UUID, workflowID string) error
	SetFinished(ctx context.Context, jobID uuid.UUID, status domain.JobStatus) error
}

// ErrorStore reads recorded job errors
type ErrorStore interface {
	GetByJobID(ctx context.Context, jobID uuid.UUID) ([]*domain.JobError, error)
}

// ArtifactStore reads stored job outputs
type ArtifactStore interface {
	GetByJobID(ctx context.Context, jobID uuid.UUID) ([]*domain.Artifact, error)
}

// ObjectStore signs links to stored objects
type ObjectStore interface {
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	Health(ctx context.Context) error
}

// Pinger checks a backing service
type Pinger interface {
	Health(ctx context.Context) error
}

// JobBackend groups the dependencies of the job endpoints
type JobBackend struct {
	Jobs       JobStore
	Errors     ErrorStore
	Artifacts  ArtifactStore
	Objects    ObjectStore
	Database   Pinger
	Temporal   client.Client
	TaskQueue  string
	PresignTTL time.Duration
}

func (b *JobBackend) health(ctx context.Context) map[string]error {
	return map[string]error{
		"database": b.Database.Health(ctx),
		"s3":       b.Objects.Health(ctx),
	}
}

// CreateJobRequest represents the request to create a job
type CreateJobRequest struct {
	VideoURL       string `json:"videoUrl"`
	SelectedFormat string `json:"selectedFormat"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// CreateJobResponse represents the response after creating a job
type CreateJobResponse struct {
	JobID     uuid.UUID        `json:"jobId"`
	Status    domain.JobStatus `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
}

// JobStatusResponse represents job status response
type JobStatusResponse struct {
	ID              uuid.UUID        `json:"id"`
	VideoURL        string           `json:"videoUrl"`
	Platform        domain.Platform  `json:"platform"`
	Format          string           `json:"format"`
	Title           *string          `json:"title,omitempty"`
	Status          domain.JobStatus `json:"status"`
	CurrentStage    *domain.Stage    `json:"currentStage,omitempty"`
	StageProgress   int              `json:"stageProgress"`
	OverallProgress int              `json:"overallProgress"`
	CreatedAt       time.Time        `json:"createdAt"`
	StartedAt       *time.Time       `json:"startedAt,omitempty"`
	UpdatedAt       time.Time        `json:"updatedAt"`
	FinishedAt      *time.Time       `json:"finishedAt,omitempty"`
	Errors          []*ErrorResponse `json:"errors,omitempty"`
}

// ErrorResponse represents error response
type ErrorResponse struct {
	Stage     domain.Stage      `json:"stage"`
	Class     domain.ErrorClass `json:"class"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	CreatedAt time.Time         `json:"createdAt"`
}

// ArtifactResponse represents artifact response
type ArtifactResponse struct {
	ID          uuid.UUID           `json:"id"`
	Type        domain.ArtifactType `json:"type"`
	FileName    string              `json:"fileName"`
	ContentType string              `json:"contentType"`
	Bucket      string              `json:"bucket"`
	Key         string              `json:"key"`
	SizeBytes   *int64              `json:"sizeBytes,omitempty"`
	URL         string              `json:"url,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
}

// CreateJob creates a new download job and starts its workflow
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validateVideoURL(req.VideoURL); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if domain.DetectPlatform(req.VideoURL) == domain.PlatformUnknown {
		h.writeError(w, http.StatusBadRequest, "unsupported platform")
		return
	}
	if req.SelectedFormat == "" {
		h.writeError(w, http.StatusBadRequest, "selectedFormat is required")
		return
	}

	ctx := r.Context()

	// Check idempotency
	if req.IdempotencyKey != "" {
		existingJob, err := h.jobs.Jobs.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		if err == nil && existingJob != nil {
			h.writeJSON(w, http.StatusOK, CreateJobResponse{
				JobID:     existingJob.ID,
				Status:    existingJob.Status,
				CreatedAt: existingJob.CreatedAt,
			})
			return
		}
	}

	job := domain.NewJob(req.VideoURL, req.SelectedFormat)
	if req.IdempotencyKey != "" {
		job.IdempotencyKey = &req.IdempotencyKey
	}

	if err := h.jobs.Jobs.Create(ctx, job); err != nil {
		h.logger.Error("failed to create job", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	workflowOptions := client.StartWorkflowOptions{
		ID:        workflows.WorkflowID(job.ID),
		TaskQueue: h.jobs.TaskQueue,
	}

	workflowRun, err := h.jobs.Temporal.ExecuteWorkflow(ctx, workflowOptions, workflows.DownloadWorkflow, workflows.DownloadWorkflowInput{
		JobID: job.ID,
	})
	if err != nil {
		h.logger.Error("failed to start workflow", zap.String("jobId", job.ID.String()), zap.Error(err))
		if err := h.jobs.Jobs.SetFinished(ctx, job.ID, domain.JobStatusFailed); err != nil {
			h.logger.Error("failed to mark job failed", zap.Error(err))
		}
		h.writeError(w, http.StatusInternalServerError, "failed to start workflow")
		return
	}

	if err := h.jobs.Jobs.SetWorkflowID(ctx, job.ID, workflowRun.GetID()); err != nil {
		h.logger.Error("failed to set workflow ID", zap.Error(err))
	}

	h.metrics.IncrementJobsTotal(string(domain.JobStatusQueued))
	h.logger.Info("job created",
		zap.String("jobId", job.ID.String()),
		zap.String("workflowId", workflowRun.GetID()),
		zap.String("format", job.Format),
	)

	h.writeJSON(w, http.StatusCreated, CreateJobResponse{
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	})
}

// GetJob gets job status
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}

	response := JobStatusResponse{
		ID:              job.ID,
		VideoURL:        job.VideoURL,
		Platform:        job.Platform,
		Format:          job.Format,
		Title:           job.Title,
		Status:          job.Status,
		CurrentStage:    job.CurrentStage,
		StageProgress:   job.StageProgress,
		OverallProgress: job.OverallProgress,
		CreatedAt:       job.CreatedAt,
		StartedAt:       job.StartedAt,
		UpdatedAt:       job.UpdatedAt,
		FinishedAt:      job.FinishedAt,
	}

	if job.Status == domain.JobStatusFailed {
		jobErrors, err := h.jobs.Errors.GetByJobID(r.Context(), job.ID)
		if err != nil {
			h.logger.Warn("failed to load job errors", zap.String("jobId", job.ID.String()), zap.Error(err))
		}
		for _, e := range jobErrors {
			response.Errors = append(response.Errors, &ErrorResponse{
				Stage:     e.Stage,
				Class:     e.Class,
				Code:      e.Code,
				Message:   e.Message,
				CreatedAt: e.CreatedAt,
			})
		}
	}

	h.writeJSON(w, http.StatusOK, response)
}

// CancelJob cancels a job
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if job.Status.IsTerminal() {
		h.writeError(w, http.StatusConflict, "job cannot be cancelled")
		return
	}

	if job.WorkflowID != nil {
		if err := h.jobs.Temporal.SignalWorkflow(ctx, *job.WorkflowID, "", workflows.CancelSignal, nil); err != nil {
			h.logger.Error("failed to signal workflow", zap.Error(err))
		}
		if err := h.jobs.Temporal.CancelWorkflow(ctx, *job.WorkflowID, ""); err != nil {
			h.logger.Error("failed to cancel workflow", zap.Error(err))
		}
	}

	if err := h.jobs.Jobs.SetFinished(ctx, job.ID, domain.JobStatusCanceled); err != nil {
		h.logger.Error("failed to update job status", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to cancel job")
		return
	}

	h.metrics.IncrementJobsTotal(string(domain.JobStatusCanceled))
	h.logger.Info("job cancelled", zap.String("jobId", job.ID.String()))

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// GetArtifacts lists job artifacts with presigned download links
func (h *Handler) GetArtifacts(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobId"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid job ID")
		return
	}

	ctx := r.Context()

	artifacts, err := h.jobs.Artifacts.GetByJobID(ctx, jobID)
	if err != nil {
		h.logger.Error("failed to get artifacts", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to get artifacts")
		return
	}

	response := make([]*ArtifactResponse, 0, len(artifacts))
	for _, a := range artifacts {
		item := &ArtifactResponse{
			ID:          a.ID,
			Type:        a.Type,
			FileName:    a.FileName(),
			ContentType: a.ContentType,
			Bucket:      a.Bucket,
			Key:         a.Key,
			SizeBytes:   a.SizeBytes,
			CreatedAt:   a.CreatedAt,
		}
		if link, err := h.jobs.Objects.PresignGet(ctx, a.Bucket, a.Key, h.jobs.PresignTTL); err != nil {
			h.logger.Warn("failed to presign artifact", zap.String("key", a.Key), zap.Error(err))
		} else {
			item.URL = link
		}
		response = append(response, item)
	}

	h.writeJSON(w, http.StatusOK, response)
}

func (h *Handler) loadJob(w http.ResponseWriter, r *http.Request) (*domain.Job, bool) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobId"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid job ID")
		return nil, false
	}

	job, err := h.jobs.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "job not found")
			return nil, false
		}
		h.logger.Error("failed to get job", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to get job")
		return nil, false
	}
	return job, true
}
