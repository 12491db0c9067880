package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tvoe/vidgrab/internal/domain"
)

// ErrNotFound is returned when a resource is not found
var ErrNotFound = errors.New("not found")

const jobColumns = `id, video_url, platform, format, title, status, current_stage,
	stage_progress, overall_progress, idempotency_key, workflow_id,
	created_at, started_at, updated_at, finished_at, attempt, last_error_id`

// JobRepository handles download job persistence
type JobRepository struct {
	db *DB
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create creates a new job
func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO download_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		job.ID,
		job.VideoURL,
		job.Platform,
		job.Format,
		job.Title,
		job.Status,
		job.CurrentStage,
		job.StageProgress,
		job.OverallProgress,
		job.IdempotencyKey,
		job.WorkflowID,
		job.CreatedAt,
		job.StartedAt,
		job.UpdatedAt,
		job.FinishedAt,
		job.Attempt,
		job.LastErrorID,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetByID retrieves a job by ID
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM download_jobs WHERE id = $1`
	return scanJob(r.db.Pool.QueryRow(ctx, query, id))
}

// GetByIdempotencyKey retrieves a job by idempotency key
func (r *JobRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM download_jobs WHERE idempotency_key = $1`
	return scanJob(r.db.Pool.QueryRow(ctx, query, key))
}

// UpdateProgress updates job progress
func (r *JobRepository) UpdateProgress(ctx context.Context, jobID uuid.UUID, stage domain.Stage, stageProgress, overallProgress int) error {
	query := `
		UPDATE download_jobs SET
			current_stage = $2,
			stage_progress = $3,
			overall_progress = $4
		WHERE id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query, jobID, stage, stageProgress, overallProgress)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}

	return nil
}

// SetTitle stores the resolved video title
func (r *JobRepository) SetTitle(ctx context.Context, jobID uuid.UUID, title string) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE download_jobs SET title = $2 WHERE id = $1`, jobID, title)
	if err != nil {
		return fmt.Errorf("failed to set title: %w", err)
	}
	return nil
}

// SetStarted marks job as started and counts the attempt
func (r *JobRepository) SetStarted(ctx context.Context, jobID uuid.UUID) error {
	query := `
		UPDATE download_jobs SET
			status = $2,
			started_at = COALESCE(started_at, $3),
			attempt = attempt + 1
		WHERE id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query, jobID, domain.JobStatusRunning, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set started: %w", err)
	}

	return nil
}

// SetFinished marks job as finished. A job that already reached a terminal
// status keeps it.
func (r *JobRepository) SetFinished(ctx context.Context, jobID uuid.UUID, status domain.JobStatus) error {
	query := `
		UPDATE download_jobs SET
			status = $2,
			finished_at = $3,
			overall_progress = CASE WHEN $2 = 'COMPLETED' THEN 100 ELSE overall_progress END
		WHERE id = $1 AND status NOT IN ('COMPLETED', 'FAILED', 'CANCELED')
	`

	_, err := r.db.Pool.Exec(ctx, query, jobID, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set finished: %w", err)
	}

	return nil
}

// SetWorkflowID sets the Temporal workflow ID
func (r *JobRepository) SetWorkflowID(ctx context.Context, jobID uuid.UUID, workflowID string) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE download_jobs SET workflow_id = $2 WHERE id = $1`, jobID, workflowID)
	if err != nil {
		return fmt.Errorf("failed to set workflow ID: %w", err)
	}

	return nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job

	err := row.Scan(
		&job.ID,
		&job.VideoURL,
		&job.Platform,
		&job.Format,
		&job.Title,
		&job.Status,
		&job.CurrentStage,
		&job.StageProgress,
		&job.OverallProgress,
		&job.IdempotencyKey,
		&job.WorkflowID,
		&job.CreatedAt,
		&job.StartedAt,
		&job.UpdatedAt,
		&job.FinishedAt,
		&job.Attempt,
		&job.LastErrorID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	return &job, nil
}
