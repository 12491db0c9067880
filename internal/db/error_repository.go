package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/tvoe/vidgrab/internal/domain"
)

// ErrorRepository handles job error persistence
type ErrorRepository struct {
	db *DB
}

// NewErrorRepository creates a new error repository
func NewErrorRepository(db *DB) *ErrorRepository {
	return &ErrorRepository{db: db}
}

// Create records a job error and points the job at it
func (r *ErrorRepository) Create(ctx context.Context, jobErr *domain.JobError) error {
	detailsJSON, err := json.Marshal(jobErr.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal details: %w", err)
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO job_errors (
			id, job_id, stage, class, code, message, details, attempt, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = tx.Exec(ctx, query,
		jobErr.ID,
		jobErr.JobID,
		jobErr.Stage,
		jobErr.Class,
		jobErr.Code,
		jobErr.Message,
		detailsJSON,
		jobErr.Attempt,
		jobErr.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create error: %w", err)
	}

	_, err = tx.Exec(ctx, `UPDATE download_jobs SET last_error_id = $2 WHERE id = $1`, jobErr.JobID, jobErr.ID)
	if err != nil {
		return fmt.Errorf("failed to update job last_error_id: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetByJobID retrieves errors for a job, newest first
func (r *ErrorRepository) GetByJobID(ctx context.Context, jobID uuid.UUID) ([]*domain.JobError, error) {
	query := `
		SELECT id, job_id, stage, class, code, message, details, attempt, created_at
		FROM job_errors
		WHERE job_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get errors: %w", err)
	}
	defer rows.Close()

	var jobErrors []*domain.JobError
	for rows.Next() {
		var jobErr domain.JobError
		var detailsJSON []byte

		if err := rows.Scan(
			&jobErr.ID,
			&jobErr.JobID,
			&jobErr.Stage,
			&jobErr.Class,
			&jobErr.Code,
			&jobErr.Message,
			&detailsJSON,
			&jobErr.Attempt,
			&jobErr.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan error: %w", err)
		}

		if err := json.Unmarshal(detailsJSON, &jobErr.Details); err != nil {
			jobErr.Details = make(map[string]any)
		}

		jobErrors = append(jobErrors, &jobErr)
	}

	return jobErrors, rows.Err()
}
