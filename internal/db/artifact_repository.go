package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tvoe/vidgrab/internal/domain"
)

// ArtifactRepository handles artifact persistence
type ArtifactRepository struct {
	db *DB
}

// NewArtifactRepository creates a new artifact repository
func NewArtifactRepository(db *DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// Create creates a new artifact
func (r *ArtifactRepository) Create(ctx context.Context, artifact *domain.Artifact) error {
	query := `
		INSERT INTO job_artifacts (
			id, job_id, type, bucket, key, size_bytes, checksum, content_type, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		artifact.ID,
		artifact.JobID,
		artifact.Type,
		artifact.Bucket,
		artifact.Key,
		artifact.SizeBytes,
		artifact.Checksum,
		artifact.ContentType,
		artifact.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create artifact: %w", err)
	}

	return nil
}

// GetByJobID retrieves artifacts for a job
func (r *ArtifactRepository) GetByJobID(ctx context.Context, jobID uuid.UUID) ([]*domain.Artifact, error) {
	query := `
		SELECT id, job_id, type, bucket, key, size_bytes, checksum, content_type, created_at
		FROM job_artifacts
		WHERE job_id = $1
		ORDER BY type, created_at
	`

	rows, err := r.db.Pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*domain.Artifact
	for rows.Next() {
		var artifact domain.Artifact
		if err := rows.Scan(
			&artifact.ID,
			&artifact.JobID,
			&artifact.Type,
			&artifact.Bucket,
			&artifact.Key,
			&artifact.SizeBytes,
			&artifact.Checksum,
			&artifact.ContentType,
			&artifact.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		artifacts = append(artifacts, &artifact)
	}

	return artifacts, rows.Err()
}

// DeleteByJobID removes the artifact rows of a job so a retried upload
// does not record its files twice
func (r *ArtifactRepository) DeleteByJobID(ctx context.Context, jobID uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM job_artifacts WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("failed to delete artifacts: %w", err)
	}
	return nil
}
