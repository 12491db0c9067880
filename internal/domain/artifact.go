package domain

import (
	"path"
	"time"

	"github.com/google/uuid"
)

// ArtifactType represents the type of artifact
type ArtifactType string

const (
	ArtifactTypeVideo    ArtifactType = "VIDEO"
	ArtifactTypeMetadata ArtifactType = "METADATA_JSON"
)

// Artifact is a stored output of a download job
type Artifact struct {
	ID          uuid.UUID    `json:"id" db:"id"`
	JobID       uuid.UUID    `json:"jobId" db:"job_id"`
	Type        ArtifactType `json:"type" db:"type"`
	Bucket      string       `json:"bucket" db:"bucket"`
	Key         string       `json:"key" db:"key"`
	SizeBytes   *int64       `json:"sizeBytes,omitempty" db:"size_bytes"`
	Checksum    *string      `json:"checksum,omitempty" db:"checksum"`
	ContentType string       `json:"contentType" db:"content_type"`
	CreatedAt   time.Time    `json:"createdAt" db:"created_at"`
}

// NewArtifact creates a new artifact. The content type follows the key's
// extension.
func NewArtifact(jobID uuid.UUID, artifactType ArtifactType, bucket, key string) *Artifact {
	return &Artifact{
		ID:          uuid.New(),
		JobID:       jobID,
		Type:        artifactType,
		Bucket:      bucket,
		Key:         key,
		ContentType: ContentTypeFor(key),
		CreatedAt:   time.Now().UTC(),
	}
}

// FileName returns the name the artifact was stored under
func (a *Artifact) FileName() string {
	return path.Base(a.Key)
}

// WithSize sets the size of the artifact
func (a *Artifact) WithSize(size int64) *Artifact {
	a.SizeBytes = &size
	return a
}

// WithChecksum sets the checksum of the artifact
func (a *Artifact) WithChecksum(checksum string) *Artifact {
	a.Checksum = &checksum
	return a
}
