package s3

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tvoe/vidgrab/internal/domain"
)

// UploadProgress tracks upload progress
type UploadProgress struct {
	TotalFiles     int
	CompletedFiles int
	TotalBytes     int64
	UploadedBytes  int64
}

// Percent returns the uploaded share of bytes as 0..100
func (p UploadProgress) Percent() int {
	if p.TotalBytes == 0 {
		if p.TotalFiles == 0 {
			return 100
		}
		return p.CompletedFiles * 100 / p.TotalFiles
	}
	return int(p.UploadedBytes * 100 / p.TotalBytes)
}

// FileUploader uploads one file
type FileUploader interface {
	Upload(ctx context.Context, bucket, key, srcPath string) (*UploadResult, error)
}

// WorkspaceUploader uploads the files a job produced
type WorkspaceUploader struct {
	client        FileUploader
	maxConcurrent int
}

// NewWorkspaceUploader creates a new workspace uploader
func NewWorkspaceUploader(client FileUploader, maxConcurrent int) *WorkspaceUploader {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &WorkspaceUploader{
		client:        client,
		maxConcurrent: maxConcurrent,
	}
}

type fileInfo struct {
	localPath string
	key       string
	size      int64
}

// UploadWorkspace uploads every regular file in dir, skipping hidden files,
// under the job's key prefix and returns the resulting artifacts
func (u *WorkspaceUploader) UploadWorkspace(
	ctx context.Context,
	jobID uuid.UUID,
	dir string,
	bucket string,
	progressFn func(UploadProgress),
) ([]*domain.Artifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace: %w", err)
	}

	var files []fileInfo
	var totalBytes int64
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}
		files = append(files, fileInfo{
			localPath: filepath.Join(dir, entry.Name()),
			key:       ObjectKey(jobID, entry.Name()),
			size:      info.Size(),
		})
		totalBytes += info.Size()
	}

	var artifacts []*domain.Artifact
	var artifactsMu sync.Mutex
	var uploadedBytes int64
	var completedFiles int32

	sem := make(chan struct{}, u.maxConcurrent)
	errChan := make(chan error, len(files))
	var wg sync.WaitGroup

	for _, f := range files {
		wg.Add(1)
		go func(f fileInfo) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			case sem <- struct{}{}:
				defer func() { <-sem }()
			}

			result, err := u.client.Upload(ctx, bucket, f.key, f.localPath)
			if err != nil {
				errChan <- fmt.Errorf("failed to upload %s: %w", f.key, err)
				return
			}

			artifact := domain.NewArtifact(jobID, ArtifactTypeFor(f.key), bucket, f.key).
				WithSize(result.Size).
				WithChecksum(result.ETag)

			artifactsMu.Lock()
			artifacts = append(artifacts, artifact)
			artifactsMu.Unlock()

			uploaded := atomic.AddInt64(&uploadedBytes, f.size)
			completed := atomic.AddInt32(&completedFiles, 1)

			if progressFn != nil {
				progressFn(UploadProgress{
					TotalFiles:     len(files),
					CompletedFiles: int(completed),
					TotalBytes:     totalBytes,
					UploadedBytes:  uploaded,
				})
			}
		}(f)
	}

	wg.Wait()
	close(errChan)

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return artifacts, nil
}

// ArtifactTypeFor determines the artifact type from a key
func ArtifactTypeFor(key string) domain.ArtifactType {
	if strings.EqualFold(filepath.Ext(key), ".json") {
		return domain.ArtifactTypeMetadata
	}
	return domain.ArtifactTypeVideo
}
