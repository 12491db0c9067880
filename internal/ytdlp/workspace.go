package ytdlp

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/tvoe/vidgrab/internal/domain"
)

const lockFile = ".lock"

// Workspace is a scratch directory holding one download
type Workspace struct {
	dir string
}

// NewWorkspace creates a workspace handle under root for id
func NewWorkspace(root string, id uuid.UUID) *Workspace {
	return &Workspace{dir: filepath.Join(root, id.String())}
}

// Create creates the workspace directory and its lock file
func (w *Workspace) Create() error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.dir, err)
	}

	f, err := os.Create(filepath.Join(w.dir, lockFile))
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	f.Close()

	return nil
}

// Cleanup removes the workspace
func (w *Workspace) Cleanup() error {
	return os.RemoveAll(w.dir)
}

// Dir returns the workspace directory
func (w *Workspace) Dir() string {
	return w.dir
}

// OutputPath returns the path of the merged download named after title
func (w *Workspace) OutputPath(title string) string {
	return filepath.Join(w.dir, domain.SafeFileName(title)+"."+domain.MergeContainer)
}

// MetaPath returns path for a metadata file
func (w *Workspace) MetaPath(filename string) string {
	return filepath.Join(w.dir, filename)
}

// Exists checks if workspace exists
func (w *Workspace) Exists() bool {
	_, err := os.Stat(w.dir)
	return err == nil
}

// DiskUsage returns workspace disk usage in bytes
func (w *Workspace) DiskUsage() (int64, error) {
	var size int64
	err := filepath.Walk(w.dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// CleanupOrphans removes workspaces older than maxAge that hold no live lock
// and returns how many were removed
func CleanupOrphans(root string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return 0, fmt.Errorf("failed to read workspace root: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := uuid.Parse(entry.Name()); err != nil {
			continue
		}

		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		// a lock older than maxAge was left by a worker that died mid-job
		dir := filepath.Join(root, entry.Name())
		if lock, err := os.Stat(filepath.Join(dir, lockFile)); err == nil && lock.ModTime().After(cutoff) {
			continue
		}

		if err := os.RemoveAll(dir); err == nil {
			removed++
		}
	}

	return removed, nil
}

// FreeBytes returns the free space of the filesystem holding path
func FreeBytes(path string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
