package ytdlp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Phase is the part of a download yt-dlp reports progress for
type Phase string

const (
	PhaseDownloading Phase = "downloading"
	PhaseMerging     Phase = "merging"
)

// Progress represents yt-dlp download progress
type Progress struct {
	Phase      Phase
	Percent    float64
	TotalBytes uint64
	Speed      string
	ETA        string
	// Stream counts the streams started so far; a paired format downloads
	// video and audio one after another.
	Stream int
}

// ProgressCallback is called with progress updates
type ProgressCallback func(Progress)

// Result is the outcome of a finished process. A non-zero exit is reported
// here rather than as an error.
type Result struct {
	Stdout   []byte
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// CommandRunner executes the extraction tool
type CommandRunner interface {
	Run(ctx context.Context, args []string, progressFn ProgressCallback) (*Result, error)
}

// Runner executes yt-dlp commands
type Runner struct {
	binaryPath string
	timeout    time.Duration
	heartbeat  time.Duration
}

// NewRunner creates a new runner
func NewRunner(binaryPath string, timeout time.Duration) *Runner {
	return &Runner{
		binaryPath: binaryPath,
		timeout:    timeout,
		heartbeat:  30 * time.Second,
	}
}

// Run executes yt-dlp with progress tracking and returns its captured output
func (r *Runner) Run(ctx context.Context, args []string, progressFn ProgressCallback) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.binaryPath, args...)
	// ffmpeg children may keep the pipes open after yt-dlp is killed
	cmd.WaitDelay = 10 * time.Second

	var stdout, stderr bytes.Buffer
	lines := newLineWriter()
	cmd.Stdout = io.MultiWriter(&stdout, lines)
	cmd.Stderr = &stderr

	started := time.Now()
	if err := cmd.Start(); err != nil {
		lines.Close()
		return nil, fmt.Errorf("failed to start yt-dlp: %w", err)
	}

	progressChan := make(chan Progress, 1)
	done := make(chan struct{})

	// Parse progress lines
	go func() {
		defer close(done)
		progress := Progress{}
		for line := range lines.C {
			if updated := parseProgressLine(line, &progress); updated {
				select {
				case progressChan <- progress:
				default:
				}
				if progressFn != nil {
					progressFn(progress)
				}
			}
		}
	}()

	// Periodic heartbeat with the last known progress, even without output
	go func() {
		ticker := time.NewTicker(r.heartbeat)
		defer ticker.Stop()
		lastProgress := Progress{}
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case p := <-progressChan:
				lastProgress = p
			case <-ticker.C:
				if progressFn != nil {
					progressFn(lastProgress)
				}
			}
		}
	}()

	err := cmd.Wait()
	lines.Close()
	<-done

	result := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.String(),
		Duration: time.Since(started),
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return result, fmt.Errorf("yt-dlp timed out after %s: %w", r.timeout, ctx.Err())
		}
		if ctx.Err() == context.Canceled {
			return result, fmt.Errorf("yt-dlp canceled: %w", ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("yt-dlp failed: %w", err)
	}

	return result, nil
}

// lineWriter splits written bytes into lines delivered on C. Writes never
// block the process: lines are dropped when the consumer falls behind.
type lineWriter struct {
	C    chan string
	mu   sync.Mutex
	buf  []byte
	once sync.Once
}

func newLineWriter() *lineWriter {
	return &lineWriter{C: make(chan string, 64)}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexAny(w.buf, "\r\n")
		if i < 0 {
			break
		}
		line := string(w.buf[:i])
		w.buf = w.buf[i+1:]
		// metadata documents are a single huge line, never progress
		if line == "" || len(line) > 512 {
			continue
		}
		select {
		case w.C <- line:
		default:
		}
	}
	if len(w.buf) > 4096 {
		w.buf = w.buf[:0]
	}
	return len(p), nil
}

// Close flushes a trailing partial line and closes C
func (w *lineWriter) Close() {
	w.once.Do(func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if line := strings.TrimSpace(string(w.buf)); line != "" && len(line) <= 512 {
			select {
			case w.C <- line:
			default:
			}
		}
		w.buf = nil
		close(w.C)
	})
}

var (
	downloadRegex    = regexp.MustCompile(`^\[download\]\s+([\d.]+)%\s+of\s+~?\s*([\d.]+\s*[KMGT]?i?B)(?:\s+at\s+(\S+(?:\s\S+)?))?(?:\s+ETA\s+(\S+))?`)
	destinationRegex = regexp.MustCompile(`^\[download\]\s+Destination:`)
	mergerRegex      = regexp.MustCompile(`^\[Merger\]`)
)

func parseProgressLine(line string, progress *Progress) bool {
	line = strings.TrimSpace(line)

	if destinationRegex.MatchString(line) {
		progress.Stream++
		progress.Phase = PhaseDownloading
		progress.Percent = 0
		return true
	}

	if mergerRegex.MatchString(line) {
		progress.Phase = PhaseMerging
		progress.Percent = 100
		return true
	}

	matches := downloadRegex.FindStringSubmatch(line)
	if len(matches) < 3 {
		return false
	}

	percent, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return false
	}
	progress.Phase = PhaseDownloading
	progress.Percent = percent
	if total, err := humanize.ParseBytes(strings.ReplaceAll(matches[2], " ", "")); err == nil {
		progress.TotalBytes = total
	}
	if len(matches) > 3 {
		progress.Speed = matches[3]
	}
	if len(matches) > 4 {
		progress.ETA = matches[4]
	}
	return true
}

// CalculateProgress maps a progress update onto 0..100 across the given
// number of streams
func CalculateProgress(p Progress, streams int) int {
	if p.Phase == PhaseMerging {
		return 100
	}
	if streams < 1 {
		streams = 1
	}
	stream := p.Stream
	if stream < 1 {
		stream = 1
	}
	if stream > streams {
		stream = streams
	}
	done := float64(stream-1) + p.Percent/100
	progress := int(done / float64(streams) * 100)
	if progress > 100 {
		progress = 100
	}
	if progress < 0 {
		progress = 0
	}
	return progress
}

// ValidateOutput validates the downloaded file
func ValidateOutput(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("output file not found: %w", err)
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("output file is empty")
	}
	return info.Size(), nil
}
