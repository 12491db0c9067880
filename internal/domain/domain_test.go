package domain

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDetectPlatform(t *testing.T) {
	tests := map[string]Platform{
		"https://www.youtube.com/watch?v=abc":      PlatformYouTube,
		"https://youtu.be/abc":                     PlatformYouTube,
		"https://M.YOUTUBE.COM/shorts/abc":         PlatformYouTube,
		"https://www.instagram.com/reel/xyz/":      PlatformInstagram,
		"https://www.tiktok.com/@user/video/12345": PlatformTikTok,
		"https://vimeo.com/1":                      PlatformUnknown,
		"":                                         PlatformUnknown,
	}
	for url, want := range tests {
		assert.Equal(t, want, DetectPlatform(url), url)
	}
}

func TestParsePlatform(t *testing.T) {
	p, ok := ParsePlatform(" TikTok ")
	assert.True(t, ok)
	assert.Equal(t, PlatformTikTok, p)

	_, ok = ParsePlatform("vimeo")
	assert.False(t, ok)
}

func TestVariantAccessors(t *testing.T) {
	audio := RawVariant{VideoCodec: NoneCodec, AudioCodec: "opus"}
	assert.True(t, audio.IsAudioOnly())
	assert.False(t, audio.HasVideo())

	muxed := RawVariant{VideoCodec: "avc1", AudioCodec: "mp4a"}
	assert.False(t, muxed.IsAudioOnly())

	// unreported codecs count as present
	unknown := RawVariant{}
	assert.True(t, unknown.HasVideo())
	assert.True(t, unknown.HasAudio())
	assert.False(t, unknown.IsAudioOnly())

	assert.True(t, RawVariant{Width: 1080, Height: 1920}.IsPortrait())
	assert.False(t, RawVariant{Width: 1080, Height: 1080}.IsPortrait())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:00:00", FormatDuration(0))
	assert.Equal(t, "00:01:05", FormatDuration(65*time.Second))
	assert.Equal(t, "02:03:04", FormatDuration(2*time.Hour+3*time.Minute+4*time.Second+900*time.Millisecond))

	meta := &VideoMetadata{DurationSeconds: -5}
	assert.Equal(t, time.Duration(0), meta.Duration())
}

func TestSafeFileName(t *testing.T) {
	assert.Equal(t, "Clip_ part 1", SafeFileName("Clip: part 1"))
	assert.Equal(t, "a_b_c", SafeFileName(" a/b\\c "))
	assert.Equal(t, "video", SafeFileName("   "))
	assert.Equal(t, "video", SafeFileName(strings.Repeat("x", 151)))
	assert.Equal(t, strings.Repeat("é", 150), SafeFileName(strings.Repeat("é", 150)))
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "video/mp4", ContentTypeFor("Clip.MP4"))
	assert.Equal(t, "video/webm", ContentTypeFor("webm"))
	assert.Equal(t, "application/json", ContentTypeFor(".json"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("file.bin"))
}

func TestFindOption(t *testing.T) {
	options := []DownloadOption{{Format: PairedFormat("137", "251"), Resolution: ResolutionLabel(1080)}}

	opt, ok := FindOption(options, "137+251")
	assert.True(t, ok)
	assert.Equal(t, "1080p", opt.Resolution)

	_, ok = FindOption(options, "137")
	assert.False(t, ok)
}

func TestCodeFor(t *testing.T) {
	tests := []struct {
		err    error
		code   string
		client bool
	}{
		{fmt.Errorf("lookup: %w", ErrUnsupportedPlatform), ErrCodeUnsupportedPlatform, true},
		{ErrMalformedMetadata, ErrCodeMalformedMetadata, true},
		{ErrNoDownloadableFormats, ErrCodeNoFormats, true},
		{ErrFormatNotOffered, ErrCodeFormatNotOffered, true},
		{&ExtractionError{Op: "metadata", ExitCode: 1, Err: ErrExtractionFailed}, ErrCodeExtractionFailed, false},
		{fmt.Errorf("%w: empty output", ErrDownloadFailed), ErrCodeDownloadFailed, false},
		{fmt.Errorf("disk full"), ErrCodeInternalError, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, CodeFor(tt.err), tt.err.Error())
		assert.Equal(t, tt.client, IsClientError(tt.err), tt.err.Error())
	}

	assert.Equal(t, ErrorClassRetryable, ClassifyError(ErrCodeNetworkError))
	assert.Equal(t, ErrorClassFatal, ClassifyError(ErrCodeFormatNotOffered))
}

func TestCalculateOverallProgress(t *testing.T) {
	job := NewJob("https://youtu.be/abc", "18")
	assert.Equal(t, PlatformYouTube, job.Platform)
	assert.Equal(t, JobStatusQueued, job.Status)
	assert.Equal(t, 0, job.CalculateOverallProgress())

	tests := []struct {
		stage    Stage
		progress int
		want     int
	}{
		{StageResolving, 100, 10},
		{StageDownloading, 0, 10},
		{StageDownloading, 50, 42},
		{StageUploading, 50, 85},
		{StageCleanup, 100, 100},
	}
	for _, tt := range tests {
		stage := tt.stage
		job.CurrentStage = &stage
		job.StageProgress = tt.progress
		assert.Equal(t, tt.want, job.CalculateOverallProgress(), "%s %d", tt.stage, tt.progress)
	}
}

func TestJobStatusIsTerminal(t *testing.T) {
	assert.False(t, JobStatusQueued.IsTerminal())
	assert.False(t, JobStatusRunning.IsTerminal())
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.True(t, JobStatusCanceled.IsTerminal())
}
