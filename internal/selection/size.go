package selection

import (
	"math"

	"github.com/tvoe/vidgrab/internal/domain"
)

const bytesPerMB = 1024 * 1024

// EstimateMB converts a combined bitrate and a duration into megabytes:
// (video+audio) * 1024 / 8 * seconds, rounded half away from zero to two
// decimals. A non-positive duration yields 0.
func EstimateMB(videoBitrateKbps, audioBitrateKbps, durationSeconds float64) float64 {
	if durationSeconds <= 0 {
		return 0
	}
	kbps := math.Max(videoBitrateKbps, 0) + math.Max(audioBitrateKbps, 0)
	bytes := kbps * 1024 / 8 * durationSeconds
	return roundTo(bytes/bytesPerMB, 2)
}

// ReportedMB converts a size reported in bytes to megabytes, truncated to
// two decimals.
func ReportedMB(sizeBytes int64) float64 {
	if sizeBytes <= 0 {
		return 0
	}
	return math.Trunc(float64(sizeBytes)/bytesPerMB*100) / 100
}

// roundTo rounds half away from zero, which is what math.Round does.
func roundTo(x float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(x*p) / p
}

// estimateOption returns the size of the option built from video and the
// optional audio variant, or 0 when it cannot be determined.
func estimateOption(policy ResolutionPolicy, video domain.RawVariant, audio *domain.RawVariant, durationSeconds float64) float64 {
	reported := video.FileSizeBytes
	if reported > 0 && audio != nil {
		if audio.FileSizeBytes > 0 {
			reported += audio.FileSizeBytes
		} else {
			reported = 0
		}
	}

	if reported > 0 {
		return ReportedMB(reported)
	}
	if policy.Size == SizeFromReported {
		return 0
	}

	videoKbps := video.VideoBitrateKbps
	if videoKbps <= 0 || (audio == nil && video.HasAudio()) {
		// a stream that carries its own audio is measured by its total
		if video.TotalBitrateKbps > 0 {
			videoKbps = video.TotalBitrateKbps
		}
	}
	var audioKbps float64
	if audio != nil {
		audioKbps = audio.AudioBitrateKbps
	}
	return EstimateMB(videoKbps, audioKbps, durationSeconds)
}
