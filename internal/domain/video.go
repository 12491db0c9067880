package domain

import (
	"fmt"
	"time"
)

// NoneCodec is the codec value the extractor reports for a missing track.
const NoneCodec = "none"

// RawVariant is one encoding stream reported by the extractor for a video.
// Optional numeric fields are zero when the extractor omits them.
type RawVariant struct {
	FormatID         string  `json:"formatId"`
	Extension        string  `json:"extension"`
	VideoCodec       string  `json:"videoCodec"`
	AudioCodec       string  `json:"audioCodec"`
	Height           int     `json:"height"`
	Width            int     `json:"width"`
	FrameRate        float64 `json:"frameRate"`
	TotalBitrateKbps float64 `json:"totalBitrateKbps"`
	VideoBitrateKbps float64 `json:"videoBitrateKbps"`
	AudioBitrateKbps float64 `json:"audioBitrateKbps"`
	FileSizeBytes    int64   `json:"fileSizeBytes"`
}

// HasVideo reports whether the variant carries a video track.
// A missing codec counts as present.
func (v RawVariant) HasVideo() bool {
	return v.VideoCodec != NoneCodec
}

// HasAudio reports whether the variant carries an audio track.
// A missing codec counts as present.
func (v RawVariant) HasAudio() bool {
	return v.AudioCodec != NoneCodec
}

// IsAudioOnly reports whether the variant is an audio candidate for pairing.
func (v RawVariant) IsAudioOnly() bool {
	return v.HasAudio() && !v.HasVideo()
}

// IsPortrait reports whether the frame is taller than it is wide.
func (v RawVariant) IsPortrait() bool {
	return v.Height > v.Width
}

// VideoMetadata is the decoded document describing one video.
type VideoMetadata struct {
	Title                string       `json:"title"`
	URL                  string       `json:"url"`
	Thumbnail            string       `json:"thumbnail,omitempty"`
	DurationSeconds      float64      `json:"duration"`
	Channel              string       `json:"channel"`
	ChannelFollowerCount *int64       `json:"channelFollowerCount,omitempty"`
	LikeCount            *int64       `json:"likeCount,omitempty"`
	ViewCount            *int64       `json:"viewCount,omitempty"`
	Variants             []RawVariant `json:"variants"`
}

// Duration returns the duration as a time.Duration. Negative values are
// treated as zero.
func (m *VideoMetadata) Duration() time.Duration {
	if m.DurationSeconds <= 0 {
		return 0
	}
	return time.Duration(m.DurationSeconds * float64(time.Second))
}

// DownloadOption is one user-selectable offering.
type DownloadOption struct {
	Format          string   `json:"format"`
	Resolution      string   `json:"resolution"`
	Extension       string   `json:"extension"`
	FrameRate       *float64 `json:"frameRate,omitempty"`
	EstimatedSizeMB *float64 `json:"estimatedSizeMB,omitempty"`
}

// PairedFormat builds the composite identifier for a muxed video+audio pair.
func PairedFormat(videoFormatID, audioFormatID string) string {
	return videoFormatID + "+" + audioFormatID
}

// ResolutionLabel formats a tier height as "<height>p".
func ResolutionLabel(height int) string {
	return fmt.Sprintf("%dp", height)
}

// VideoInfo is the response describing a video and its download options.
type VideoInfo struct {
	Title                string           `json:"title"`
	URL                  string           `json:"url"`
	Platform             Platform         `json:"platform"`
	Thumbnail            string           `json:"thumbnail,omitempty"`
	DurationSeconds      float64          `json:"duration"`
	DurationString       string           `json:"durationString"`
	Channel              string           `json:"channelName"`
	ChannelFollowerCount *int64           `json:"channelFollowerCount,omitempty"`
	LikeCount            *int64           `json:"likeCount,omitempty"`
	ViewCount            *int64           `json:"viewCount,omitempty"`
	DownloadOptions      []DownloadOption `json:"downloadOptions"`
}

// FormatDuration renders a duration as hh:mm:ss.
func FormatDuration(d time.Duration) string {
	total := int64(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// FindOption returns the option with the given composite format identifier.
func FindOption(options []DownloadOption, format string) (DownloadOption, bool) {
	for _, o := range options {
		if o.Format == format {
			return o, true
		}
	}
	return DownloadOption{}, false
}
