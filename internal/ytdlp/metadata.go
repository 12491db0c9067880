package ytdlp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/tvoe/vidgrab/internal/domain"
)

const (
	defaultTitle   = "video"
	defaultChannel = "unknown"
)

// document mirrors the subset of the yt-dlp -J output the service reads.
// Every numeric field is optional and may be null.
type document struct {
	Title                *string  `json:"title"`
	WebpageURL           *string  `json:"webpage_url"`
	Thumbnail            *string  `json:"thumbnail"`
	Duration             *float64 `json:"duration"`
	Channel              *string  `json:"channel"`
	Uploader             *string  `json:"uploader"`
	ChannelFollowerCount *float64 `json:"channel_follower_count"`
	LikeCount            *float64 `json:"like_count"`
	ViewCount            *float64 `json:"view_count"`
	Formats              []format `json:"formats"`
}

type format struct {
	FormatID *string  `json:"format_id"`
	Ext      *string  `json:"ext"`
	VCodec   *string  `json:"vcodec"`
	ACodec   *string  `json:"acodec"`
	Height   *float64 `json:"height"`
	Width    *float64 `json:"width"`
	FPS      *float64 `json:"fps"`
	TBR      *float64 `json:"tbr"`
	VBR      *float64 `json:"vbr"`
	ABR      *float64 `json:"abr"`
	Filesize *float64 `json:"filesize"`
}

// DecodeMetadata decodes a yt-dlp JSON document. Missing optional fields take
// their documented defaults; only input that is not a JSON object fails, with
// domain.ErrMalformedMetadata. fallbackURL is used when the document has no
// canonical URL.
func DecodeMetadata(data []byte, fallbackURL string) (*domain.VideoMetadata, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("expected a JSON object: %w", domain.ErrMalformedMetadata)
	}

	var doc document
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrMalformedMetadata)
	}

	meta := &domain.VideoMetadata{
		Title:                stringOr(doc.Title, defaultTitle),
		URL:                  stringOr(doc.WebpageURL, fallbackURL),
		Thumbnail:            stringOr(doc.Thumbnail, ""),
		DurationSeconds:      nonNegative(doc.Duration),
		Channel:              stringOr(doc.Channel, stringOr(doc.Uploader, defaultChannel)),
		ChannelFollowerCount: count(doc.ChannelFollowerCount),
		LikeCount:            count(doc.LikeCount),
		ViewCount:            count(doc.ViewCount),
		Variants:             make([]domain.RawVariant, 0, len(doc.Formats)),
	}

	for _, f := range doc.Formats {
		meta.Variants = append(meta.Variants, f.variant())
	}

	return meta, nil
}

func (f format) variant() domain.RawVariant {
	return domain.RawVariant{
		FormatID:         stringOr(f.FormatID, ""),
		Extension:        stringOr(f.Ext, ""),
		VideoCodec:       stringOr(f.VCodec, ""),
		AudioCodec:       stringOr(f.ACodec, ""),
		Height:           int(nonNegative(f.Height)),
		Width:            int(nonNegative(f.Width)),
		FrameRate:        nonNegative(f.FPS),
		TotalBitrateKbps: nonNegative(f.TBR),
		VideoBitrateKbps: nonNegative(f.VBR),
		AudioBitrateKbps: nonNegative(f.ABR),
		FileSizeBytes:    int64(nonNegative(f.Filesize)),
	}
}

func stringOr(s *string, def string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return def
	}
	return *s
}

func nonNegative(v *float64) float64 {
	if v == nil || math.IsNaN(*v) || *v < 0 {
		return 0
	}
	return *v
}

func count(v *float64) *int64 {
	if v == nil || *v < 0 {
		return nil
	}
	n := int64(*v)
	return &n
}
