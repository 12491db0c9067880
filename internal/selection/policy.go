// Package selection decides which of the encoding variants reported for a
// video are offered to users, and estimates the size of each offering.
package selection

import (
	"fmt"
	"slices"

	"github.com/tvoe/vidgrab/internal/domain"
)

// AudioPairing controls what happens to a video tier when a separate audio
// variant is or is not available.
type AudioPairing string

const (
	// AudioRequired pairs every tier with the best audio variant and drops
	// all tiers when there is none.
	AudioRequired AudioPairing = "required"
	// AudioOptional pairs when an audio variant exists and otherwise emits
	// the video variant on its own.
	AudioOptional AudioPairing = "optional"
)

// SizeMode selects which fields are authoritative for the size estimate.
type SizeMode string

const (
	// SizeFromBitrate derives the size from bitrate and duration. A size the
	// extractor reports directly takes precedence when every stream has one.
	SizeFromBitrate SizeMode = "bitrate"
	// SizeFromReported only uses sizes reported by the extractor.
	SizeFromReported SizeMode = "reported"
)

// ResolutionPolicy is the per-platform configuration of the engine.
type ResolutionPolicy struct {
	Platform domain.Platform `yaml:"-" json:"platform"`
	// Landscape is the allow-list used when the orientation rule is off or
	// the variant is not portrait.
	Landscape []int `yaml:"landscape" json:"landscape"`
	// Portrait is the allow-list for variants taller than wide. Only
	// consulted when Orientation is set.
	Portrait    []int        `yaml:"portrait" json:"portrait,omitempty"`
	Orientation bool         `yaml:"orientation" json:"orientation"`
	Audio       AudioPairing `yaml:"audio" json:"audio"`
	Size        SizeMode     `yaml:"size" json:"size"`
	// DefaultFrameRate is reported for variants without a frame rate. Zero
	// leaves the frame rate absent.
	DefaultFrameRate float64 `yaml:"defaultFrameRate" json:"defaultFrameRate"`
}

// AllowList returns the allow-list that applies to v.
func (p ResolutionPolicy) AllowList(v domain.RawVariant) []int {
	if p.Orientation && v.IsPortrait() {
		return p.Portrait
	}
	return p.Landscape
}

// IsEligible reports whether v is a video candidate whose height is allowed.
// Variants with an unreported height are never eligible.
func (p ResolutionPolicy) IsEligible(v domain.RawVariant) bool {
	if !v.HasVideo() || v.Height <= 0 {
		return false
	}
	return slices.Contains(p.AllowList(v), v.Height)
}

// Validate checks that the policy can produce options.
func (p ResolutionPolicy) Validate() error {
	if len(p.Landscape) == 0 {
		return fmt.Errorf("%s: landscape allow-list is empty", p.Platform)
	}
	if p.Orientation && len(p.Portrait) == 0 {
		return fmt.Errorf("%s: orientation rule requires a portrait allow-list", p.Platform)
	}
	for _, h := range append(slices.Clone(p.Landscape), p.Portrait...) {
		if h <= 0 {
			return fmt.Errorf("%s: invalid height %d in allow-list", p.Platform, h)
		}
	}
	switch p.Audio {
	case AudioRequired, AudioOptional:
	default:
		return fmt.Errorf("%s: unknown audio pairing %q", p.Platform, p.Audio)
	}
	switch p.Size {
	case SizeFromBitrate, SizeFromReported:
	default:
		return fmt.Errorf("%s: unknown size mode %q", p.Platform, p.Size)
	}
	if p.DefaultFrameRate < 0 {
		return fmt.Errorf("%s: negative default frame rate", p.Platform)
	}
	return nil
}

func (p ResolutionPolicy) clone() ResolutionPolicy {
	p.Landscape = slices.Clone(p.Landscape)
	p.Portrait = slices.Clone(p.Portrait)
	return p
}

var builtinPolicies = map[domain.Platform]ResolutionPolicy{
	domain.PlatformYouTube: {
		Platform:    domain.PlatformYouTube,
		Landscape:   []int{144, 360, 480, 720, 1080, 1440, 2160},
		Portrait:    []int{568, 1024, 1280, 1920},
		Orientation: true,
		Audio:       AudioRequired,
		Size:        SizeFromBitrate,
	},
	domain.PlatformInstagram: {
		Platform:         domain.PlatformInstagram,
		Landscape:        []int{568, 1024, 1280, 1920},
		Audio:            AudioRequired,
		Size:             SizeFromBitrate,
		DefaultFrameRate: 30,
	},
	domain.PlatformTikTok: {
		Platform:         domain.PlatformTikTok,
		Landscape:        []int{1024, 1280, 1920},
		Audio:            AudioOptional,
		Size:             SizeFromReported,
		DefaultFrameRate: 30,
	},
}

// PolicyFor returns the built-in policy for a platform.
func PolicyFor(p domain.Platform) (ResolutionPolicy, error) {
	policy, ok := builtinPolicies[p]
	if !ok {
		return ResolutionPolicy{}, fmt.Errorf("%q: %w", p, domain.ErrUnsupportedPlatform)
	}
	return policy.clone(), nil
}
