package domain

import "strings"

// Platform identifies the video site a URL belongs to
type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformUnknown   Platform = "unknown"
)

// AllPlatforms returns the supported platforms
func AllPlatforms() []Platform {
	return []Platform{PlatformYouTube, PlatformInstagram, PlatformTikTok}
}

// DetectPlatform maps a video URL to its platform by host substring
func DetectPlatform(videoURL string) Platform {
	u := strings.ToLower(videoURL)
	switch {
	case strings.Contains(u, "youtube.com"), strings.Contains(u, "youtu.be"):
		return PlatformYouTube
	case strings.Contains(u, "instagram.com"):
		return PlatformInstagram
	case strings.Contains(u, "tiktok.com"):
		return PlatformTikTok
	default:
		return PlatformUnknown
	}
}

// ParsePlatform parses a platform name
func ParsePlatform(name string) (Platform, bool) {
	p := Platform(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range AllPlatforms() {
		if p == known {
			return p, true
		}
	}
	return PlatformUnknown, false
}
