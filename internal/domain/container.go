package domain

import (
	"path/filepath"
	"strings"
)

// MergeContainer is the container downloads are muxed into
const MergeContainer = "mp4"

var contentTypes = map[string]string{
	"mp4":  "video/mp4",
	"m4a":  "audio/mp4",
	"webm": "video/webm",
	"mkv":  "video/x-matroska",
	"mov":  "video/quicktime",
	"mp3":  "audio/mpeg",
	"json": "application/json",
}

// ContentTypeFor returns the MIME type for a file extension or path
func ContentTypeFor(nameOrExt string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(nameOrExt)), ".")
	if ext == "" {
		ext = strings.ToLower(strings.TrimPrefix(nameOrExt, "."))
	}
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

const maxTitleLength = 150

// SafeFileName turns a video title into a file name base. Titles that are
// empty or longer than 150 characters fall back to "video".
func SafeFileName(title string) string {
	title = strings.TrimSpace(title)
	if title == "" || len([]rune(title)) > maxTitleLength {
		return "video"
	}
	var b strings.Builder
	for _, r := range title {
		switch {
		case r < 0x20, strings.ContainsRune(`<>:"/\|?*`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
