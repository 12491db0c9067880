package selection

import "github.com/tvoe/vidgrab/internal/domain"

// BestAudio returns the audio-only variant with the highest audio bitrate.
// Ties keep the variant seen first. The boolean is false when the collection
// has no audio-only variant.
func BestAudio(variants []domain.RawVariant) (domain.RawVariant, bool) {
	var best domain.RawVariant
	found := false
	for _, v := range variants {
		if !v.IsAudioOnly() {
			continue
		}
		if !found || v.AudioBitrateKbps > best.AudioBitrateKbps {
			best = v
			found = true
		}
	}
	return best, found
}
