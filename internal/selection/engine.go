package selection

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/tvoe/vidgrab/internal/domain"
)

const defaultExtension = "mp4"

// Advisory is a non-fatal finding about one option.
type Advisory struct {
	Format string
	Err    error
}

// Selection is the outcome of a successful run of the engine.
type Selection struct {
	Options    []domain.DownloadOption
	Advisories []Advisory
	// AudioFormat is the audio variant paired with the options, empty when
	// none was used.
	AudioFormat string
}

// Engine turns a video's raw variants into download options. It holds no
// per-call state and is safe for concurrent use.
type Engine struct {
	logger *zap.Logger
}

// NewEngine creates an engine. A nil logger disables logging.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// Select computes the ordered download options for meta under policy. It
// either returns a complete list or an error, never a partial result.
func (e *Engine) Select(meta *domain.VideoMetadata, policy ResolutionPolicy) (*Selection, error) {
	if meta == nil {
		return nil, fmt.Errorf("nil document: %w", domain.ErrMalformedMetadata)
	}
	logger := e.logger.With(zap.String("platform", string(policy.Platform)))

	audio, hasAudio := BestAudio(meta.Variants)
	eligible := FilterEligible(meta.Variants, policy)
	tiers := ReduceTiers(eligible)

	logger.Debug("variants filtered",
		zap.Int("variants", len(meta.Variants)),
		zap.Int("videoCandidates", countVideo(meta.Variants)),
		zap.Int("eligible", len(eligible)),
		zap.Int("tiers", len(tiers)),
		zap.Bool("audio", hasAudio),
		zap.String("audioFormat", audio.FormatID),
	)

	if !hasAudio && policy.Audio == AudioRequired {
		kept := make([]domain.RawVariant, 0, len(tiers))
		for _, v := range tiers {
			if v.HasAudio() {
				kept = append(kept, v)
			}
		}
		if dropped := len(tiers) - len(kept); dropped > 0 {
			logger.Debug("dropping tiers without audio", zap.Int("tiers", dropped))
		}
		tiers = kept
	}

	sel := &Selection{Options: make([]domain.DownloadOption, 0, len(tiers))}

	for _, v := range tiers {
		opt := domain.DownloadOption{
			Format:     v.FormatID,
			Resolution: domain.ResolutionLabel(v.Height),
			Extension:  v.Extension,
			FrameRate:  frameRate(v, policy),
		}
		if opt.Extension == "" {
			opt.Extension = defaultExtension
		}

		// only video-only streams are muxed with the separate audio track
		var pair *domain.RawVariant
		if hasAudio && !v.HasAudio() {
			pair = &audio
			opt.Format = domain.PairedFormat(v.FormatID, audio.FormatID)
			sel.AudioFormat = audio.FormatID
		}

		if mb := estimateOption(policy, v, pair, meta.DurationSeconds); mb > 0 {
			opt.EstimatedSizeMB = &mb
		} else {
			sel.Advisories = append(sel.Advisories, Advisory{Format: opt.Format, Err: domain.ErrAmbiguousEstimate})
			logger.Debug("size estimate unavailable",
				zap.String("format", opt.Format),
				zap.Float64("duration", meta.DurationSeconds),
				zap.Float64("vbr", v.VideoBitrateKbps),
			)
		}

		sel.Options = append(sel.Options, opt)
	}

	if len(sel.Options) == 0 {
		logger.Info("no downloadable formats", zap.Int("variants", len(meta.Variants)))
		return nil, fmt.Errorf("%s: %w", policy.Platform, domain.ErrNoDownloadableFormats)
	}

	logger.Debug("options selected", zap.Int("options", len(sel.Options)), zap.Int("advisories", len(sel.Advisories)))
	return sel, nil
}

// Select runs a logging-free engine.
func Select(meta *domain.VideoMetadata, policy ResolutionPolicy) (*Selection, error) {
	return NewEngine(nil).Select(meta, policy)
}

func countVideo(variants []domain.RawVariant) int {
	n := 0
	for _, v := range variants {
		if v.HasVideo() {
			n++
		}
	}
	return n
}

func frameRate(v domain.RawVariant, policy ResolutionPolicy) *float64 {
	fps := v.FrameRate
	if fps <= 0 {
		fps = policy.DefaultFrameRate
	}
	if fps <= 0 {
		return nil
	}
	return &fps
}
