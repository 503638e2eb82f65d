package gateway

import (
	"math"

	"github.com/MrWong99/hallvoice/pkg/provider/tts"
)

// discreteStabilityModel accepts only stability values 0, 0.5 and 1.
const discreteStabilityModel = "eleven_v3"

var (
	immersiveSettings = tts.VoiceSettings{Stability: 0.6, SimilarityBoost: 0.85, Style: 0.35, UseSpeakerBoost: true}
	liveSettings      = tts.VoiceSettings{Stability: 0.45, SimilarityBoost: 0.75, Style: 0.15, UseSpeakerBoost: true}
)

// SettingsOverride carries caller-supplied voice settings. Nil fields keep
// the mode default.
type SettingsOverride struct {
	Stability       *float64 `json:"stability,omitempty"`
	SimilarityBoost *float64 `json:"similarity_boost,omitempty"`
	Style           *float64 `json:"style,omitempty"`
	UseSpeakerBoost *bool    `json:"use_speaker_boost,omitempty"`
}

// DefaultSettings returns the mode default voice settings.
func DefaultSettings(immersive bool) tts.VoiceSettings {
	if immersive {
		return immersiveSettings
	}
	return liveSettings
}

// ResolveSettings merges o over the mode defaults and clamps every float
// into [0, 1]. Out-of-range values are clamped, never rejected.
func ResolveSettings(o *SettingsOverride, immersive bool) tts.VoiceSettings {
	s := DefaultSettings(immersive)
	if o != nil {
		if o.Stability != nil {
			s.Stability = *o.Stability
		}
		if o.SimilarityBoost != nil {
			s.SimilarityBoost = *o.SimilarityBoost
		}
		if o.Style != nil {
			s.Style = *o.Style
		}
		if o.UseSpeakerBoost != nil {
			s.UseSpeakerBoost = *o.UseSpeakerBoost
		}
	}
	s.Stability = clamp01(s.Stability)
	s.SimilarityBoost = clamp01(s.SimilarityBoost)
	s.Style = clamp01(s.Style)
	return s
}

// ForModel adapts s to what model accepts.
func ForModel(s tts.VoiceSettings, model string) tts.VoiceSettings {
	if model == discreteStabilityModel {
		s.Stability = SnapStability(s.Stability)
	}
	return s
}

// SnapStability maps a stability in [0, 1] onto {0, 0.5, 1}.
func SnapStability(v float64) float64 {
	switch {
	case v < 0.25:
		return 0
	case v < 0.75:
		return 0.5
	default:
		return 1
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}
