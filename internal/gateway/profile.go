package gateway

import "strings"

// Built-in defaults used when configuration leaves a value empty.
const (
	DefaultVoiceID           = "21m00Tcm4TlvDq8ikWAM"
	DefaultLiveModel         = "eleven_flash_v2_5"
	DefaultImmersiveModel    = "eleven_v3"
	DefaultMultilingualModel = "eleven_multilingual_v2"
	DefaultOutputFormat      = "mp3_44100_128"
)

// DefaultFallbackModels is the global fallback list shared by all modes.
var DefaultFallbackModels = []string{
	"eleven_turbo_v2_5",
	"eleven_multilingual_v2",
	"eleven_flash_v2_5",
}

// Profile is the voice and model configuration a synthesis request is
// resolved against. A Profile is immutable once handed to a [Synthesizer].
type Profile struct {
	LiveVoice      string
	ImmersiveVoice string

	LiveModel         string
	ImmersiveModel    string
	MultilingualModel string

	// FallbackModels are tried after the mode-specific model, in order.
	FallbackModels []string

	// OutputFormat is used when a request does not choose one.
	OutputFormat string
}

// Normalized returns a copy of p with empty fields replaced by the built-in
// defaults and the fallback list deduplicated.
func (p Profile) Normalized() Profile {
	out := Profile{
		LiveVoice:         orDefault(p.LiveVoice, DefaultVoiceID),
		ImmersiveVoice:    orDefault(p.ImmersiveVoice, DefaultVoiceID),
		LiveModel:         orDefault(p.LiveModel, DefaultLiveModel),
		ImmersiveModel:    orDefault(p.ImmersiveModel, DefaultImmersiveModel),
		MultilingualModel: orDefault(p.MultilingualModel, DefaultMultilingualModel),
		OutputFormat:      orDefault(p.OutputFormat, DefaultOutputFormat),
	}
	fallbacks := p.FallbackModels
	if len(fallbacks) == 0 {
		fallbacks = DefaultFallbackModels
	}
	out.FallbackModels = dedupe(fallbacks)
	return out
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

// dedupe drops empty and repeated entries, keeping the first occurrence.
func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
