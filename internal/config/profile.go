package config

import (
	"time"

	"github.com/MrWong99/hallvoice/internal/gateway"
)

// Default assistant settings applied by [AssistantConfig.Resolved].
const (
	DefaultAssistantFormat  = "pcm_24000"
	DefaultAssistantTimeout = 20 * time.Second
	DefaultIntro            = "Welcome to the hall booking portal. How can I help you today?"
)

// DefaultAllowedCalls is the follow-up allow-list used when none is configured.
var DefaultAllowedCalls = []string{"/booking/create"}

// Profile resolves the voice and model sections into a normalised
// [gateway.Profile]. voices.default fills empty live and immersive voices.
func (c *Config) Profile() gateway.Profile {
	live := c.Voices.Live
	if live == "" {
		live = c.Voices.Default
	}
	immersive := c.Voices.Immersive
	if immersive == "" {
		immersive = c.Voices.Default
	}
	return gateway.Profile{
		LiveVoice:         live,
		ImmersiveVoice:    immersive,
		LiveModel:         c.Models.Live,
		ImmersiveModel:    c.Models.Immersive,
		MultilingualModel: c.Models.Multilingual,
		FallbackModels:    c.Models.Fallbacks,
		OutputFormat:      c.Synthesis.OutputFormat,
	}.Normalized()
}

// Resolved returns a copy of a with defaults filled in.
func (a AssistantConfig) Resolved() AssistantConfig {
	if a.OutputFormat == "" {
		a.OutputFormat = DefaultAssistantFormat
	}
	if a.RequestTimeout == 0 {
		a.RequestTimeout = DefaultAssistantTimeout
	}
	if len(a.AllowedCalls) == 0 {
		a.AllowedCalls = DefaultAllowedCalls
	}
	if a.Intro == "" {
		a.Intro = DefaultIntro
	}
	if a.Language == "" {
		a.Language = gateway.LanguageAuto
	}
	if a.Classifier.Name == "" {
		a.Classifier.Name = ClassifierHTTP
	}
	return a
}
