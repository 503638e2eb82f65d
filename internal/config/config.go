// Package config provides the configuration schema, loader, and provider registry
// for the hallvoice gateway and live client.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l onto an [slog.Level]. Unknown or empty levels map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ClassifierHTTP selects the remote chat classification service instead of
// an LLM backend.
const ClassifierHTTP = "http"

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Voices    VoicesConfig    `yaml:"voices"`
	Models    ModelsConfig    `yaml:"models"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Token     TokenConfig     `yaml:"token"`
	Assistant AssistantConfig `yaml:"assistant"`
}

// ServerConfig holds network and logging settings for the gateway server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MaxBodyBytes caps request bodies. Zero means 1 MiB.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation serves each concern.
type ProvidersConfig struct {
	// TTS is the speech synthesis provider. Its credential may be empty: the
	// gateway then starts but answers every request with a configuration error.
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "elevenlabs", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the fields above.
	Options map[string]any `yaml:"options"`
}

// VoicesConfig resolves the live and immersive voice profiles. Both fall
// back to Default, which itself falls back to a built-in voice.
type VoicesConfig struct {
	Default   string `yaml:"default"`
	Live      string `yaml:"live"`
	Immersive string `yaml:"immersive"`
}

// ModelsConfig selects the synthesis models per mode plus the global,
// ordered fallback list.
type ModelsConfig struct {
	Live         string   `yaml:"live"`
	Immersive    string   `yaml:"immersive"`
	Multilingual string   `yaml:"multilingual"`
	Fallbacks    []string `yaml:"fallbacks"`
}

// SynthesisConfig tunes the synthesis gateway.
type SynthesisConfig struct {
	// OutputFormat is the default provider audio format (e.g., "mp3_44100_128").
	OutputFormat string `yaml:"output_format"`

	// AttemptTimeout caps each voice/model attempt. Zero means 30s.
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

// TokenConfig tunes the conversation token gateway.
type TokenConfig struct {
	// Endpoints are provider paths tried in order. Empty uses the defaults.
	Endpoints []string `yaml:"endpoints"`

	// AttemptTimeout caps each endpoint attempt. Zero means 15s.
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

// AssistantConfig configures the live conversation client.
type AssistantConfig struct {
	// GatewayURL is the base URL of a running hallvoice gateway.
	GatewayURL string `yaml:"gateway_url"`

	// ChatURL is the chat classification endpoint. Used when
	// Classifier.Name is "http" or empty.
	ChatURL string `yaml:"chat_url"`

	// ActionURL is the action execution endpoint.
	ActionURL string `yaml:"action_url"`

	// PortalBaseURL prefixes follow-up calls requested by READY results.
	PortalBaseURL string `yaml:"portal_base_url"`

	// AllowedCalls lists the follow-up paths a READY result may request.
	// Empty means only "/booking/create".
	AllowedCalls []string `yaml:"allowed_calls"`

	// Intro is spoken when live mode is entered.
	Intro string `yaml:"intro"`

	// Language is sent with every synthesis request ("auto", "en", "hi").
	Language string `yaml:"language"`

	// OutputFormat requested from the gateway. The live client plays raw PCM,
	// so this defaults to "pcm_24000".
	OutputFormat string `yaml:"output_format"`

	// RequestTimeout caps classifier, executor and follow-up calls. Zero means 20s.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Classifier selects the chat classifier backend: "http" for the remote
	// service, or the name of a registered LLM provider.
	Classifier ProviderEntry `yaml:"classifier"`
}
