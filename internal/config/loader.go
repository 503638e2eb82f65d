package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"tts":        {"elevenlabs"},
	"classifier": {ClassifierHTTP, "openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Environment variables that override file values. They are applied after
// YAML decoding and before validation.
const (
	EnvAPIKey            = "ELEVENLABS_API_KEY"
	EnvBaseURL           = "ELEVENLABS_BASE_URL"
	EnvLiveVoice         = "HALLVOICE_LIVE_VOICE_ID"
	EnvImmersiveVoice    = "HALLVOICE_IMMERSIVE_VOICE_ID"
	EnvDefaultVoice      = "HALLVOICE_DEFAULT_VOICE_ID"
	EnvLiveModel         = "HALLVOICE_LIVE_MODEL_ID"
	EnvImmersiveModel    = "HALLVOICE_IMMERSIVE_MODEL_ID"
	EnvMultilingualModel = "HALLVOICE_MULTILINGUAL_MODEL_ID"
	EnvListenAddr        = "HALLVOICE_LISTEN_ADDR"
	EnvLogLevel          = "HALLVOICE_LOG_LEVEL"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none
// are given) into the process environment. Variables already set win.
// Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %q: %w", p, err)
		}
	}
	return nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server:    ServerConfig{ListenAddr: ":8080", LogLevel: LogInfo},
		Providers: ProvidersConfig{TTS: ProviderEntry{Name: "elevenlabs"}},
	}
}

// Load reads the YAML configuration file at path, applies environment
// overrides and returns a validated [Config]. An empty path starts from
// [Default].
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		ApplyEnv(cfg, os.LookupEnv)
		if err := Validate(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := loadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// loadBytes decodes data, applies the process environment and validates.
func loadBytes(data []byte) (*Config, error) {
	cfg, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg, os.LookupEnv)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Environment overrides are not applied. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg fields from environment variables found by lookup.
// Empty values are ignored.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&cfg.Providers.TTS.APIKey, EnvAPIKey)
	set(&cfg.Providers.TTS.BaseURL, EnvBaseURL)
	set(&cfg.Voices.Live, EnvLiveVoice)
	set(&cfg.Voices.Immersive, EnvImmersiveVoice)
	set(&cfg.Voices.Default, EnvDefaultVoice)
	set(&cfg.Models.Live, EnvLiveModel)
	set(&cfg.Models.Immersive, EnvImmersiveModel)
	set(&cfg.Models.Multilingual, EnvMultilingualModel)
	set(&cfg.Server.ListenAddr, EnvListenAddr)

	var level string
	set(&level, EnvLogLevel)
	if level != "" {
		cfg.Server.LogLevel = LogLevel(strings.ToLower(level))
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found. A missing
// provider credential is not an error: it surfaces per request instead.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxBodyBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes must not be negative"))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, fmt.Errorf("server.tls requires both cert_file and key_file"))
	}

	validateProviderName("tts", cfg.Providers.TTS.Name)
	if cfg.Providers.TTS.APIKey == "" {
		slog.Warn("speech provider credential is not set; synthesis and token requests will fail until it is configured")
	}
	if cfg.Providers.TTS.BaseURL != "" {
		if err := validateURL(cfg.Providers.TTS.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("providers.tts.base_url: %w", err))
		}
	}

	if f := cfg.Synthesis.OutputFormat; f != "" && !isSupportedFormat(f) {
		errs = append(errs, fmt.Errorf("synthesis.output_format %q is invalid; must start with mp3_ or pcm_", f))
	}
	if cfg.Synthesis.AttemptTimeout < 0 {
		errs = append(errs, fmt.Errorf("synthesis.attempt_timeout must not be negative"))
	}
	if cfg.Token.AttemptTimeout < 0 {
		errs = append(errs, fmt.Errorf("token.attempt_timeout must not be negative"))
	}
	for i, ep := range cfg.Token.Endpoints {
		if !strings.HasPrefix(ep, "/") {
			errs = append(errs, fmt.Errorf("token.endpoints[%d] %q must be an absolute path", i, ep))
		}
	}

	errs = append(errs, validateAssistant(&cfg.Assistant)...)

	return errors.Join(errs...)
}

func validateAssistant(a *AssistantConfig) []error {
	var errs []error
	for _, f := range []struct{ name, value string }{
		{"assistant.gateway_url", a.GatewayURL},
		{"assistant.chat_url", a.ChatURL},
		{"assistant.action_url", a.ActionURL},
		{"assistant.portal_base_url", a.PortalBaseURL},
	} {
		if f.value == "" {
			continue
		}
		if err := validateURL(f.value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.name, err))
		}
	}
	for i, c := range a.AllowedCalls {
		if !strings.HasPrefix(c, "/") {
			errs = append(errs, fmt.Errorf("assistant.allowed_calls[%d] %q must be an absolute path", i, c))
		}
	}
	switch strings.ToLower(a.Language) {
	case "", "auto", "en", "hi":
	default:
		errs = append(errs, fmt.Errorf("assistant.language %q is invalid; valid values: auto, en, hi", a.Language))
	}
	if f := a.OutputFormat; f != "" && !isSupportedFormat(f) {
		errs = append(errs, fmt.Errorf("assistant.output_format %q is invalid; must start with mp3_ or pcm_", f))
	}
	if a.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("assistant.request_timeout must not be negative"))
	}

	name := a.Classifier.Name
	validateProviderName("classifier", name)
	if name != "" && name != ClassifierHTTP && a.Classifier.Model == "" {
		errs = append(errs, fmt.Errorf("assistant.classifier.model is required for LLM classifier %q", name))
	}
	return errs
}

func isSupportedFormat(f string) bool {
	return strings.HasPrefix(f, "mp3_") || strings.HasPrefix(f, "pcm_")
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
