package config_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/hallvoice/internal/config"
	"github.com/MrWong99/hallvoice/internal/gateway"
	"github.com/MrWong99/hallvoice/pkg/provider/llm"
	"github.com/MrWong99/hallvoice/pkg/provider/tts"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug

providers:
  tts:
    name: elevenlabs
    api_key: xi-test
    base_url: https://api.elevenlabs.io

voices:
  default: voice-default
  immersive: voice-immersive

models:
  live: eleven_flash_v2_5
  fallbacks:
    - eleven_turbo_v2_5
    - eleven_turbo_v2_5
    - eleven_multilingual_v2

synthesis:
  output_format: mp3_22050_32
  attempt_timeout: 10s

token:
  endpoints:
    - /v1/convai/conversation/token
  attempt_timeout: 5s

assistant:
  gateway_url: http://localhost:9090
  chat_url: http://localhost:3000/api/chat
  action_url: http://localhost:3000/api/action
  portal_base_url: http://localhost:3000/api
  classifier:
    name: openai
    model: gpt-4o-mini
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if cfg.Providers.TTS.APIKey != "xi-test" {
		t.Errorf("providers.tts.api_key: got %q", cfg.Providers.TTS.APIKey)
	}
	if cfg.Synthesis.AttemptTimeout != 10*time.Second {
		t.Errorf("synthesis.attempt_timeout: got %v, want 10s", cfg.Synthesis.AttemptTimeout)
	}
	if cfg.Token.AttemptTimeout != 5*time.Second {
		t.Errorf("token.attempt_timeout: got %v, want 5s", cfg.Token.AttemptTimeout)
	}
	if cfg.Assistant.Classifier.Model != "gpt-4o-mini" {
		t.Errorf("assistant.classifier.model: got %q", cfg.Assistant.Classifier.Model)
	}
}

func TestLoadFromReader_EmptyIsValid(t *testing.T) {
	// An empty config should succeed; the credential is checked per request.
	cfg, err := config.LoadFromReader(strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("unexpected error for empty config: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("default listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":8080")
	}
	if cfg.Providers.TTS.Name != "elevenlabs" {
		t.Errorf("default tts provider: got %q", cfg.Providers.TTS.Name)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("server:\n  listen_adr: \":1\"\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

// ── Profile resolution ───────────────────────────────────────────────────────

func TestConfig_Profile(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := cfg.Profile()

	if p.LiveVoice != "voice-default" {
		t.Errorf("LiveVoice: got %q, want voices.default", p.LiveVoice)
	}
	if p.ImmersiveVoice != "voice-immersive" {
		t.Errorf("ImmersiveVoice: got %q", p.ImmersiveVoice)
	}
	if p.ImmersiveModel != gateway.DefaultImmersiveModel {
		t.Errorf("ImmersiveModel: got %q, want built-in default", p.ImmersiveModel)
	}
	if p.OutputFormat != "mp3_22050_32" {
		t.Errorf("OutputFormat: got %q", p.OutputFormat)
	}
	want := []string{"eleven_turbo_v2_5", "eleven_multilingual_v2"}
	if strings.Join(p.FallbackModels, ",") != strings.Join(want, ",") {
		t.Errorf("FallbackModels: got %v, want %v", p.FallbackModels, want)
	}
}

func TestConfig_ProfileBuiltinDefaults(t *testing.T) {
	p := config.Default().Profile()
	if p.LiveVoice != gateway.DefaultVoiceID || p.ImmersiveVoice != gateway.DefaultVoiceID {
		t.Errorf("voices: got %q/%q, want built-in default", p.LiveVoice, p.ImmersiveVoice)
	}
	if p.LiveModel != gateway.DefaultLiveModel {
		t.Errorf("LiveModel: got %q", p.LiveModel)
	}
	if len(p.FallbackModels) != len(gateway.DefaultFallbackModels) {
		t.Errorf("FallbackModels: got %v", p.FallbackModels)
	}
}

func TestAssistantConfig_Resolved(t *testing.T) {
	a := config.AssistantConfig{}.Resolved()
	if a.OutputFormat != config.DefaultAssistantFormat {
		t.Errorf("OutputFormat: got %q", a.OutputFormat)
	}
	if a.RequestTimeout != config.DefaultAssistantTimeout {
		t.Errorf("RequestTimeout: got %v", a.RequestTimeout)
	}
	if len(a.AllowedCalls) != 1 || a.AllowedCalls[0] != "/booking/create" {
		t.Errorf("AllowedCalls: got %v", a.AllowedCalls)
	}
	if a.Classifier.Name != config.ClassifierHTTP {
		t.Errorf("Classifier.Name: got %q", a.Classifier.Name)
	}
	if a.Language != gateway.LanguageAuto {
		t.Errorf("Language: got %q", a.Language)
	}

	custom := config.AssistantConfig{AllowedCalls: []string{"/x"}, Intro: "hi"}.Resolved()
	if custom.AllowedCalls[0] != "/x" || custom.Intro != "hi" {
		t.Errorf("explicit values overwritten: %+v", custom)
	}
}

// ── Validation ────────────────────────────────────────────────────────────────

func TestValidate_InvalidLogLevel(t *testing.T) {
	yaml := `
server:
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log_level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	tests := []struct {
		level config.LogLevel
		want  string
	}{
		{config.LogDebug, "DEBUG"},
		{config.LogInfo, "INFO"},
		{config.LogWarn, "WARN"},
		{config.LogError, "ERROR"},
		{"", "INFO"},
	}
	for _, tt := range tests {
		if got := tt.level.SlogLevel().String(); got != tt.want {
			t.Errorf("%q.SlogLevel() = %s, want %s", tt.level, got, tt.want)
		}
	}
}

// ── Registry ──────────────────────────────────────────────────────────────────

func TestRegistry_CreateLLM(t *testing.T) {
	reg := config.NewRegistry()
	classifier := &stubLLM{}
	boom := errors.New("ollama unreachable")
	reg.RegisterLLM("stub", func(config.ProviderEntry) (llm.Provider, error) { return classifier, nil })
	reg.RegisterLLM("ollama", func(config.ProviderEntry) (llm.Provider, error) { return nil, boom })

	tests := []struct {
		name    string
		want    llm.Provider
		wantErr error
	}{
		{name: "stub", want: classifier},
		{name: "ollama", wantErr: boom},
		{name: "gpt-9", wantErr: config.ErrProviderNotRegistered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reg.CreateLLM(config.ProviderEntry{Name: tt.name})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("provider = %v, want %v", got, tt.want)
			}
		})
	}

	if got := strings.Join(reg.LLMNames(), ","); got != "ollama,stub" {
		t.Errorf("LLMNames = %s, want ollama,stub", got)
	}
	_, err := reg.CreateLLM(config.ProviderEntry{Name: "gpt-9"})
	if err == nil || !strings.Contains(err.Error(), "ollama, stub") {
		t.Errorf("unknown-name error should list registered names, got %v", err)
	}
}

func TestRegistry_CreateTTS(t *testing.T) {
	reg := config.NewRegistry()
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "elevenlabs"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("empty registry: err = %v", err)
	}

	first, second := &stubTTS{}, &stubTTS{}
	reg.RegisterTTS("elevenlabs", func(config.ProviderEntry) (tts.Provider, error) { return first, nil })
	reg.RegisterTTS("elevenlabs", func(config.ProviderEntry) (tts.Provider, error) { return second, nil })

	got, err := reg.CreateTTS(config.ProviderEntry{Name: "elevenlabs"})
	if err != nil {
		t.Fatalf("CreateTTS: %v", err)
	}
	if got != second {
		t.Error("later registration should replace the earlier one")
	}
	if names := reg.TTSNames(); len(names) != 1 || names[0] != "elevenlabs" {
		t.Errorf("TTSNames = %v", names)
	}
}

func TestRegistry_CreateSpeech(t *testing.T) {
	reg := config.NewRegistry()
	reg.RegisterTTS("issuing", func(e config.ProviderEntry) (tts.Provider, error) {
		if e.APIKey == "" {
			return nil, config.ErrNoCredential
		}
		return &stubIssuingTTS{}, nil
	})
	reg.RegisterTTS("plain", func(e config.ProviderEntry) (tts.Provider, error) {
		return &stubTTS{}, nil
	})

	p, issuer, err := reg.CreateSpeech(config.ProviderEntry{Name: "issuing", APIKey: "k"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || issuer == nil {
		t.Fatalf("expected provider and issuer, got %v / %v", p, issuer)
	}

	p, issuer, err = reg.CreateSpeech(config.ProviderEntry{Name: "issuing"})
	if err != nil {
		t.Fatalf("missing credential should not be an error, got %v", err)
	}
	if p != nil || issuer != nil {
		t.Errorf("expected nil provider and issuer without credential")
	}

	p, issuer, err = reg.CreateSpeech(config.ProviderEntry{Name: "plain"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || issuer != nil {
		t.Errorf("plain provider: got %v / %v, want provider and no issuer", p, issuer)
	}

	if _, _, err := reg.CreateSpeech(config.ProviderEntry{Name: "missing"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got %v", err)
	}
}

// ── Stub implementations (satisfy interfaces for the compiler) ────────────────

type stubLLM struct{}

func (s *stubLLM) Complete(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{}, nil
}

type stubTTS struct{}

func (s *stubTTS) Synthesize(_ context.Context, _ tts.Request) (*tts.Audio, error) {
	return &tts.Audio{}, nil
}

type stubIssuingTTS struct{ stubTTS }

func (s *stubIssuingTTS) IssueToken(_ context.Context, _ string, _ []byte) ([]byte, error) {
	return []byte(`{}`), nil
}
