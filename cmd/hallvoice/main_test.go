package main

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/MrWong99/hallvoice/internal/config"
	"github.com/MrWong99/hallvoice/internal/gateway"
	"github.com/MrWong99/hallvoice/pkg/provider/tts"
	"github.com/MrWong99/hallvoice/pkg/provider/tts/mock"
)

func newTestReloader(t *testing.T) (*reloader, *config.Config) {
	t.Helper()
	reg := config.NewRegistry()
	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		if entry.APIKey == "" {
			return nil, config.ErrNoCredential
		}
		return &mock.Provider{}, nil
	})

	cfg := config.Default()
	r := &reloader{
		reg:    reg,
		synth:  gateway.NewSynthesizer(nil, cfg.Profile()),
		tokens: gateway.NewTokenIssuer(nil, nil),
		level:  new(slog.LevelVar),
	}
	return r, cfg
}

func TestReloader_ProviderRotation(t *testing.T) {
	r, old := newTestReloader(t)
	ctx := context.Background()
	if err := r.synth.Ready(ctx); err == nil {
		t.Fatal("synthesizer ready without a credential")
	}

	next := config.Default()
	next.Providers.TTS.APIKey = "key"
	r.apply(old, next)

	if err := r.synth.Ready(ctx); err != nil {
		t.Errorf("synthesizer not ready after credential was added: %v", err)
	}
	if err := r.tokens.Ready(ctx); err != nil {
		t.Errorf("token issuer not ready after credential was added: %v", err)
	}

	// Removing the credential again makes both gateways unready.
	r.apply(next, config.Default())
	var cerr *gateway.ConfigurationError
	if err := r.synth.Ready(ctx); !errors.As(err, &cerr) {
		t.Errorf("Ready = %v, want ConfigurationError", err)
	}
}

func TestReloader_ProfileAndLogLevel(t *testing.T) {
	r, old := newTestReloader(t)

	next := config.Default()
	next.Voices.Live = "voice-new"
	next.Server.LogLevel = config.LogDebug
	r.apply(old, next)

	if got := r.synth.Profile().LiveVoice; got != "voice-new" {
		t.Errorf("LiveVoice = %q, want voice-new", got)
	}
	if r.level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", r.level.Level())
	}
}

func TestOptString(t *testing.T) {
	opts := map[string]any{"output_format": "pcm_16000", "n": 3}
	if got := optString(opts, "output_format"); got != "pcm_16000" {
		t.Errorf("optString = %q", got)
	}
	if got := optString(opts, "n"); got != "" {
		t.Errorf("non-string option = %q", got)
	}
	if got := optString(nil, "x"); got != "" {
		t.Errorf("nil map = %q", got)
	}
}

func TestRegisterBuiltinProviders_NoCredential(t *testing.T) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	p, issuer, err := reg.CreateSpeech(config.ProviderEntry{Name: "elevenlabs"})
	if err != nil || p != nil || issuer != nil {
		t.Fatalf("CreateSpeech without key = %v, %v, %v", p, issuer, err)
	}

	p, issuer, err = reg.CreateSpeech(config.ProviderEntry{Name: "elevenlabs", APIKey: "k"})
	if err != nil || p == nil || issuer == nil {
		t.Fatalf("CreateSpeech with key = %v, %v, %v", p, issuer, err)
	}
}
