// Command hallvoice runs the voice gateway: speech synthesis with voice and
// model fallback, conversation token issuance, health probes and metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/hallvoice/internal/config"
	"github.com/MrWong99/hallvoice/internal/gateway"
	"github.com/MrWong99/hallvoice/internal/health"
	"github.com/MrWong99/hallvoice/internal/observe"
	"github.com/MrWong99/hallvoice/internal/server"
	"github.com/MrWong99/hallvoice/pkg/provider/tts"
	"github.com/MrWong99/hallvoice/pkg/provider/tts/elevenlabs"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (optional; environment variables alone are enough)")
	envFile := flag.String("env", ".env", "dotenv file loaded before the environment is read")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "hallvoice: %v\n", err)
		return 1
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "hallvoice: config file %q not found; omit -config to run from the environment alone\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "hallvoice: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.SlogLevel())
	slog.SetDefault(newLogger(level))

	slog.Info("hallvoice starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "hallvoice",
		ServiceVersion: version,
		Role:           "gateway",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Speech provider ───────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	slog.Debug("speech providers available", "names", reg.TTSNames())

	speech, issuer, err := reg.CreateSpeech(cfg.Providers.TTS)
	if err != nil {
		slog.Error("failed to build speech provider", "name", cfg.Providers.TTS.Name, "err", err)
		return 1
	}
	if speech == nil {
		slog.Warn("no speech credential configured; synthesis and token requests will fail until one is set",
			"env", config.EnvAPIKey)
	}

	// ── Gateways and HTTP surface ─────────────────────────────────────────────
	synth := gateway.NewSynthesizer(speech, cfg.Profile(),
		gateway.WithAttemptTimeout(cfg.Synthesis.AttemptTimeout),
		gateway.WithMetrics(metrics),
	)
	tokens := gateway.NewTokenIssuer(issuer, cfg.Token.Endpoints,
		gateway.WithTokenTimeout(cfg.Token.AttemptTimeout),
		gateway.WithTokenMetrics(metrics),
	)
	probes := health.New([]health.Checker{
		health.ReadyFunc("synthesis", synth),
		health.ReadyFunc("token", tokens),
	}, health.WithVersion(version))
	srv := server.New(synth, tokens,
		server.WithHealth(probes),
		server.WithMetrics(metrics),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
	)

	printStartupSummary(cfg, speech != nil)

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	var certFile, keyFile string
	if cfg.Server.TLS != nil {
		certFile, keyFile = cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile
	}
	g.Go(func() error {
		return srv.Run(gctx, cfg.Server.ListenAddr, certFile, keyFile)
	})

	if *configPath != "" {
		r := &reloader{reg: reg, synth: synth, tokens: tokens, level: level, speech: speech, issuer: issuer}
		w, err := config.NewWatcher(*configPath, r.apply)
		if err != nil {
			slog.Error("failed to watch config", "err", err)
			return 1
		}
		g.Go(func() error { return w.Run(gctx) })
		g.Go(func() error { return reloadOnHangup(gctx, w) })
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// reloadOnHangup rereads the config file whenever the process gets SIGHUP,
// without waiting for the next poll.
func reloadOnHangup(ctx context.Context, w *config.Watcher) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			changed, err := w.Reload()
			switch {
			case err != nil:
				slog.Warn("SIGHUP reload rejected", "err", err)
			case !changed:
				slog.Info("SIGHUP reload: config unchanged")
			}
		}
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the speech provider factories into reg.
// A factory returns [config.ErrNoCredential] when the entry has no API key so
// the gateway can start and report itself unready.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		if entry.APIKey == "" {
			return nil, config.ErrNoCredential
		}
		var opts []elevenlabs.Option
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})
}

// ── Hot reload ────────────────────────────────────────────────────────────────

// reloader applies config changes to the running gateways. The watcher calls
// apply from a single goroutine.
type reloader struct {
	reg    *config.Registry
	synth  *gateway.Synthesizer
	tokens *gateway.TokenIssuer
	level  *slog.LevelVar

	speech tts.Provider
	issuer tts.TokenIssuer
}

func (r *reloader) apply(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.IsZero() {
		return
	}

	if d.LogLevelChanged {
		r.level.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.ProviderChanged {
		speech, issuer, err := r.reg.CreateSpeech(new.Providers.TTS)
		if err != nil {
			slog.Error("config reload: keeping previous speech provider", "err", err)
		} else {
			r.speech, r.issuer = speech, issuer
			slog.Info("speech provider rebuilt", "name", new.Providers.TTS.Name, "configured", speech != nil)
		}
	}
	if d.ProfileChanged || d.ProviderChanged {
		p := new.Profile()
		r.synth.Update(r.speech, p)
		slog.Info("voice profile updated",
			"live_voice", p.LiveVoice,
			"immersive_voice", p.ImmersiveVoice,
			"live_model", p.LiveModel,
			"immersive_model", p.ImmersiveModel,
		)
	}
	if d.TokenChanged || d.ProviderChanged {
		r.tokens.Update(r.issuer, new.Token.Endpoints)
	}

	for _, key := range d.RestartRequired {
		slog.Warn("config change requires a restart to take effect", "key", key)
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// newLogger creates a structured text logger whose level can change at runtime.
func newLogger(level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// optString extracts a string value from an options map. Returns "" if the
// key is absent or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// printStartupSummary prints a human-readable summary of the active
// configuration to stdout.
func printStartupSummary(cfg *config.Config, configured bool) {
	p := cfg.Profile()
	credential := "set"
	if !configured {
		credential = "MISSING"
	}
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║          hallvoice  gateway          ║")
	fmt.Println("╚══════════════════════════════════════╝")
	fmt.Printf("  Listen addr    : %s\n", cfg.Server.ListenAddr)
	fmt.Printf("  Provider       : %s (credential %s)\n", cfg.Providers.TTS.Name, credential)
	fmt.Printf("  Live voice     : %s / %s\n", p.LiveVoice, p.LiveModel)
	fmt.Printf("  Immersive voice: %s / %s\n", p.ImmersiveVoice, p.ImmersiveModel)
	fmt.Printf("  Multilingual   : %s\n", p.MultilingualModel)
	fmt.Printf("  Fallback models: %v\n", p.FallbackModels)
	fmt.Println()
}
