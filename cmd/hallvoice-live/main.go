// Command hallvoice-live is a terminal client for the voice assistant. Typed
// lines stand in for recognised speech; replies are synthesised by a running
// hallvoice gateway and played on the default audio device.
//
// Commands: /live enters hands-free live mode, /mic toggles the manual mic,
// /exit leaves live mode, /quit ends the program.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/hallvoice/internal/assistant"
	"github.com/MrWong99/hallvoice/internal/config"
	"github.com/MrWong99/hallvoice/internal/observe"
	"github.com/MrWong99/hallvoice/internal/playback"
	"github.com/MrWong99/hallvoice/internal/playback/otoplayer"
	"github.com/MrWong99/hallvoice/pkg/provider/llm"
	"github.com/MrWong99/hallvoice/pkg/provider/llm/anyllm"
	"github.com/MrWong99/hallvoice/pkg/provider/llm/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file")
	envFile := flag.String("env", ".env", "dotenv file loaded before the environment is read")
	manual := flag.Bool("manual", false, "start with the manual mic instead of live mode")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "hallvoice-live: %v\n", err)
		return 1
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hallvoice-live: %v\n", err)
		return 1
	}
	a := cfg.Assistant.Resolved()
	if a.GatewayURL == "" {
		a.GatewayURL = localGateway(cfg.Server.ListenAddr)
	}

	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.SlogLevel())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// ── Audio output ──────────────────────────────────────────────────────────
	rate, err := otoplayer.SampleRateOf(a.OutputFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hallvoice-live: assistant.output_format: %v\n", err)
		return 1
	}
	backend, err := otoplayer.New(rate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hallvoice-live: %v\n", err)
		return 1
	}
	player := playback.NewManager(backend, logger)

	// ── Boundaries ────────────────────────────────────────────────────────────
	classifier, err := buildClassifier(a)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hallvoice-live: %v\n", err)
		return 1
	}
	rec := assistant.NewLineRecognizer()
	deps := assistant.Deps{
		Recognizer: rec,
		Classifier: classifier,
		Speaker: assistant.NewGatewaySpeaker(a.GatewayURL, player,
			assistant.WithOutputFormat(a.OutputFormat),
			assistant.WithLanguage(a.Language),
		),
	}
	if a.ActionURL != "" {
		deps.Executor = assistant.NewHTTPExecutor(a.ActionURL)
	} else {
		slog.Warn("assistant.action_url not set; actions will fail")
	}
	if a.PortalBaseURL != "" {
		deps.Caller = assistant.NewHTTPCaller(a.PortalBaseURL, a.AllowedCalls)
	}

	// ── Session ───────────────────────────────────────────────────────────────
	session := assistant.NewSession(
		assistant.Machine{Intro: a.Intro, AllowedCalls: a.AllowedCalls},
		deps,
		assistant.WithLogger(logger),
		assistant.WithRequestTimeout(a.RequestTimeout),
		assistant.WithTurnHandler(printTurn),
		assistant.WithPhaseHandler(func(p assistant.Phase) {
			slog.Debug("phase", "phase", p)
			if p == assistant.Listening {
				fmt.Println("  (listening)")
			}
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("hallvoice live client, gateway %s\n", a.GatewayURL)
	fmt.Println("commands: /live  /mic  /exit  /quit")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return session.Run(gctx) })

	// Stdin cannot be interrupted, so the reader is not part of the group.
	go readInput(os.Stdin, session, rec, stop)

	if !*manual {
		session.EnterLive()
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("session error", "err", err)
		return 1
	}
	return 0
}

// readInput routes commands to the session and everything else to the
// recognizer. EOF makes recognition unavailable and ends the program.
func readInput(f *os.File, s *assistant.Session, rec *assistant.LineRecognizer, quit func()) {
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "/live":
			s.EnterLive()
		case "/mic":
			s.ToggleMic()
		case "/exit":
			s.ExitMode()
		case "/quit":
			quit()
			return
		default:
			if !rec.Feed(line) {
				fmt.Println("  (not listening; type /mic or /live first)")
			}
		}
	}
	rec.Close()
	quit()
}

func printTurn(t assistant.Turn) {
	switch t.Role {
	case "":
		fmt.Println("  -- conversation cleared --")
	case assistant.RoleUser:
		fmt.Printf("you> %s\n", t.Text)
	default:
		fmt.Printf(" ai> %s\n", t.Text)
	}
}

// localGateway derives a gateway URL from a listen address such as ":8080".
func localGateway(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

// ── Classifier wiring ─────────────────────────────────────────────────────────

func buildClassifier(a config.AssistantConfig) (assistant.Classifier, error) {
	if a.Classifier.Name == config.ClassifierHTTP {
		if a.ChatURL == "" {
			return nil, errors.New("assistant.chat_url is required for the http classifier")
		}
		return assistant.NewHTTPClassifier(a.ChatURL), nil
	}

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	slog.Debug("classifier backends available", "names", reg.LLMNames())
	p, err := reg.CreateLLM(a.Classifier)
	if err != nil {
		return nil, fmt.Errorf("create classifier %q: %w", a.Classifier.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", a.Classifier.Name, "model", a.Classifier.Model)

	var opts []assistant.LLMOption
	if prompt := optString(a.Classifier.Options, "prompt"); prompt != "" {
		opts = append(opts, assistant.WithPrompt(prompt))
	}
	opts = append(opts, assistant.WithLLMMetrics(observe.DefaultMetrics(), a.Classifier.Name))
	return assistant.NewLLMClassifier(p, opts...), nil
}

// registerBuiltinProviders wires the LLM factories that can back the chat
// classifier into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		p, err := openai.New(entry.APIKey, entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	// Every other backend goes through any-llm-go. Local servers are reached
	// by base URL; hosted ones take the key from config or their own env var.
	for _, name := range anyllm.Backends() {
		if name == "openai" {
			continue
		}
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" && !anyllm.Local(name) {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			p, err := anyllm.New(name, entry.Model, opts...)
			if err != nil {
				return nil, err
			}
			return p, nil
		})
	}
}

// optString extracts a string value from an options map.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}
