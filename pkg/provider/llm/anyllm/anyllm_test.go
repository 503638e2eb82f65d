package anyllm

import (
	"slices"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/hallvoice/pkg/provider/llm"
)

func TestRequest(t *testing.T) {
	p := &Provider{model: "claude-3-5-haiku-latest"}

	tests := []struct {
		name      string
		req       llm.CompletionRequest
		wantRoles []string
		wantTemp  *float64
		wantMax   *int
	}{
		{
			name: "classifier request",
			req: llm.CompletionRequest{
				SystemPrompt: "Answer with one intent object.",
				Messages:     []llm.Message{{Role: llm.RoleUser, Content: "cancel my Oak booking"}},
				Temperature:  0.2,
				MaxTokens:    400,
			},
			wantRoles: []string{anyllmlib.RoleSystem, llm.RoleUser},
			wantTemp:  ptr(0.2),
			wantMax:   ptr(400),
		},
		{
			name: "backend defaults",
			req: llm.CompletionRequest{Messages: []llm.Message{
				{Role: llm.RoleUser, Content: "hi"},
				{Role: llm.RoleAssistant, Content: `{"type":"CHAT","message":"Hello"}`},
				{Role: llm.RoleUser, Content: "which halls are free?"},
			}},
			wantRoles: []string{llm.RoleUser, llm.RoleAssistant, llm.RoleUser},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.request(tt.req)
			if got.Model != p.model {
				t.Errorf("model = %q", got.Model)
			}
			var roles []string
			for _, m := range got.Messages {
				roles = append(roles, m.Role)
			}
			if !slices.Equal(roles, tt.wantRoles) {
				t.Errorf("roles = %v, want %v", roles, tt.wantRoles)
			}
			if last := got.Messages[len(got.Messages)-1]; last.ContentString() != tt.req.Messages[len(tt.req.Messages)-1].Content {
				t.Errorf("last message content = %q", last.ContentString())
			}
			if !samePtr(got.Temperature, tt.wantTemp) {
				t.Errorf("temperature = %v, want %v", got.Temperature, tt.wantTemp)
			}
			if !samePtr(got.MaxTokens, tt.wantMax) {
				t.Errorf("max tokens = %v, want %v", got.MaxTokens, tt.wantMax)
			}
		})
	}
}

func TestBackends(t *testing.T) {
	got := Backends()
	if !slices.IsSorted(got) {
		t.Errorf("Backends not sorted: %v", got)
	}
	for _, want := range []string{"anthropic", "gemini", "ollama", "openai"} {
		if !slices.Contains(got, want) {
			t.Errorf("Backends missing %q: %v", want, got)
		}
	}
}

func TestCanonicalAndLocal(t *testing.T) {
	tests := []struct {
		in        string
		canonical string
		local     bool
	}{
		{"Claude", "anthropic", false},
		{" google ", "gemini", false},
		{"llama.cpp", "llamacpp", true},
		{"ollama", "ollama", true},
		{"groq", "groq", false},
	}
	for _, tt := range tests {
		if got := canonical(tt.in); got != tt.canonical {
			t.Errorf("canonical(%q) = %q, want %q", tt.in, got, tt.canonical)
		}
		if got := Local(tt.in); got != tt.local {
			t.Errorf("Local(%q) = %v, want %v", tt.in, got, tt.local)
		}
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		backend, model string
		opts           []anyllmlib.Option
		wantErr        bool
	}{
		{backend: "openai", model: "", wantErr: true},
		{backend: "fakecloud", model: "m", opts: []anyllmlib.Option{anyllmlib.WithAPIKey("dummy")}, wantErr: true},
		{backend: "openai", model: "gpt-4o-mini", opts: []anyllmlib.Option{anyllmlib.WithAPIKey("sk-test")}},
		{backend: "claude", model: "claude-3-5-haiku-latest", opts: []anyllmlib.Option{anyllmlib.WithAPIKey("sk-ant-test")}},
		{backend: "ollama", model: "llama3.1"},
		{backend: "llama.cpp", model: "llama3.1"},
		{backend: "llamafile", model: "llama3.1"},
	}
	for _, tt := range tests {
		t.Run(tt.backend+"/"+tt.model, func(t *testing.T) {
			p, err := New(tt.backend, tt.model, tt.opts...)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if p.model != tt.model {
				t.Errorf("model = %q, want %q", p.model, tt.model)
			}
		})
	}
}

func TestNew_HostedBackendWithoutKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New("openai", "gpt-4o"); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func ptr[T any](v T) *T { return &v }

func samePtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
