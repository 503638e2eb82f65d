// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs REST API. It implements tts.Provider and tts.TokenIssuer.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/MrWong99/hallvoice/pkg/jsonrepair"
	"github.com/MrWong99/hallvoice/pkg/provider/tts"
)

const (
	defaultBaseURL     = "https://api.elevenlabs.io"
	defaultOutputFmt   = "mp3_44100_128"
	defaultContentType = "audio/mpeg"

	// maxBodyBytes bounds how much of a provider response is buffered.
	maxBodyBytes = 32 << 20
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL (e.g. for a regional endpoint or a
// test server).
func WithBaseURL(base string) Option {
	return func(p *Provider) {
		if base != "" {
			p.baseURL = strings.TrimSuffix(base, "/")
		}
	}
}

// WithOutputFormat sets the default audio output format (e.g. "mp3_44100_128",
// "pcm_24000"). Requests carrying their own format override it.
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		if format != "" {
			p.outputFormat = format
		}
	}
}

// WithHTTPClient sets the HTTP client used for all requests. Per-attempt
// deadlines come from the request context, so the client needs no timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// Provider implements tts.Provider backed by the ElevenLabs REST API.
type Provider struct {
	apiKey       string
	baseURL      string
	outputFormat string
	httpClient   *http.Client
}

var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.TokenIssuer = (*Provider)(nil)
)

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		outputFormat: defaultOutputFmt,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// synthesizeRequest is the JSON body of POST /v1/text-to-speech/{voice_id}.
type synthesizeRequest struct {
	Text          string            `json:"text"`
	ModelID       string            `json:"model_id"`
	VoiceSettings tts.VoiceSettings `json:"voice_settings"`
}

// Synthesize renders one utterance with a single voice/model pair.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	if req.VoiceID == "" {
		return nil, errors.New("elevenlabs: voice ID must not be empty")
	}
	format := req.OutputFormat
	if format == "" {
		format = p.outputFormat
	}

	body, err := json.Marshal(synthesizeRequest{
		Text:          req.Text,
		ModelID:       req.ModelID,
		VoiceSettings: req.Settings,
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, buildSynthesisURL(p.baseURL, req.VoiceID, format), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/*")

	data, header, err := p.do(httpReq)
	if err != nil {
		return nil, err
	}

	ct := header.Get("Content-Type")
	if ct == "" {
		ct = contentTypeFor(format)
	}
	return &tts.Audio{Data: data, ContentType: ct}, nil
}

// IssueToken posts body to path (relative to the base URL) and returns the
// JSON answer. Non-JSON 2xx bodies are wrapped as a JSON string.
func (p *Provider) IssueToken(ctx context.Context, path string, body []byte) ([]byte, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create token request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	data, _, err := p.do(httpReq)
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		wrapped, _ := json.Marshal(string(data))
		return wrapped, nil
	}
	return data, nil
}

// do executes req and returns the body of a 2xx answer. Non-2xx answers are
// converted into a [*tts.StatusError].
func (p *Provider) do(req *http.Request) ([]byte, http.Header, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("elevenlabs: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("elevenlabs: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, &tts.StatusError{
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(data),
		}
	}
	return data, resp.Header, nil
}

// ---- helpers ----

// buildSynthesisURL constructs the synthesis endpoint for a voice and format.
func buildSynthesisURL(base, voiceID, format string) string {
	q := url.Values{}
	if format != "" {
		q.Set("output_format", format)
	}
	u := fmt.Sprintf("%s/v1/text-to-speech/%s", base, url.PathEscape(voiceID))
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

// errorDetail pulls the human-readable message out of an ElevenLabs error
// body. The API answers with {"detail": {"status": "...", "message": "..."}},
// {"detail": "..."} or, for validation failures, a list; anything else is
// returned raw.
func errorDetail(body []byte) string {
	obj := jsonrepair.Extract(string(body))
	if obj == nil {
		return strings.TrimSpace(string(body))
	}
	switch d := obj["detail"].(type) {
	case string:
		return d
	case map[string]any:
		msg, _ := d["message"].(string)
		status, _ := d["status"].(string)
		switch {
		case msg != "" && status != "":
			return status + ": " + msg
		case msg != "":
			return msg
		case status != "":
			return status
		}
	}
	if msg, ok := obj["message"].(string); ok && msg != "" {
		return msg
	}
	return strings.TrimSpace(string(body))
}

// contentTypeFor maps an ElevenLabs output format to a MIME type.
func contentTypeFor(format string) string {
	switch {
	case strings.HasPrefix(format, "pcm_"):
		return "audio/pcm"
	case strings.HasPrefix(format, "ulaw_"):
		return "audio/basic"
	case strings.HasPrefix(format, "opus_"):
		return "audio/ogg"
	default:
		return defaultContentType
	}
}
