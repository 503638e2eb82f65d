package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MrWong99/hallvoice/internal/playback"
)

// maxAudioBytes bounds a synthesised utterance read from the gateway.
const maxAudioBytes = 32 << 20

// Player plays decoded audio. [*playback.Manager] satisfies it.
type Player interface {
	Play(audio []byte, done func(error)) (*playback.Session, error)
	Stop()
}

// GatewaySpeaker synthesises utterances through the voice gateway's
// /voice/tts endpoint and plays the result.
type GatewaySpeaker struct {
	url      string
	format   string
	language string
	client   *http.Client
	player   Player
}

var _ Speaker = (*GatewaySpeaker)(nil)

// SpeakerOption configures a [GatewaySpeaker].
type SpeakerOption func(*GatewaySpeaker)

// WithOutputFormat sets the requested output format, e.g. "pcm_24000".
func WithOutputFormat(f string) SpeakerOption {
	return func(g *GatewaySpeaker) { g.format = f }
}

// WithLanguage sets the language hint: "auto", "en" or "hi".
func WithLanguage(l string) SpeakerOption {
	return func(g *GatewaySpeaker) { g.language = l }
}

// WithSpeakerClient sets the HTTP client.
func WithSpeakerClient(c *http.Client) SpeakerOption {
	return func(g *GatewaySpeaker) {
		if c != nil {
			g.client = c
		}
	}
}

// NewGatewaySpeaker returns a speaker using the gateway at baseURL.
func NewGatewaySpeaker(baseURL string, player Player, opts ...SpeakerOption) *GatewaySpeaker {
	g := &GatewaySpeaker{
		url:    strings.TrimSuffix(baseURL, "/") + "/voice/tts",
		client: &http.Client{},
		player: player,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

type speakRequest struct {
	Text         string `json:"text"`
	Mode         string `json:"mode"`
	Language     string `json:"language,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`
}

// Speak implements [Speaker].
func (g *GatewaySpeaker) Speak(ctx context.Context, u Utterance, started func()) error {
	audio, err := g.synthesize(ctx, u)
	// Audio for an abandoned turn must not interrupt whatever plays now.
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	if err != nil {
		return err
	}

	finished := make(chan error, 1)
	sess, err := g.player.Play(audio, func(err error) { finished <- err })
	if err != nil {
		return fmt.Errorf("assistant: play: %w", err)
	}
	if started != nil {
		started()
	}

	select {
	case err := <-finished:
		return err
	case <-ctx.Done():
		sess.Stop()
		<-finished
		return ctx.Err()
	}
}

// Stop implements [Speaker].
func (g *GatewaySpeaker) Stop() { g.player.Stop() }

func (g *GatewaySpeaker) synthesize(ctx context.Context, u Utterance) ([]byte, error) {
	body, err := json.Marshal(speakRequest{
		Text:         u.Text,
		Mode:         string(u.Mode),
		Language:     g.language,
		OutputFormat: g.format,
	})
	if err != nil {
		return nil, fmt.Errorf("assistant: encode speech request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("assistant: build speech request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("assistant: synthesize: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("assistant: read audio: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{URL: g.url, Status: resp.StatusCode, Message: errorMessage(data)}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("assistant: synthesize: empty audio")
	}
	return data, nil
}
