// Package mock provides test doubles for the tts.Provider and tts.TokenIssuer
// interfaces.
//
// Example:
//
//	p := &mock.Provider{
//	    SynthesizeFunc: func(_ context.Context, req tts.Request) (*tts.Audio, error) {
//	        if req.ModelID == "eleven_v3" {
//	            return nil, &tts.StatusError{StatusCode: 503}
//	        }
//	        return &tts.Audio{Data: []byte("mp3"), ContentType: "audio/mpeg"}, nil
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/hallvoice/pkg/provider/tts"
)

// IssueTokenCall records a single invocation of IssueToken.
type IssueTokenCall struct {
	Path string
	Body []byte
}

// Provider is a mock implementation of tts.Provider and tts.TokenIssuer.
// When a Func field is nil the matching Result/Err fields are returned.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// SynthesizeFunc, if set, computes the answer for each Synthesize call.
	SynthesizeFunc func(ctx context.Context, req tts.Request) (*tts.Audio, error)

	// SynthesizeResult and SynthesizeErr are returned when SynthesizeFunc is nil.
	SynthesizeResult *tts.Audio
	SynthesizeErr    error

	// IssueTokenFunc, if set, computes the answer for each IssueToken call.
	IssueTokenFunc func(ctx context.Context, path string, body []byte) ([]byte, error)

	// IssueTokenResult and IssueTokenErr are returned when IssueTokenFunc is nil.
	IssueTokenResult []byte
	IssueTokenErr    error

	// --- Call records ---

	// SynthesizeCalls records every request passed to Synthesize in order.
	SynthesizeCalls []tts.Request

	// IssueTokenCalls records every call to IssueToken in order.
	IssueTokenCalls []IssueTokenCall
}

// Synthesize records the call and returns the configured answer.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, req)
	fn, res, err := p.SynthesizeFunc, p.SynthesizeResult, p.SynthesizeErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return res, err
}

// IssueToken records the call and returns the configured answer.
func (p *Provider) IssueToken(ctx context.Context, path string, body []byte) ([]byte, error) {
	p.mu.Lock()
	bodyCopy := append([]byte(nil), body...)
	p.IssueTokenCalls = append(p.IssueTokenCalls, IssueTokenCall{Path: path, Body: bodyCopy})
	fn, res, err := p.IssueTokenFunc, p.IssueTokenResult, p.IssueTokenErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, path, body)
	}
	return res, err
}

// Calls returns a copy of the recorded Synthesize requests. Thread-safe.
func (p *Provider) Calls() []tts.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]tts.Request, len(p.SynthesizeCalls))
	copy(out, p.SynthesizeCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
	p.IssueTokenCalls = nil
}

var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.TokenIssuer = (*Provider)(nil)
)
