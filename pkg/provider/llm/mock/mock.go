// Package mock provides a scripted [llm.Provider] for classifier tests.
//
//	p := mock.Replying(`{"type":"CHAT","message":"Elm is free."}`)
//	c := assistant.NewLLMClassifier(p)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/hallvoice/pkg/provider/llm"
)

// Provider answers Complete from a script. Each call consumes the next entry
// of Responses; once the script runs out the last entry repeats. An empty
// script answers (nil, Err).
type Provider struct {
	Responses []*llm.CompletionResponse
	Err       error

	mu       sync.Mutex
	requests []llm.CompletionRequest
}

var _ llm.Provider = (*Provider)(nil)

// Replying scripts one plain-text reply per call.
func Replying(texts ...string) *Provider {
	p := &Provider{}
	for _, t := range texts {
		p.Responses = append(p.Responses, &llm.CompletionResponse{Content: t, FinishReason: "stop"})
	}
	return p
}

// Complete records req and plays the next scripted response.
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.requests)
	p.requests = append(p.requests, req)
	if p.Err != nil || len(p.Responses) == 0 {
		return nil, p.Err
	}
	return p.Responses[min(n, len(p.Responses)-1)], nil
}

// Requests returns the requests seen so far.
func (p *Provider) Requests() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.CompletionRequest(nil), p.requests...)
}
