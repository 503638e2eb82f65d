package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/hallvoice/pkg/provider/tts"
	"github.com/MrWong99/hallvoice/pkg/provider/tts/mock"
)

func TestIssue_NoIssuer(t *testing.T) {
	ti := NewTokenIssuer(nil, nil, WithTokenMetrics(testMetrics(t)))
	_, err := ti.Issue(context.Background(), []byte(`{}`))
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want *ConfigurationError", err)
	}
}

func TestIssue_PrimaryWins(t *testing.T) {
	p := &mock.Provider{IssueTokenResult: []byte(`{"token":"abc"}`)}
	ti := NewTokenIssuer(p, nil, WithTokenMetrics(testMetrics(t)))

	res, err := ti.Issue(context.Background(), []byte(`{"agent_id":"hall-desk"}`))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if res.Endpoint != DefaultTokenEndpoints[0] {
		t.Errorf("endpoint = %q", res.Endpoint)
	}
	if string(res.Data) != `{"token":"abc"}` {
		t.Errorf("data = %s", res.Data)
	}
	if len(p.IssueTokenCalls) != 1 || string(p.IssueTokenCalls[0].Body) != `{"agent_id":"hall-desk"}` {
		t.Errorf("calls = %+v", p.IssueTokenCalls)
	}
}

func TestIssue_FallsBackToSecondEndpoint(t *testing.T) {
	p := &mock.Provider{IssueTokenFunc: func(_ context.Context, path string, _ []byte) ([]byte, error) {
		if path == DefaultTokenEndpoints[0] {
			return nil, &tts.StatusError{StatusCode: 403, Detail: "missing_permissions"}
		}
		return []byte(`{"token":"single-use"}`), nil
	}}
	ti := NewTokenIssuer(p, nil, WithTokenMetrics(testMetrics(t)))

	res, err := ti.Issue(context.Background(), nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if res.Endpoint != DefaultTokenEndpoints[1] {
		t.Errorf("endpoint = %q", res.Endpoint)
	}
}

func TestIssue_Exhausted(t *testing.T) {
	p := &mock.Provider{IssueTokenErr: &tts.StatusError{StatusCode: 503, Detail: "down"}}
	ti := NewTokenIssuer(p, []string{"/a", "/b", "/a"}, WithTokenMetrics(testMetrics(t)))

	_, err := ti.Issue(context.Background(), nil)
	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("err = %v, want *ExhaustedError", err)
	}
	if ex.Kind != KindToken {
		t.Errorf("kind = %q", ex.Kind)
	}
	if len(ex.Failures) != 2 {
		t.Fatalf("failures = %d, want 2 (deduplicated endpoints)", len(ex.Failures))
	}
	if ex.Failures[0].Endpoint != "/a" || ex.Failures[1].Endpoint != "/b" || ex.Failures[1].Status != 503 {
		t.Errorf("failures = %+v", ex.Failures)
	}
}

func TestIssue_NonJSONWrapped(t *testing.T) {
	p := &mock.Provider{IssueTokenResult: []byte("raw-token")}
	ti := NewTokenIssuer(p, nil, WithTokenMetrics(testMetrics(t)))
	res, err := ti.Issue(context.Background(), nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if string(res.Data) != `"raw-token"` {
		t.Errorf("data = %s", res.Data)
	}
}

func TestTokenIssuer_Ready(t *testing.T) {
	g := NewTokenIssuer(nil, nil, WithTokenMetrics(testMetrics(t)))
	var cfgErr *ConfigurationError
	if err := g.Ready(context.Background()); !errors.As(err, &cfgErr) {
		t.Fatalf("Ready() = %v, want *ConfigurationError", err)
	}
	g.Update(&mock.Provider{}, nil)
	if err := g.Ready(context.Background()); err != nil {
		t.Errorf("Ready() = %v, want nil", err)
	}
}
