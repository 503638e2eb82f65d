package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MrWong99/hallvoice/internal/resilience"
	"github.com/MrWong99/hallvoice/pkg/jsonrepair"
)

// maxResponseBytes bounds buffered boundary responses. Synthesised audio is
// larger and is read by [GatewaySpeaker] with its own limit.
const maxResponseBytes = 1 << 20

// maxMessageLen bounds a plain-text error body kept in [HTTPError].
const maxMessageLen = 200

// HTTPError is a non-2xx answer from a boundary endpoint.
type HTTPError struct {
	URL     string
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("assistant: %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("assistant: %s: status %d: %s", e.URL, e.Status, e.Message)
}

// StatusCode returns the HTTP status of the failed call.
func (e *HTTPError) StatusCode() int { return e.Status }

// HTTPOption configures the HTTP boundary clients.
type HTTPOption func(*endpoint)

// WithHTTPClient sets the client used for requests. Deadlines come from the
// request context.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(e *endpoint) {
		if c != nil {
			e.client = c
		}
	}
}

type endpoint struct {
	url    string
	client *http.Client
}

func newEndpoint(url string, opts []HTTPOption) endpoint {
	e := endpoint{url: url, client: &http.Client{}}
	for _, o := range opts {
		o(&e)
	}
	return e
}

// post sends body as JSON to url and returns the response body of a 2xx
// answer.
func (e endpoint) post(ctx context.Context, url string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("assistant: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("assistant: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("assistant: %s: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("assistant: %s: read response: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{URL: url, Status: resp.StatusCode, Message: errorMessage(data)}
	}
	return data, nil
}

// errorMessage pulls a human readable message out of an error body.
func errorMessage(body []byte) string {
	var v struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Msg     string `json:"msg"`
	}
	if jsonrepair.ExtractInto(string(body), &v) {
		return orDefault(v.Message, orDefault(v.Error, v.Msg))
	}
	return resilience.Truncate(strings.TrimSpace(string(body)), maxMessageLen)
}

// HTTPClassifier posts {message} to a chat endpoint answering {reply}.
type HTTPClassifier struct {
	endpoint
}

var _ Classifier = (*HTTPClassifier)(nil)

// NewHTTPClassifier returns a classifier calling url.
func NewHTTPClassifier(url string, opts ...HTTPOption) *HTTPClassifier {
	return &HTTPClassifier{endpoint: newEndpoint(url, opts)}
}

// Classify implements [Classifier]. A 2xx body that is not the expected
// envelope is read as the reply itself.
func (c *HTTPClassifier) Classify(ctx context.Context, message string) (Intent, error) {
	data, err := c.post(ctx, c.url, map[string]string{"message": message})
	if err != nil {
		return Intent{}, err
	}
	var env struct {
		Reply json.RawMessage `json:"reply"`
	}
	if json.Unmarshal(data, &env) == nil && len(env.Reply) > 0 {
		return ParseIntent(env.Reply), nil
	}
	return ParseIntent(string(data)), nil
}

// HTTPExecutor posts {intent} to the action endpoint.
type HTTPExecutor struct {
	endpoint
}

var _ Executor = (*HTTPExecutor)(nil)

// NewHTTPExecutor returns an executor calling url.
func NewHTTPExecutor(url string, opts ...HTTPOption) *HTTPExecutor {
	return &HTTPExecutor{endpoint: newEndpoint(url, opts)}
}

// Execute implements [Executor].
func (x *HTTPExecutor) Execute(ctx context.Context, intent Intent) (ActionResult, error) {
	data, err := x.post(ctx, x.url, map[string]Intent{"intent": intent})
	if err != nil {
		return ActionResult{}, err
	}
	return ParseActionResult(data), nil
}

// HTTPCaller issues READY follow-up calls against the portal. Only paths on
// its allow-list are called.
type HTTPCaller struct {
	endpoint
	allowed []string
}

var _ Caller = (*HTTPCaller)(nil)

// NewHTTPCaller returns a caller posting to baseURL+path for allowed paths.
func NewHTTPCaller(baseURL string, allowed []string, opts ...HTTPOption) *HTTPCaller {
	return &HTTPCaller{
		endpoint: newEndpoint(strings.TrimSuffix(baseURL, "/"), opts),
		allowed:  allowed,
	}
}

// Call implements [Caller]. A 2xx answer whose JSON carries ok or success
// set to false counts as a failure.
func (c *HTTPCaller) Call(ctx context.Context, path string, payload json.RawMessage) error {
	if !(Machine{AllowedCalls: c.allowed}).Allowed(path) {
		return fmt.Errorf("assistant: follow-up %q not allowed", path)
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	data, err := c.post(ctx, c.url+path, payload)
	if err != nil {
		return err
	}
	var ack struct {
		OK      *bool  `json:"ok"`
		Success *bool  `json:"success"`
		Message string `json:"message"`
	}
	if !jsonrepair.ExtractInto(string(data), &ack) {
		return nil
	}
	if (ack.OK != nil && !*ack.OK) || (ack.Success != nil && !*ack.Success) {
		return fmt.Errorf("assistant: follow-up %q rejected: %s", path, orDefault(ack.Message, "no reason given"))
	}
	return nil
}
