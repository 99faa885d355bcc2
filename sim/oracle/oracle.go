// Package oracle defines the boundary to the external decision service:
// pure request/response types, a Client interface, and the JSON-over-HTTP
// implementation. The package has no dependencies on sim/: validation of
// a returned action against live warehouse state belongs to the Decision
// Gateway, not to this transport layer.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrMalformed marks a response that failed schema validation: missing
// required fields, or an undecodable body. Callers recover via the
// deterministic fallback policy.
var ErrMalformed = errors.New("malformed oracle response")

// Request is the serialized situation handed to the oracle: a free-form
// question or ambiguity description plus entity summaries from the state
// snapshot. State is opaque to this package.
type Request struct {
	Question   string   `json:"question"`
	Ambiguity  string   `json:"ambiguity,omitempty"`
	State      any      `json:"state,omitempty"`
	Candidates []Action `json:"candidates,omitempty"`
}

// Action is the structured recommendation returned by the oracle.
// Kind and TargetIDs are required; Ordering and Rationale are advisory.
// Unknown response fields are ignored by decoding.
type Action struct {
	Kind      string   `json:"kind"`
	TargetIDs []string `json:"target_ids"`
	Quantity  int      `json:"quantity,omitempty"`
	Ordering  []string `json:"ordering,omitempty"`
	Rationale string   `json:"rationale,omitempty"`
}

// Validate checks the required fields of the schema.
func (a Action) Validate() error {
	if a.Kind == "" {
		return fmt.Errorf("missing kind: %w", ErrMalformed)
	}
	if len(a.TargetIDs) == 0 {
		return fmt.Errorf("missing target_ids: %w", ErrMalformed)
	}
	return nil
}

// Client is the advisory decision service. Decide blocks until the
// context deadline at the latest; it is the only operation in the system
// allowed to block.
type Client interface {
	Decide(ctx context.Context, req Request) (Action, error)
}

// HTTPClient talks to an oracle endpoint with POST <endpoint>, JSON body.
type HTTPClient struct {
	endpoint string
	hc       *http.Client
}

// NewHTTPClient creates an HTTPClient. The timeout is a hard ceiling on
// each Decide call, independent of the caller's context.
func NewHTTPClient(endpoint string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		endpoint: endpoint,
		hc:       &http.Client{Timeout: timeout},
	}
}

// Decide posts the request and decodes the recommended action.
func (c *HTTPClient) Decide(ctx context.Context, req Request) (Action, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Action{}, fmt.Errorf("marshal oracle request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Action{}, fmt.Errorf("build oracle request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return Action{}, fmt.Errorf("oracle call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return Action{}, fmt.Errorf("oracle returned status %d", resp.StatusCode)
	}

	var action Action
	if err := json.NewDecoder(resp.Body).Decode(&action); err != nil {
		return Action{}, fmt.Errorf("decode oracle response: %w", ErrMalformed)
	}
	if err := action.Validate(); err != nil {
		return Action{}, err
	}
	return action, nil
}

// StubClient is a scripted Client for tests: it records every request and
// replies with a fixed action or error after an optional delay.
type StubClient struct {
	Action Action
	Err    error
	Delay  time.Duration
	Calls  []Request
}

// Decide implements Client.
func (s *StubClient) Decide(ctx context.Context, req Request) (Action, error) {
	s.Calls = append(s.Calls, req)
	if s.Delay > 0 {
		select {
		case <-ctx.Done():
			return Action{}, ctx.Err()
		case <-time.After(s.Delay):
		}
	}
	if s.Err != nil {
		return Action{}, s.Err
	}
	return s.Action, nil
}
