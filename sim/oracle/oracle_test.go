package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAction_Validate(t *testing.T) {
	tests := []struct {
		name    string
		action  Action
		wantErr bool
	}{
		{"valid", Action{Kind: "assign", TargetIDs: []string{"t", "a"}}, false},
		{"missing kind", Action{TargetIDs: []string{"t"}}, true},
		{"missing targets", Action{Kind: "assign"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.action.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformed)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHTTPClient_Decide_PostsRequestAndDecodesAction(t *testing.T) {
	// GIVEN an oracle endpoint echoing a fixed recommendation
	var received Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&received)
		_ = json.NewEncoder(w).Encode(Action{Kind: "assign", TargetIDs: []string{"t1", "agv-a"}, Rationale: "closest"})
	}))
	defer srv.Close()

	// WHEN a decision is requested
	c := NewHTTPClient(srv.URL, time.Second)
	action, err := c.Decide(context.Background(), Request{Ambiguity: "two pairings"})

	// THEN the request body arrived and the action round-trips
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	assert.Equal(t, "two pairings", received.Ambiguity)
	assert.Equal(t, "assign", action.Kind)
	assert.Equal(t, []string{"t1", "agv-a"}, action.TargetIDs)
}

func TestHTTPClient_Decide_IgnoresUnknownResponseFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"kind":"restock","target_ids":["P001"],"confidence":0.93,"model":"v2"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	action, err := c.Decide(context.Background(), Request{Question: "restock?"})
	assert.NoError(t, err)
	assert.Equal(t, "restock", action.Kind)
}

func TestHTTPClient_Decide_Non200_Fails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	_, err := c.Decide(context.Background(), Request{})
	assert.Error(t, err)
}

func TestHTTPClient_Decide_UndecodableBody_Malformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("I think you should assign t1 to agv-a"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	_, err := c.Decide(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestHTTPClient_Decide_MissingRequiredFields_Malformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rationale":"no idea"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	_, err := c.Decide(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestHTTPClient_Decide_ContextCancellation_Unblocks(t *testing.T) {
	// GIVEN an oracle that never answers in time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	// WHEN the caller's context expires first
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	c := NewHTTPClient(srv.URL, time.Second)
	start := time.Now()
	_, err := c.Decide(ctx, Request{})

	// THEN Decide returns promptly with an error
	assert.Error(t, err)
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("Decide blocked %v past context cancellation", elapsed)
	}
}
