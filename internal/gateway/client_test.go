package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testCreds() Credentials {
	return Credentials{Account: "acme", User: "alice", Password: "hunter2"}
}

func TestComplete_NoCredentials(t *testing.T) {
	c := NewClient("http://localhost:1", Credentials{Account: "acme", User: "alice"})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Complete(ctx, Request{Prompt: "hi", AgentID: "a"}); err == nil {
		t.Fatalf("expected error with missing password")
	}
}

func TestComplete_HTTPFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status_non_2xx", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500); _, _ = w.Write([]byte("oops")) }},
		{"bad_json", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("not-json")) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			c := NewClient(srv.URL, testCreds())
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if _, err := c.Complete(ctx, Request{Prompt: "hi", AgentID: "a"}); err == nil {
				t.Fatalf("expected error; got nil")
			}
		})
	}
}

func TestComplete_SendsRoutingAndAuth(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = w.Write([]byte(`{"text":"  42 rows  "}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testCreds())
	got, err := c.Complete(context.Background(), Request{
		Prompt:  "how many rows",
		AgentID: "sales-agent",
		Routing: Routing{Warehouse: "wh_small", Database: "analytics", Schema: "public"},
	})
	require.NoError(t, err)
	require.Equal(t, "42 rows", got, "response text is trimmed")
	require.Equal(t, "Bearer hunter2", gotAuth)
	require.Equal(t, "sales-agent", gotBody["agent_id"])
	require.Equal(t, "wh_small", gotBody["warehouse"])
	require.Equal(t, "analytics", gotBody["database"])
	require.Equal(t, "public", gotBody["schema"])
	require.Equal(t, "acme", gotBody["account"])
}

func TestComplete_EmptyTextIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":""}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testCreds())
	got, err := c.Complete(context.Background(), Request{Prompt: "hi", AgentID: "a"})
	require.NoError(t, err)
	require.Equal(t, "", got)
}

func TestListAgents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/agents", r.URL.Path)
		_, _ = w.Write([]byte(`{"agents":[{"id":"sales-agent","name":"Sales"},{"id":"ops","name":"Ops"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testCreds())
	agents, err := c.ListAgents(context.Background())
	require.NoError(t, err)
	require.Len(t, agents, 2)
	require.Equal(t, "sales-agent", agents[0].ID)
}

func TestPool_ReusesAndBounds(t *testing.T) {
	p := NewPool("http://localhost:1", 2, time.Minute, nil)
	defer p.Close()

	a := p.Get(Credentials{Account: "acme", User: "alice", Password: "p1"})
	require.Same(t, a, p.Get(Credentials{Account: "acme", User: "alice", Password: "p1"}))

	// New password replaces the handle for the same identity.
	require.NotSame(t, a, p.Get(Credentials{Account: "acme", User: "alice", Password: "p2"}))
	require.Equal(t, 1, p.Len())

	// Capacity 2: a third identity evicts the least recently used.
	p.Get(Credentials{Account: "acme", User: "bob", Password: "p"})
	p.Get(Credentials{Account: "acme", User: "carol", Password: "p"})
	require.Equal(t, 2, p.Len())
}
