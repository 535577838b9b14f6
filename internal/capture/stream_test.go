package capture

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestHelpers_LastWordAndContinuation(t *testing.T) {
	if lastWord("") != "" {
		t.Fatalf("lastWord empty mismatch")
	}
	if lastWord("hi there!") != "there" {
		t.Fatalf("lastWord basic mismatch")
	}
	if !isContinuationLikely("we should and") {
		t.Fatalf("expected continuation likely when last word is 'and'")
	}
	if isContinuationLikely("complete sentence.") {
		t.Fatalf("did not expect continuation likely")
	}
}

func TestCommitDelta(t *testing.T) {
	latest, committed := "hello world", ""
	if got := commitDelta(&latest, &committed); got != "hello world" {
		t.Fatalf("first delta mismatch: %q", got)
	}
	latest = "hello world how are you"
	if got := commitDelta(&latest, &committed); got != "how are you" {
		t.Fatalf("second delta mismatch: %q", got)
	}
	// No growth means no delta.
	if got := commitDelta(&latest, &committed); got != "" {
		t.Fatalf("expected empty delta, got %q", got)
	}
}

var loopbackUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// loopbackServer emits a Begin message and the given Turn transcripts, then
// keeps the socket open until the client disconnects.
func loopbackServer(t *testing.T, transcripts []string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := loopbackUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(map[string]any{"type": "Begin", "id": "sess-1", "expires_at": time.Now().Add(time.Hour).Unix()})
		for _, tr := range transcripts {
			_ = conn.WriteJSON(map[string]any{"type": "Turn", "transcript": tr})
			time.Sleep(10 * time.Millisecond)
		}
		// Drain until the client closes or terminates.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSStream_InterimThenFinal(t *testing.T) {
	url := loopbackServer(t, []string{"what is", "what is the weather"})

	rec := NewWSRecognizer(WSConfig{
		URL:                   url,
		APIKey:                "test",
		SilenceThreshold:      60 * time.Millisecond,
		ContinuationExtension: 80 * time.Millisecond,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	stream, err := rec.Start(ctx)
	require.NoError(t, err)
	defer stream.Close()

	var interim int
	var final string
	deadline := time.After(2 * time.Second)
	for final == "" {
		select {
		case ev, ok := <-stream.Events():
			require.True(t, ok, "events closed before final")
			require.NoError(t, ev.Err)
			if ev.Final {
				final = ev.Text
			} else {
				interim++
			}
		case <-deadline:
			t.Fatalf("timed out waiting for final transcript")
		}
	}
	require.Equal(t, "what is the weather", final)
	require.GreaterOrEqual(t, interim, 1)
}

func TestWSRecognizer_RequiresAPIKey(t *testing.T) {
	rec := NewWSRecognizer(WSConfig{URL: "ws://localhost:1"})
	_, err := rec.Start(context.Background())
	require.Error(t, err)
}

func TestScriptedRecognizer_Replays(t *testing.T) {
	rec := &ScriptedRecognizer{
		Events: []Event{{Text: "hi"}, {Text: "hi there", Final: true}},
		Gap:    time.Millisecond,
	}
	stream, err := rec.Start(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	var got []Event
	for ev := range stream.Events() {
		got = append(got, ev)
	}
	require.Len(t, got, 2)
	require.True(t, got[1].Final)
	require.Equal(t, "hi there", got[1].Text)
}
