package config

import (
	"testing"
	"time"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("HTTP_ADDRESS", "")
	t.Setenv("STT_WS_URL", "")
	t.Setenv("DISPATCH_TIMEOUT", "")
	t.Setenv("CONN_POOL_SIZE", "")
	cfg := Load()
	if cfg.HTTPAddress == "" {
		t.Fatalf("expected default http address")
	}
	if cfg.STTWebSocketURL == "" {
		t.Fatalf("expected default stt websocket url")
	}
	if cfg.DispatchTimeout != 30*time.Second {
		t.Fatalf("expected default dispatch timeout, got %s", cfg.DispatchTimeout)
	}
	if cfg.ConnPoolSize != 32 {
		t.Fatalf("expected default conn pool size, got %d", cfg.ConnPoolSize)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("DISPATCH_TIMEOUT", "banana")
	t.Setenv("CONN_POOL_SIZE", "-3")
	cfg := Load()
	if cfg.DispatchTimeout != 30*time.Second {
		t.Fatalf("expected fallback dispatch timeout, got %s", cfg.DispatchTimeout)
	}
	if cfg.ConnPoolSize != 32 {
		t.Fatalf("expected fallback conn pool size, got %d", cfg.ConnPoolSize)
	}
}
