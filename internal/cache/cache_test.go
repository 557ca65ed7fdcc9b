package cache

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestKeyNormalization(t *testing.T) {
	base := Key("llama3.2:latest", "what is the valve rating", "rag")

	equivalent := []string{
		"What is the VALVE rating",
		"  what   is the\tvalve rating ",
		"what\nis the valve rating",
	}
	for _, q := range equivalent {
		if got := Key("llama3.2:latest", q, "rag"); got != base {
			t.Errorf("Key(%q) = %q, want %q", q, got, base)
		}
	}
}

func TestKeyDistinguishesInputs(t *testing.T) {
	base := Key("llama3.2:latest", "query", "rag")
	variants := map[string]string{
		"model": Key("mistral:7b-instruct", "query", "rag"),
		"query": Key("llama3.2:latest", "other query", "rag"),
		"mode":  Key("llama3.2:latest", "query", "plain"),
	}
	for name, key := range variants {
		if key == base {
			t.Errorf("changing %s did not change the key", name)
		}
	}
}

func TestKeyFormat(t *testing.T) {
	key := Key("m", "q", "rag")
	if !strings.HasPrefix(key, "query:") {
		t.Errorf("key = %q, want query: prefix", key)
	}
	if len(key) != len("query:")+64 {
		t.Errorf("key length = %d, want prefix plus 64 hex chars", len(key))
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.Set(ctx, "k", "cached answer", time.Hour); err != nil {
		t.Fatal(err)
	}
	value, found, err := m.Get(ctx, "k")
	if err != nil || !found {
		t.Fatalf("Get() = %q, %v, %v", value, found, err)
	}
	if value != "cached answer" {
		t.Errorf("value = %q", value)
	}
}

func TestMemoryMissingKey(t *testing.T) {
	_, found, err := NewMemory().Get(context.Background(), "absent")
	if err != nil || found {
		t.Errorf("Get() = found=%v, err=%v, want miss", found, err)
	}
}

func TestMemoryNonPositiveTTLIsImmediateMiss(t *testing.T) {
	ctx := context.Background()
	for _, ttl := range []time.Duration{0, -time.Second} {
		m := NewMemory()
		if err := m.Set(ctx, "k", "v", ttl); err != nil {
			t.Fatal(err)
		}
		if _, found, _ := m.Get(ctx, "k"); found {
			t.Errorf("ttl=%v: entry must never be served", ttl)
		}
	}
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	m := NewMemory()
	m.now = func() time.Time { return now }

	if err := m.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatal(err)
	}

	now = now.Add(59 * time.Second)
	if _, found, _ := m.Get(ctx, "k"); !found {
		t.Error("entry expired early")
	}

	// The boundary itself is a miss.
	now = now.Add(time.Second)
	if _, found, _ := m.Get(ctx, "k"); found {
		t.Error("entry served at its expiry instant")
	}
}

func TestMemoryOverwrite(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.Set(ctx, "k", "old", time.Hour)
	m.Set(ctx, "k", "new", time.Hour)

	value, _, _ := m.Get(ctx, "k")
	if value != "new" {
		t.Errorf("value = %q, want overwrite to win", value)
	}
}
