// Package cache stores finished assistant responses keyed by a
// fingerprint of the request. Entries expire; an entry written with a
// non-positive TTL is never served.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// Cache is a TTL key/value store for response text. Get reports a miss
// with found=false; errors are reserved for backend faults.
type Cache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Key fingerprints a request. The query is normalized first (lowercased,
// whitespace runs folded to single spaces) so trivially reworded repeats
// hit the same entry. Mode separates workflows that share a model, for
// example RAG and non-RAG answers to the same question.
func Key(model, query, mode string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(normalize(query)))
	h.Write([]byte{0})
	h.Write([]byte(mode))
	return "query:" + hex.EncodeToString(h.Sum(nil))
}

func normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

type memoryEntry struct {
	value   string
	expires time.Time
}

// Memory is an in-process Cache. It serves tests and keeps the pipeline
// working when no Redis is configured.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: value, expires: m.now().Add(ttl)}
	return nil
}
