// Package dedup remembers detail URLs already scraped by earlier runs.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/baxromumarov/portal-scraper/internal/urlutil"
)

// Cache records scraped URLs. Implementations must be safe for concurrent use.
// URLs are compared in normalized form, so tracking parameters and host case
// do not matter.
type Cache interface {
	Seen(ctx context.Context, url string) (bool, error)
	Mark(ctx context.Context, url string) error
}

// Memory is an in-process Cache with an optional TTL. A zero TTL never
// expires entries.
type Memory struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	seen map[string]time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now, seen: make(map[string]time.Time)}
}

func (m *Memory) Seen(_ context.Context, url string) (bool, error) {
	key := canonical(url)
	m.mu.Lock()
	defer m.mu.Unlock()

	at, ok := m.seen[key]
	if !ok {
		return false, nil
	}
	if m.ttl > 0 && m.now().Sub(at) >= m.ttl {
		delete(m.seen, key)
		return false, nil
	}
	return true, nil
}

func (m *Memory) Mark(_ context.Context, url string) error {
	key := canonical(url)
	m.mu.Lock()
	m.seen[key] = m.now()
	m.mu.Unlock()
	return nil
}

// Len reports how many URLs are currently remembered, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

func canonical(url string) string {
	if n, err := urlutil.Normalize(url); err == nil {
		return n
	}
	return url
}
