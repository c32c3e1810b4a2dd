package cache

import (
	"context"
	"sync"
	"time"

	"stocktracker/config"
	"stocktracker/internal/model"
)

type memoryEntry struct {
	quote    model.Quote
	storedAt time.Time
}

// MemoryCache is a process-wide TTL cache for quotes. Expired entries are
// evicted lazily on lookup; there is no background sweep.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryCache(cfg *config.Config) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     cfg.Cache.QuoteExpiration,
		now:     time.Now,
	}
}

func (m *MemoryCache) GetQuote(_ context.Context, symbol string) (model.Quote, error) {
	m.mu.RLock()
	entry, ok := m.entries[symbol]
	m.mu.RUnlock()

	if !ok {
		return model.Quote{}, ErrCacheMiss
	}

	if m.now().Sub(entry.storedAt) >= m.ttl {
		m.mu.Lock()
		// re-check: the entry may have been refreshed since the read lock
		if cur, ok := m.entries[symbol]; ok && m.now().Sub(cur.storedAt) >= m.ttl {
			delete(m.entries, symbol)
		}
		m.mu.Unlock()
		return model.Quote{}, ErrCacheMiss
	}

	return entry.quote, nil
}

func (m *MemoryCache) SetQuote(_ context.Context, symbol string, quote model.Quote) error {
	m.mu.Lock()
	m.entries[symbol] = memoryEntry{quote: quote, storedAt: m.now()}
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Clear(_ context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]memoryEntry)
	m.mu.Unlock()
	return nil
}
