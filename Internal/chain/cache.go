package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fazecat/optionsmith/Internal/types"
)

// Cache holds one chain fetch per (instrument, window, as-of date) for the
// lifetime of a run. The first caller for a key performs the fetch; any
// concurrent caller for the same key waits for that result instead of
// re-fetching. Discard the cache when the run ends.
type Cache struct {
	provider Provider

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	ready     chan struct{}
	contracts []types.Contract
	err       error
}

func NewCache(provider Provider) *Cache {
	return &Cache{
		provider: provider,
		entries:  make(map[string]*cacheEntry),
	}
}

func cacheKey(instrument string, from, to time.Time) string {
	return fmt.Sprintf("%s|%s|%s", instrument, from.Format("2006-01-02"), to.Format("2006-01-02"))
}

// FetchChain returns the cached chain for the key, fetching it exactly once.
func (c *Cache) FetchChain(ctx context.Context, instrument string, from, to time.Time) ([]types.Contract, error) {
	key := cacheKey(instrument, from, to)

	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok {
		entry = &cacheEntry{ready: make(chan struct{})}
		c.entries[key] = entry
		c.mu.Unlock()

		entry.contracts, entry.err = c.provider.FetchChain(ctx, instrument, from, to)
		close(entry.ready)
		return entry.contracts, entry.err
	}
	c.mu.Unlock()

	select {
	case <-entry.ready:
		return entry.contracts, entry.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Size returns the number of distinct chain fetches performed so far.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
