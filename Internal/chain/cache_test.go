package chain

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fazecat/optionsmith/Internal/types"
)

type countingProvider struct {
	calls int64
	err   error
}

func (p *countingProvider) FetchChain(ctx context.Context, instrument string, from, to time.Time) ([]types.Contract, error) {
	atomic.AddInt64(&p.calls, 1)
	time.Sleep(5 * time.Millisecond) // widen the race window
	if p.err != nil {
		return nil, p.err
	}
	return []types.Contract{{Symbol: instrument + "260116C00100000", Underlying: instrument}}, nil
}

func TestCacheFetchesOncePerKey(t *testing.T) {
	provider := &countingProvider{}
	cache := NewCache(provider)

	from := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 60)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			contracts, err := cache.FetchChain(context.Background(), "AAPL", from, to)
			if err != nil {
				t.Errorf("FetchChain returned error: %v", err)
			}
			if len(contracts) != 1 {
				t.Errorf("got %d contracts, want 1", len(contracts))
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&provider.calls); got != 1 {
		t.Errorf("provider called %d times for one key, want 1", got)
	}
	if cache.Size() != 1 {
		t.Errorf("cache size = %d, want 1", cache.Size())
	}
}

func TestCacheDistinctKeysFetchSeparately(t *testing.T) {
	provider := &countingProvider{}
	cache := NewCache(provider)

	from := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 60)

	if _, err := cache.FetchChain(context.Background(), "AAPL", from, to); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if _, err := cache.FetchChain(context.Background(), "MSFT", from, to); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if _, err := cache.FetchChain(context.Background(), "AAPL", from, to.AddDate(0, 0, 30)); err != nil {
		t.Fatalf("third fetch: %v", err)
	}

	if got := atomic.LoadInt64(&provider.calls); got != 3 {
		t.Errorf("provider called %d times for three distinct keys, want 3", got)
	}
}

func TestCacheSharesErrorResult(t *testing.T) {
	wantErr := &ProviderError{Kind: ErrKindTransport, Instrument: "AAPL", Err: errors.New("boom")}
	provider := &countingProvider{err: wantErr}
	cache := NewCache(provider)

	from := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 60)

	for i := 0; i < 3; i++ {
		_, err := cache.FetchChain(context.Background(), "AAPL", from, to)
		var provErr *ProviderError
		if !errors.As(err, &provErr) {
			t.Fatalf("call %d: error %v is not a *ProviderError", i, err)
		}
	}

	// The failed fetch is cached too: the run works off one snapshot attempt.
	if got := atomic.LoadInt64(&provider.calls); got != 1 {
		t.Errorf("provider called %d times, want 1 (errors cached for the run)", got)
	}
}
