package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stocktracker/config"
	"stocktracker/internal/model"
)

func newTestMemoryCache(ttl time.Duration) (*MemoryCache, *time.Time) {
	c := NewMemoryCache(&config.Config{Cache: config.Cache{QuoteExpiration: ttl}})
	clock := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }
	return c, &clock
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestMemoryCache(300 * time.Second)

	quote := model.Quote{Symbol: "AAPL", Price: decimal.NewFromInt(150)}
	if err := c.SetQuote(ctx, "AAPL", quote); err != nil {
		t.Fatalf("SetQuote: %v", err)
	}

	got, err := c.GetQuote(ctx, "AAPL")
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if got.Symbol != "AAPL" || !got.Price.Equal(quote.Price) {
		t.Errorf("got %+v, want stored quote", got)
	}
}

func TestMemoryCacheMiss(t *testing.T) {
	c, _ := newTestMemoryCache(300 * time.Second)

	_, err := c.GetQuote(context.Background(), "NOPE")
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("err = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestMemoryCache(300 * time.Second)

	quote := model.Quote{Symbol: "AAPL", Price: decimal.NewFromInt(150)}
	if err := c.SetQuote(ctx, "AAPL", quote); err != nil {
		t.Fatalf("SetQuote: %v", err)
	}

	// still fresh just under the TTL
	*clock = clock.Add(299 * time.Second)
	if _, err := c.GetQuote(ctx, "AAPL"); err != nil {
		t.Fatalf("GetQuote just under TTL: %v", err)
	}

	*clock = clock.Add(time.Second)
	if _, err := c.GetQuote(ctx, "AAPL"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("err = %v, want ErrCacheMiss at TTL boundary", err)
	}

	// a refreshed entry is fresh again
	if err := c.SetQuote(ctx, "AAPL", quote); err != nil {
		t.Fatalf("SetQuote refresh: %v", err)
	}
	if _, err := c.GetQuote(ctx, "AAPL"); err != nil {
		t.Errorf("GetQuote after refresh: %v", err)
	}
}

func TestMemoryCacheClear(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestMemoryCache(300 * time.Second)

	if err := c.SetQuote(ctx, "AAPL", model.Quote{Symbol: "AAPL"}); err != nil {
		t.Fatalf("SetQuote: %v", err)
	}
	if err := c.SetQuote(ctx, "MSFT", model.Quote{Symbol: "MSFT"}); err != nil {
		t.Fatalf("SetQuote: %v", err)
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	if _, err := c.GetQuote(ctx, "AAPL"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("AAPL err = %v, want ErrCacheMiss after clear", err)
	}
	if _, err := c.GetQuote(ctx, "MSFT"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("MSFT err = %v, want ErrCacheMiss after clear", err)
	}
}
