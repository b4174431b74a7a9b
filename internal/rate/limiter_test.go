package rate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return New(rdb, "arl", cfg), mr
}

func TestCheckAndIncrementBudget(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{Window: 15 * time.Minute, MaxAttempts: 5})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := limiter.CheckAndIncrement(ctx, "alice@acme.test"); err != nil {
			t.Fatalf("attempt %d unexpectedly limited: %v", i+1, err)
		}
	}

	if err := limiter.CheckAndIncrement(ctx, "alice@acme.test"); !errors.Is(err, ErrLimited) {
		t.Fatalf("6th attempt: got %v, want ErrLimited", err)
	}

	// Unrelated key keeps its own budget.
	if err := limiter.CheckAndIncrement(ctx, "bob@acme.test"); err != nil {
		t.Fatalf("distinct key limited: %v", err)
	}
}

func TestWindowExpiryResetsCounter(t *testing.T) {
	limiter, mr := newTestLimiter(t, Config{Window: 15 * time.Minute, MaxAttempts: 1})
	ctx := context.Background()

	if err := limiter.CheckAndIncrement(ctx, "k"); err != nil {
		t.Fatalf("first attempt limited: %v", err)
	}
	if err := limiter.CheckAndIncrement(ctx, "k"); !errors.Is(err, ErrLimited) {
		t.Fatalf("second attempt: got %v, want ErrLimited", err)
	}

	mr.FastForward(15*time.Minute + time.Second)

	if err := limiter.CheckAndIncrement(ctx, "k"); err != nil {
		t.Fatalf("attempt after window expiry limited: %v", err)
	}
}

func TestConcurrentIncrementsAllCounted(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{Window: time.Minute, MaxAttempts: 1000})
	ctx := context.Background()

	const workers = 32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_ = limiter.CheckAndIncrement(ctx, "shared")
		}()
	}
	wg.Wait()

	count, err := limiter.Attempts(ctx, "shared")
	if err != nil {
		t.Fatalf("attempts read failed: %v", err)
	}
	if count != workers {
		t.Fatalf("counted %d attempts, want %d", count, workers)
	}
}

func TestRedisOutageSurfacesUnavailable(t *testing.T) {
	limiter, mr := newTestLimiter(t, Config{})
	mr.Close()

	err := limiter.CheckAndIncrement(context.Background(), "k")
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("got %v, want ErrRedisUnavailable", err)
	}
}

func TestResetClearsCounter(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{MaxAttempts: 1})
	ctx := context.Background()

	_ = limiter.CheckAndIncrement(ctx, "k")
	if err := limiter.Reset(ctx, "k"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if err := limiter.CheckAndIncrement(ctx, "k"); err != nil {
		t.Fatalf("attempt after reset limited: %v", err)
	}
}
