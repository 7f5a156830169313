package processor

import (
	"context"
	"testing"
	"time"
)

func tryAcquire(l *Limiter) (func(), bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	release, err := l.Acquire(ctx)
	if err != nil {
		return nil, false
	}
	return release, true
}

func TestLimiterBoundsAcquisitions(t *testing.T) {
	limiter := NewLimiter(2)

	r1, ok := tryAcquire(limiter)
	if !ok {
		t.Fatal("first acquire should succeed")
	}
	r2, ok := tryAcquire(limiter)
	if !ok {
		t.Fatal("second acquire should succeed")
	}
	if _, ok := tryAcquire(limiter); ok {
		t.Error("third acquire should block at limit 2")
	}

	r1()
	r3, ok := tryAcquire(limiter)
	if !ok {
		t.Error("acquire should succeed after a release")
	}

	r2()
	r3()
}

func TestLimiterSetLimitHonorsOldPermits(t *testing.T) {
	limiter := NewLimiter(1)

	// Hold the only permit of the original semaphore.
	releaseOld, ok := tryAcquire(limiter)
	if !ok {
		t.Fatal("acquire should succeed")
	}

	limiter.SetLimit(2)
	if limiter.Limit() != 2 {
		t.Errorf("expected limit 2, got %d", limiter.Limit())
	}

	// The new semaphore starts fresh: both permits are available even
	// though the old one is still held.
	r1, ok := tryAcquire(limiter)
	if !ok {
		t.Fatal("acquire against new semaphore should succeed")
	}
	r2, ok := tryAcquire(limiter)
	if !ok {
		t.Fatal("second acquire against new semaphore should succeed")
	}
	if _, ok := tryAcquire(limiter); ok {
		t.Error("new semaphore should be exhausted at its limit")
	}

	// Releasing the old permit must not free capacity on the new
	// semaphore.
	releaseOld()
	if _, ok := tryAcquire(limiter); ok {
		t.Error("old permit release must not affect the new semaphore")
	}

	r1()
	r2()
}

func TestLimiterClampsToOne(t *testing.T) {
	limiter := NewLimiter(0)
	if limiter.Limit() != 1 {
		t.Errorf("expected limit clamped to 1, got %d", limiter.Limit())
	}
}

func TestLimiterAcquireCancelled(t *testing.T) {
	limiter := NewLimiter(1)

	release, err := limiter.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := limiter.Acquire(ctx); err == nil {
		t.Error("expected acquire to fail on cancelled context")
	}
}
