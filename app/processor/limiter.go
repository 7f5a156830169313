package processor

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Limiter bounds concurrent LLM calls with a semaphore whose size can be
// swapped at runtime. Swapping installs a fresh semaphore for future
// acquisitions; permits already held are released against the semaphore
// they were acquired from, so in-flight work is never orphaned.
type Limiter struct {
	sem   atomic.Pointer[semaphore.Weighted]
	limit atomic.Int64
}

func NewLimiter(limit int) *Limiter {
	l := &Limiter{}
	l.SetLimit(limit)
	return l
}

// Acquire blocks until a permit is available or ctx is done. The returned
// release func must be called exactly once.
func (l *Limiter) Acquire(ctx context.Context) (release func(), err error) {
	sem := l.sem.Load()
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	return func() { sem.Release(1) }, nil
}

// SetLimit atomically replaces the semaphore. Limits below 1 are clamped.
func (l *Limiter) SetLimit(limit int) {
	if limit < 1 {
		limit = 1
	}

	l.sem.Store(semaphore.NewWeighted(int64(limit)))
	l.limit.Store(int64(limit))
}

// Limit returns the currently configured bound.
func (l *Limiter) Limit() int {
	return int(l.limit.Load())
}
