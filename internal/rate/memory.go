package rate

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	xrate "golang.org/x/time/rate"
)

// MemoryLimiter: token bucket por key (x/time/rate), limit tokens por window.
// Los buckets sin uso expiran del go-cache tras idleTTL.
type MemoryLimiter struct {
	limit   int
	window  time.Duration
	idleTTL time.Duration

	mu      sync.Mutex
	buckets *gocache.Cache
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	idle := 5 * window
	return &MemoryLimiter{
		limit:   limit,
		window:  window,
		idleTTL: idle,
		buckets: gocache.New(idle, idle),
	}
}

func (l *MemoryLimiter) bucket(key string) *xrate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.buckets.Get(key); ok {
		lim := v.(*xrate.Limiter)
		l.buckets.Set(key, lim, l.idleTTL)
		return lim
	}
	lim := xrate.NewLimiter(xrate.Every(l.window/time.Duration(l.limit)), l.limit)
	l.buckets.Set(key, lim, l.idleTTL)
	return lim
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	lim := l.bucket(key)
	now := time.Now()
	r := lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Result{Allowed: false, RetryAfter: delay}, nil
	}
	return Result{Allowed: true, Remaining: int64(lim.TokensAt(now))}, nil
}
