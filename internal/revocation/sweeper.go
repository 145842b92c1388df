package revocation

import (
	"context"
	"time"

	"github.com/dropDatabas3/ironlog/internal/cache"
	"github.com/dropDatabas3/ironlog/internal/metrics"
	"github.com/dropDatabas3/ironlog/internal/observability/logger"
)

// Sweeper purga periódicamente las entradas del backing in-process que
// superan MaxAge, aunque su TTL diga otra cosa. Con redis no hace nada: las
// keys expiran solas.
type Sweeper struct {
	Backing  cache.Client
	Interval time.Duration
	MaxAge   time.Duration
}

func NewSweeper(backing cache.Client, interval, maxAge time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &Sweeper{Backing: backing, Interval: interval, MaxAge: maxAge}
}

// SweepOnce corre una pasada y devuelve cuántas entradas purgó.
func (s *Sweeper) SweepOnce() int {
	p, ok := s.Backing.(cache.Purger)
	if !ok {
		return 0
	}
	n := p.PurgeOlderThan(KeyPrefix, s.MaxAge)
	if n > 0 {
		metrics.RevocationSweeps.Add(float64(n))
	}
	return n
}

// Run bloquea hasta que ctx se cancela.
func (s *Sweeper) Run(ctx context.Context) {
	if _, ok := s.Backing.(cache.Purger); !ok {
		return
	}
	log := logger.From(ctx).With(logger.Component("revocation.sweeper"))
	t := time.NewTicker(s.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.SweepOnce(); n > 0 {
				log.Info("purged revocation entries", logger.Count(n))
			}
		}
	}
}
