package util

import (
	"context"
	"sync"
	"time"
)

// Pacer enforces a minimum interval after a marked operation. The venue
// rate-limits back-to-back order placements, so the bracket workflow marks
// the take-profit submission and waits before submitting the stop-loss.
type Pacer struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

// NewPacer creates a Pacer with the given minimum interval.
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{interval: interval}
}

// Mark stamps the completion of the operation the next Wait paces against.
func (p *Pacer) Mark() {
	p.mu.Lock()
	p.last = time.Now()
	p.mu.Unlock()
}

// Wait blocks until the interval has elapsed since the last Mark, or until
// the context is cancelled. Without a preceding Mark it sleeps the full
// interval.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	sleep := p.interval
	if !p.last.IsZero() {
		if elapsed := time.Since(p.last); elapsed < p.interval {
			sleep = p.interval - elapsed
		} else {
			sleep = 0
		}
	}
	p.mu.Unlock()

	if sleep <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(sleep):
		return nil
	}
}
