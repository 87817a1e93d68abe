package dispatch

import (
	"context"
	"log"
	"time"
)

// Sweeper bounds how long a job may wait unclaimed. It only ever cancels
// through the pending-only conditional update, so running it concurrently
// with itself or with accepts is safe.
type Sweeper struct {
	svc      *Service
	interval time.Duration
}

func NewSweeper(svc *Service, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Sweeper{svc: svc, interval: interval}
}

// RunOnce performs a single sweep and returns the number of jobs retired.
func (w *Sweeper) RunOnce(ctx context.Context) (int, error) {
	return w.svc.SweepExpired(ctx)
}

// Run sweeps on the configured interval until ctx is cancelled.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.Printf("sweeper started interval=%s window=%s", w.interval, w.svc.AcceptWindow())

	for {
		select {
		case <-ctx.Done():
			log.Printf("sweeper shutting down")
			return
		case <-ticker.C:
			n, err := w.RunOnce(ctx)
			if err != nil {
				log.Printf("sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("sweep retired=%d", n)
			}
		}
	}
}
