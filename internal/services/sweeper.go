package services

import (
	"context"
	"time"

	"github.com/stwalsh4118/daysteward/internal/logger"
)

// Sweepable collects tax on every held parcel.
type Sweepable interface {
	Sweep(ctx context.Context) (int, error)
}

// Sweeper collects tax on a fixed interval so that parcels whose owners never
// interact are still foreclosed once their deposits run out.
type Sweeper struct {
	target   Sweepable
	interval time.Duration
	log      *logger.Logger
}

// NewSweeper creates a sweeper. A non-positive interval disables it.
func NewSweeper(target Sweepable, interval time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{target: target, interval: interval, log: log}
}

// Run sweeps every interval until ctx is done. Sweep failures are logged and
// retried on the next tick.
func (w *Sweeper) Run(ctx context.Context) error {
	if w.interval <= 0 {
		w.log.Info("Sweeper disabled", nil)
		<-ctx.Done()
		return nil
	}

	w.log.Info("Sweeper started", map[string]interface{}{
		"interval": w.interval.String(),
	})

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Sweeper stopped", nil)
			return nil
		case <-ticker.C:
			if _, err := w.target.Sweep(ctx); err != nil {
				if ctx.Err() != nil {
					continue
				}
				w.log.Error("Sweep failed", err, nil)
			}
		}
	}
}
