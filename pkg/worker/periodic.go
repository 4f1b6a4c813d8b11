package worker

import (
	"context"
	"time"

	"github.com/jwalitptl/scheduling-api/pkg/logger"
)

// Periodic runs fn every interval until ctx is done. Errors are logged and
// the loop continues.
type Periodic struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context) error
	logger   *logger.Logger
}

func NewPeriodic(name string, interval time.Duration, fn func(ctx context.Context) error, log *logger.Logger) *Periodic {
	if log == nil {
		log = logger.Nop()
	}
	return &Periodic{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   log.With("job", name),
	}
}

func (w *Periodic) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("Starting periodic job", "interval", w.interval.String())

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping periodic job")
			return
		case <-ticker.C:
			if err := w.fn(ctx); err != nil {
				w.logger.Error(err, "Periodic job failed")
			}
		}
	}
}
