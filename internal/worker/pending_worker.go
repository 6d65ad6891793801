package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// PendingRetrier re-delivers pending submissions of every held session and
// reports how many are still pending.
type PendingRetrier interface {
	RetryPending(ctx context.Context) int
}

// PendingWorker periodically retries pending submissions so offline answers
// and deferred exam manifests eventually reach the backend.
type PendingWorker struct {
	retrier  PendingRetrier
	interval time.Duration
	log      zerolog.Logger
}

// NewPendingWorker creates a PendingWorker.
func NewPendingWorker(retrier PendingRetrier, interval time.Duration, log zerolog.Logger) *PendingWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &PendingWorker{
		retrier:  retrier,
		interval: interval,
		log:      log.With().Str("component", "pending_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *PendingWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain()
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			if remaining := w.retrier.RetryPending(ctx); remaining > 0 {
				w.log.Warn().Int("remaining", remaining).Msg("Pending submissions still undelivered")
			}
		}
	}
}

// drain makes one last delivery pass before shutdown.
func (w *PendingWorker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if remaining := w.retrier.RetryPending(ctx); remaining > 0 {
		w.log.Warn().Int("remaining", remaining).Msg("Shutting down with undelivered submissions; they stay in the answer cache")
	}
}
