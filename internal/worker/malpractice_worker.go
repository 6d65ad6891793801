package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/messaging"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// EventStore persists malpractice events.
type EventStore interface {
	InsertBatch(ctx context.Context, events []model.MalpracticeEvent) error
	Insert(ctx context.Context, ev *model.MalpracticeEvent) error
}

// Forwarder logs a violation with the upstream backend.
type Forwarder interface {
	LogMalpractice(ctx context.Context, ev *model.MalpracticeEvent) error
}

type eventQueue interface {
	pop(ctx context.Context, timeout time.Duration) (string, error)
	requeue(ctx context.Context, items []string) error
}

// MalpracticeWorker drains the malpractice queue in batches. Each event is
// forwarded upstream once, published to the broker, and written to the
// audit table.
type MalpracticeWorker struct {
	queue     eventQueue
	store     EventStore
	forwarder Forwarder
	publisher messaging.Publisher
	log       zerolog.Logger

	requeueBackoff time.Duration
}

// NewMalpracticeWorker creates a MalpracticeWorker.
func NewMalpracticeWorker(queue *MalpracticeQueue, store EventStore, forwarder Forwarder, publisher messaging.Publisher, log zerolog.Logger) *MalpracticeWorker {
	return &MalpracticeWorker{
		queue:          queue,
		store:          store,
		forwarder:      forwarder,
		publisher:      publisher,
		log:            log.With().Str("component", "malpractice_worker").Logger(),
		requeueBackoff: 2 * time.Second,
	}
}

// Start runs the worker loop until ctx is done. Call in a goroutine.
func (w *MalpracticeWorker) Start(ctx context.Context) {
	w.log.Info().Msg("MalpracticeWorker started")

	buffer := make([]*malpracticePayload, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		raw, err := w.queue.pop(ctx, PollTimeout)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		var payload malpracticePayload
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			w.log.Error().Err(err).Str("data", raw).Msg("Discarding malformed malpractice event")
			continue
		}
		if !payload.Type.Valid() {
			w.log.Error().Str("kind", string(payload.Type)).Msg("Discarding malpractice event of unknown kind")
			continue
		}

		buffer = append(buffer, &payload)
	}
}

// flushSafe forwards the batch, then bulk inserts it, falling back to
// row-by-row inserts and finally to requeueing.
func (w *MalpracticeWorker) flushSafe(ctx context.Context, batch []*malpracticePayload) {
	w.forward(ctx, batch)

	events := make([]model.MalpracticeEvent, 0, len(batch))
	for _, p := range batch {
		events = append(events, p.MalpracticeEvent)
	}

	if err := w.store.InsertBatch(ctx, events); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
		return
	}
	w.log.Debug().Int("count", len(batch)).Msg("Malpractice events persisted")
}

// forward logs each not yet forwarded event upstream and publishes it.
// Both are best-effort.
func (w *MalpracticeWorker) forward(ctx context.Context, batch []*malpracticePayload) {
	for _, p := range batch {
		if p.Forwarded {
			continue
		}
		p.Forwarded = true

		if err := w.forwarder.LogMalpractice(ctx, &p.MalpracticeEvent); err != nil {
			w.log.Error().Err(err).
				Str("student_id", p.StudentID).
				Str("kind", string(p.Type)).
				Msg("Error logging malpractice upstream")
		}
		if err := w.publisher.PublishViolation(ctx, &p.MalpracticeEvent); err != nil {
			w.log.Warn().Err(err).Msg("Failed to publish violation event")
		}
	}
}

func (w *MalpracticeWorker) fallbackInsert(ctx context.Context, batch []*malpracticePayload) {
	requeueList := make([]*malpracticePayload, 0)

	for _, p := range batch {
		if err := w.store.Insert(ctx, &p.MalpracticeEvent); err != nil {
			w.log.Error().Err(err).Str("student_id", p.StudentID).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, p)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *MalpracticeWorker) requeue(ctx context.Context, items []*malpracticePayload) {
	raw := make([]string, 0, len(items))
	for _, p := range items {
		data, _ := json.Marshal(p)
		raw = append(raw, string(data))
	}

	if err := w.queue.requeue(ctx, raw); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue malpractice events. Data loss occurred.")
		return
	}
	metrics.MalpracticeQueueDepth.Add(float64(len(items)))
	w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	time.Sleep(w.requeueBackoff)
}

func (w *MalpracticeWorker) shutdown(buffer []*malpracticePayload) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
