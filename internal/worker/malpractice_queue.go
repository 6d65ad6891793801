package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
)

type malpracticePayload struct {
	model.MalpracticeEvent
	// Forwarded is set once the upstream log call was attempted, so a
	// requeued event is not logged twice.
	Forwarded bool `json:"forwarded"`
}

// MalpracticeQueue buffers detected violations in Redis until the
// MalpracticeWorker forwards and persists them. It is the detector's Reporter.
type MalpracticeQueue struct {
	rdb redis.Cmdable
	log zerolog.Logger
}

// NewMalpracticeQueue creates a MalpracticeQueue.
func NewMalpracticeQueue(rdb redis.Cmdable, log zerolog.Logger) *MalpracticeQueue {
	return &MalpracticeQueue{
		rdb: rdb,
		log: log.With().Str("component", "malpractice_queue").Logger(),
	}
}

// Report enqueues one violation.
func (q *MalpracticeQueue) Report(ctx context.Context, ev *model.MalpracticeEvent) error {
	data, err := json.Marshal(&malpracticePayload{MalpracticeEvent: *ev})
	if err != nil {
		return fmt.Errorf("marshal malpractice event: %w", err)
	}
	n, err := q.rdb.RPush(ctx, config.WorkerKey.PersistMalpracticeQueue, data).Result()
	if err != nil {
		return fmt.Errorf("enqueue malpractice event: %w", err)
	}
	metrics.MalpracticeQueueDepth.Set(float64(n))
	return nil
}

func (q *MalpracticeQueue) pop(ctx context.Context, timeout time.Duration) (string, error) {
	result, err := q.rdb.BLPop(ctx, timeout, config.WorkerKey.PersistMalpracticeQueue).Result()
	if err != nil {
		return "", err
	}
	if len(result) < 2 {
		return "", redis.Nil
	}
	return result[1], nil
}

func (q *MalpracticeQueue) requeue(ctx context.Context, items []string) error {
	pipe := q.rdb.Pipeline()
	for _, item := range items {
		pipe.RPush(ctx, config.WorkerKey.PersistMalpracticeQueue, item)
	}
	_, err := pipe.Exec(ctx)
	return err
}
