package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// StatusBoard keeps the display status of every course a student looked at,
// one Redis hash per student keyed by course id.
type StatusBoard struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewStatusBoard creates a StatusBoard. Entries expire after ttl of inactivity.
func NewStatusBoard(rdb redis.Cmdable, ttl time.Duration) *StatusBoard {
	return &StatusBoard{rdb: rdb, ttl: ttl}
}

// Set records the status of one course.
func (b *StatusBoard) Set(ctx context.Context, studentID, courseID string, status model.ExamStatus) error {
	return b.SetAll(ctx, studentID, map[string]model.ExamStatus{courseID: status})
}

// SetAll records several statuses in one round trip.
func (b *StatusBoard) SetAll(ctx context.Context, studentID string, statuses map[string]model.ExamStatus) error {
	if len(statuses) == 0 {
		return nil
	}
	key := config.CacheKey.ExamStatusKey(studentID)

	values := make([]interface{}, 0, len(statuses)*2)
	for courseID, status := range statuses {
		values = append(values, courseID, string(status))
	}

	pipe := b.rdb.TxPipeline()
	pipe.HSet(ctx, key, values...)
	if b.ttl > 0 {
		pipe.Expire(ctx, key, b.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write exam status: %w", err)
	}
	return nil
}

// All returns the recorded statuses of a student.
func (b *StatusBoard) All(ctx context.Context, studentID string) (map[string]model.ExamStatus, error) {
	raw, err := b.rdb.HGetAll(ctx, config.CacheKey.ExamStatusKey(studentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read exam status: %w", err)
	}
	out := make(map[string]model.ExamStatus, len(raw))
	for courseID, status := range raw {
		out[courseID] = model.ExamStatus(status)
	}
	return out, nil
}
