// Package cache persists in-progress exam answers per (student, course) so a
// reload or a service restart does not lose them.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Store is the byte-level key/value backend of the answer cache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Snapshot is the persisted slice of an exam session.
type Snapshot struct {
	SelectedAnswers    map[string]*string              `json:"selectedAnswers"`
	QuestionStatuses   map[string]model.QuestionStatus `json:"questionStatuses"`
	ExamStartedAt      time.Time                       `json:"examStartedAt"`
	PendingSubmissions []model.PendingSubmission       `json:"pendingSubmissions"`
	SubmittedAnswers   []model.SubmittedAnswer         `json:"submittedAnswers"`
}

// AnswerCache serializes snapshots into a Store.
type AnswerCache struct {
	store Store
	ttl   time.Duration
	log   zerolog.Logger
}

// New creates an AnswerCache. A zero ttl keeps entries until cleared.
func New(store Store, ttl time.Duration, log zerolog.Logger) *AnswerCache {
	return &AnswerCache{
		store: store,
		ttl:   ttl,
		log:   log.With().Str("component", "answer_cache").Logger(),
	}
}

// Save writes snap under the (student, course) key.
func (c *AnswerCache) Save(ctx context.Context, studentID, courseID string, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := c.store.Set(ctx, config.CacheKey.AnswerCacheKey(studentID, courseID), data, c.ttl); err != nil {
		return fmt.Errorf("save answer cache: %w", err)
	}
	return nil
}

// Restore loads the snapshot for (student, course), keeping only answers and
// statuses whose question id is in known. It returns nil when there is no
// entry. A corrupt entry is cleared and treated as absent.
func (c *AnswerCache) Restore(ctx context.Context, studentID, courseID string, known map[string]struct{}) (*Snapshot, error) {
	key := config.CacheKey.AnswerCacheKey(studentID, courseID)

	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load answer cache: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var cached Snapshot
	if err := json.Unmarshal(data, &cached); err != nil {
		c.log.Error().Err(err).Str("key", key).Msg("Corrupt answer cache, clearing")
		if delErr := c.store.Del(ctx, key); delErr != nil {
			c.log.Error().Err(delErr).Str("key", key).Msg("Failed to clear corrupt answer cache")
		}
		return nil, nil
	}

	snap := &Snapshot{
		SelectedAnswers:    make(map[string]*string, len(cached.SelectedAnswers)),
		QuestionStatuses:   make(map[string]model.QuestionStatus, len(cached.QuestionStatuses)),
		ExamStartedAt:      cached.ExamStartedAt,
		PendingSubmissions: cached.PendingSubmissions,
		SubmittedAnswers:   cached.SubmittedAnswers,
	}
	for id, ans := range cached.SelectedAnswers {
		if _, ok := known[id]; ok {
			snap.SelectedAnswers[id] = ans
		}
	}
	for id, st := range cached.QuestionStatuses {
		if _, ok := known[id]; ok {
			snap.QuestionStatuses[id] = st
		}
	}
	if snap.PendingSubmissions == nil {
		snap.PendingSubmissions = []model.PendingSubmission{}
	}
	if snap.SubmittedAnswers == nil {
		snap.SubmittedAnswers = []model.SubmittedAnswer{}
	}

	return snap, nil
}

// Clear removes the persisted entry.
func (c *AnswerCache) Clear(ctx context.Context, studentID, courseID string) error {
	key := config.CacheKey.AnswerCacheKey(studentID, courseID)
	if err := c.store.Del(ctx, key); err != nil {
		return fmt.Errorf("clear answer cache: %w", err)
	}
	c.log.Debug().Str("key", key).Msg("Answer cache cleared")
	return nil
}
