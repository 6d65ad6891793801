package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// MalpracticeRepository persists the malpractice audit trail.
type MalpracticeRepository struct {
	pool *pgxpool.Pool
}

// NewMalpracticeRepository creates a new MalpracticeRepository.
func NewMalpracticeRepository(pool *pgxpool.Pool) *MalpracticeRepository {
	return &MalpracticeRepository{pool: pool}
}

// InsertBatch bulk-loads events with COPY.
func (r *MalpracticeRepository) InsertBatch(ctx context.Context, events []model.MalpracticeEvent) error {
	rows := make([][]any, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []any{ev.StudentID, ev.CourseID, string(ev.Type), ev.RecordedAt})
	}

	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"malpractice_events"},
		[]string{"student_id", "course_id", "kind", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// Insert writes a single event.
func (r *MalpracticeRepository) Insert(ctx context.Context, ev *model.MalpracticeEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO malpractice_events (student_id, course_id, kind, recorded_at)
		 VALUES ($1, $2, $3, $4)`,
		ev.StudentID, ev.CourseID, string(ev.Type), ev.RecordedAt)
	return err
}
