package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// AttemptRepository stores how each (student, course) exam attempt ended.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Record upserts the attempt of a (student, course) pair.
func (r *AttemptRepository) Record(ctx context.Context, a *model.Attempt) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO exam_attempts (student_id, course_id, outcome, is_malpractice, delivered, results, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (student_id, course_id) DO UPDATE
		 SET outcome = EXCLUDED.outcome,
		     is_malpractice = EXCLUDED.is_malpractice,
		     delivered = EXCLUDED.delivered,
		     results = EXCLUDED.results,
		     finished_at = EXCLUDED.finished_at,
		     updated_at = NOW()
		 RETURNING id`,
		a.StudentID, a.CourseID, a.Outcome, a.IsMalpractice, a.Delivered, nullJSON(a.Results), a.StartedAt, a.FinishedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// MarkDelivered flags a deferred attempt as delivered and stores its results.
func (r *AttemptRepository) MarkDelivered(ctx context.Context, studentID, courseID string, results json.RawMessage) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET delivered = TRUE, results = COALESCE($3, results), updated_at = NOW()
		 WHERE student_id = $1 AND course_id = $2`,
		studentID, courseID, nullJSON(results))
	if err != nil {
		return fmt.Errorf("mark attempt delivered: %w", err)
	}
	return nil
}

// OutcomesByStudent returns the recorded outcome per course of a student.
func (r *AttemptRepository) OutcomesByStudent(ctx context.Context, studentID string) (map[string]model.Outcome, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT course_id, outcome FROM exam_attempts WHERE student_id = $1`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	outcomes := make(map[string]model.Outcome)
	for rows.Next() {
		var courseID string
		var outcome model.Outcome
		if err := rows.Scan(&courseID, &outcome); err != nil {
			return nil, err
		}
		outcomes[courseID] = outcome
	}
	return outcomes, rows.Err()
}

// ListUndelivered returns attempts whose final submission never reached the
// backend.
func (r *AttemptRepository) ListUndelivered(ctx context.Context) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, student_id, course_id, outcome, is_malpractice, delivered, results, started_at, finished_at
		 FROM exam_attempts
		 WHERE delivered = FALSE
		 ORDER BY finished_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		var results []byte
		if err := rows.Scan(&a.ID, &a.StudentID, &a.CourseID, &a.Outcome, &a.IsMalpractice,
			&a.Delivered, &results, &a.StartedAt, &a.FinishedAt); err != nil {
			return nil, err
		}
		a.Results = results
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
