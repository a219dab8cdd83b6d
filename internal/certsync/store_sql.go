package certsync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLStore reads graded attempts and tracks sync status in cert_sync_status.
type SQLStore struct{ db *sql.DB }

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) GetGradedAttempt(ctx context.Context, id string) (GradedAttempt, error) {
	var (
		at         GradedAttempt
		finishedAt sql.NullInt64
		score      sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, course_id, chapter_id, finished_at, score, succeeded
		FROM exam_attempts WHERE id=$1`, id).
		Scan(&at.ID, &at.UserID, &at.CourseID, &at.ChapterID, &finishedAt, &score, &at.Succeeded)
	if errors.Is(err, sql.ErrNoRows) {
		return GradedAttempt{}, fmt.Errorf("attempt %q not found", id)
	}
	if err != nil {
		return GradedAttempt{}, fmt.Errorf("load attempt: %w", err)
	}
	if finishedAt.Valid {
		t := time.Unix(finishedAt.Int64, 0).UTC()
		at.FinishedAt = &t
	}
	if score.Valid {
		at.Score = int(score.Int64)
	}
	return at, nil
}

func (s *SQLStore) MarkSyncPending(ctx context.Context, attemptID string) error {
	return s.mark(ctx, attemptID, "pending", "", false)
}

func (s *SQLStore) MarkSyncOK(ctx context.Context, attemptID string) error {
	return s.mark(ctx, attemptID, "ok", "", false)
}

func (s *SQLStore) MarkSyncFailed(ctx context.Context, attemptID, lastErr string) error {
	return s.mark(ctx, attemptID, "failed", lastErr, true)
}

func (s *SQLStore) mark(ctx context.Context, attemptID, status, lastErr string, bumpRetries bool) error {
	bump := 0
	if bumpRetries {
		bump = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cert_sync_status (attempt_id, status, last_error, retries, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (attempt_id) DO UPDATE SET
			status=EXCLUDED.status,
			last_error=EXCLUDED.last_error,
			retries=cert_sync_status.retries+$4,
			updated_at=EXCLUDED.updated_at`,
		attemptID, status, lastErr, bump, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("mark sync %s: %w", status, err)
	}
	return nil
}
