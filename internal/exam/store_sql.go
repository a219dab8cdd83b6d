package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLStore implements Store over database/sql. Works against both the pgx
// and modernc sqlite drivers; the SQL sticks to what both support
// ($N placeholders, ON CONFLICT).
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) PutQuestions(ctx context.Context, qs []QuizQuestion) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put questions: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range qs {
		wrong, err := json.Marshal(q.WrongAnswers)
		if err != nil {
			return fmt.Errorf("marshal wrong answers: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO quiz_questions (id, course_id, language, text, correct_answer, wrong_answers_json, explanation)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (id) DO UPDATE SET
				course_id=EXCLUDED.course_id,
				language=EXCLUDED.language,
				text=EXCLUDED.text,
				correct_answer=EXCLUDED.correct_answer,
				wrong_answers_json=EXCLUDED.wrong_answers_json,
				explanation=EXCLUDED.explanation`,
			q.ID, q.CourseID, q.Language, q.Text, q.CorrectAnswer, string(wrong), q.Explanation); err != nil {
			return fmt.Errorf("upsert question %s: %w", q.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) QuestionsForCourse(ctx context.Context, courseID, language string) ([]QuizQuestion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, course_id, language, text, correct_answer, wrong_answers_json, explanation
		FROM quiz_questions
		WHERE course_id=$1 AND language=$2
		ORDER BY id`, courseID, language)
	if err != nil {
		return nil, fmt.Errorf("query question bank: %w", err)
	}
	defer rows.Close()

	var out []QuizQuestion
	for rows.Next() {
		var q QuizQuestion
		var wrongJSON string
		if err := rows.Scan(&q.ID, &q.CourseID, &q.Language, &q.Text, &q.CorrectAnswer, &wrongJSON, &q.Explanation); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal([]byte(wrongJSON), &q.WrongAnswers); err != nil {
			return nil, fmt.Errorf("decode wrong answers for %s: %w", q.ID, err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateAttempt(ctx context.Context, a Attempt, sels []Selection) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create attempt: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO exam_attempts (id, user_id, course_id, chapter_id, language, started_at, finalized, succeeded)
		VALUES ($1,$2,$3,$4,$5,$6,FALSE,FALSE)`,
		a.ID, a.UserID, a.CourseID, a.ChapterID, a.Language, a.StartedAt.Unix()); err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	for _, sel := range sels {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO exam_question_selections (id, attempt_id, question_id, correct_position)
			VALUES ($1,$2,$3,$4)`,
			sel.ID, sel.AttemptID, sel.QuestionID, sel.CorrectPosition); err != nil {
			return fmt.Errorf("insert selection: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	return scanAttempt(s.db.QueryRowContext(ctx, `
		SELECT id, user_id, course_id, chapter_id, language, started_at, finished_at, finalized, score, succeeded
		FROM exam_attempts WHERE id=$1`, id))
}

func (s *SQLStore) SelectionsForAttempt(ctx context.Context, attemptID string) ([]Selection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, attempt_id, question_id, correct_position
		FROM exam_question_selections WHERE attempt_id=$1`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("query selections: %w", err)
	}
	defer rows.Close()

	var out []Selection
	for rows.Next() {
		var sel Selection
		if err := rows.Scan(&sel.ID, &sel.AttemptID, &sel.QuestionID, &sel.CorrectPosition); err != nil {
			return nil, fmt.Errorf("scan selection: %w", err)
		}
		out = append(out, sel)
	}
	return out, rows.Err()
}

func (s *SQLStore) SaveAnswers(ctx context.Context, attemptID string, answers []AnswerRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save answers: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().Unix()
	for _, ans := range answers {
		// First write wins; an answer is never replaced once stored.
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO exam_answers (selection_id, chosen_position, answered_at)
			VALUES ($1,$2,$3)
			ON CONFLICT (selection_id) DO NOTHING`,
			ans.SelectionID, ans.ChosenPosition, now); err != nil {
			return fmt.Errorf("insert answer: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) AnswersForAttempt(ctx context.Context, attemptID string) ([]AnswerRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sel.id, sel.question_id, sel.correct_position, ans.chosen_position
		FROM exam_question_selections sel
		JOIN exam_answers ans ON ans.selection_id = sel.id
		WHERE sel.attempt_id=$1`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	var out []AnswerRow
	for rows.Next() {
		var r AnswerRow
		if err := rows.Scan(&r.SelectionID, &r.QuestionID, &r.CorrectPosition, &r.ChosenPosition); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) FinalizeAttempt(ctx context.Context, attemptID string, score int, succeeded bool, finishedAt time.Time, completion *ChapterCompletion) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin finalize: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE exam_attempts
		SET finalized=TRUE, finished_at=$2, score=$3, succeeded=$4
		WHERE id=$1 AND finalized=FALSE`,
		attemptID, finishedAt.Unix(), score, succeeded)
	if err != nil {
		return false, fmt.Errorf("finalize update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("finalize rows affected: %w", err)
	}
	if n == 0 {
		// Already finalized by a racing submit; nothing else to do.
		return false, tx.Commit()
	}

	if completion != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chapter_completions (user_id, course_id, chapter_id, completed_at)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (user_id, course_id, chapter_id) DO NOTHING`,
			completion.UserID, completion.CourseID, completion.ChapterID, completion.CompletedAt.Unix()); err != nil {
			return false, fmt.Errorf("upsert completion: %w", err)
		}
	}
	return true, tx.Commit()
}

func (s *SQLStore) LatestAttempt(ctx context.Context, userID, courseID string) (Attempt, error) {
	return scanAttempt(s.db.QueryRowContext(ctx, `
		SELECT id, user_id, course_id, chapter_id, language, started_at, finished_at, finalized, score, succeeded
		FROM exam_attempts
		WHERE user_id=$1 AND course_id=$2
		ORDER BY started_at DESC, id DESC
		LIMIT 1`, userID, courseID))
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, course_id, chapter_id, language, started_at, finished_at, finalized, score, succeeded
		FROM exam_attempts
		WHERE ($1 = '' OR course_id = $1)
		  AND ($2 = '' OR user_id = $2)
		ORDER BY started_at DESC, id DESC
		LIMIT $3 OFFSET $4`,
		opts.CourseID, opts.UserID, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	out := make([]Attempt, 0)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) HasCompletion(ctx context.Context, userID, courseID, chapterID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM chapter_completions
		WHERE user_id=$1 AND course_id=$2 AND chapter_id=$3`,
		userID, courseID, chapterID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query completion: %w", err)
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (Attempt, error) {
	var (
		a          Attempt
		startedAt  int64
		finishedAt sql.NullInt64
		score      sql.NullInt64
	)
	err := row.Scan(&a.ID, &a.UserID, &a.CourseID, &a.ChapterID, &a.Language,
		&startedAt, &finishedAt, &a.Finalized, &score, &a.Succeeded)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrAttemptNotFound
	}
	if err != nil {
		return Attempt{}, fmt.Errorf("scan attempt: %w", err)
	}
	a.StartedAt = time.Unix(startedAt, 0).UTC()
	if finishedAt.Valid {
		t := time.Unix(finishedAt.Int64, 0).UTC()
		a.FinishedAt = &t
	}
	if score.Valid {
		v := int(score.Int64)
		a.Score = &v
	}
	return a, nil
}
