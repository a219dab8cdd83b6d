package exam

import (
	"context"
	"time"
)

// Store is the persistence boundary of the exam pipeline. Implementations:
// SQLStore (postgres/sqlite) and MemoryStore (tests, offline demos).
type Store interface {
	// Question bank (read-only from the pipeline's perspective; PutQuestions
	// exists for seeding and admin imports).
	PutQuestions(ctx context.Context, qs []QuizQuestion) error
	QuestionsForCourse(ctx context.Context, courseID, language string) ([]QuizQuestion, error)

	// Attempt issuance: the attempt row and its selections become visible
	// together or not at all.
	CreateAttempt(ctx context.Context, a Attempt, sels []Selection) error
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	SelectionsForAttempt(ctx context.Context, attemptID string) ([]Selection, error)

	// Answer submission: all rows in one batch. Re-writing an existing
	// selection's answer is a no-op, not an overwrite.
	SaveAnswers(ctx context.Context, attemptID string, answers []AnswerRow) error
	AnswersForAttempt(ctx context.Context, attemptID string) ([]AnswerRow, error)

	// FinalizeAttempt sets finalized/score/succeeded exactly once. Returns
	// false when the attempt was already finalized (the update is conditional
	// on finalized=false). When completion is non-nil it is upserted in the
	// same transaction, so a stored pass never lacks its completion row.
	FinalizeAttempt(ctx context.Context, attemptID string, score int, succeeded bool, finishedAt time.Time, completion *ChapterCompletion) (bool, error)

	// Result lookups for the client UI.
	LatestAttempt(ctx context.Context, userID, courseID string) (Attempt, error)
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)

	HasCompletion(ctx context.Context, userID, courseID, chapterID string) (bool, error)
}
