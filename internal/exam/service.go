package exam

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	syncx "github.com/btc-academy/exam-service/internal/sync"
)

const (
	// DefaultSampleSize is how many bank questions one attempt draws.
	DefaultSampleSize = 5
	// DefaultPassRatio is the fraction of correct answers needed to pass.
	// The pass check uses this against the unrounded ratio; only the reported
	// score is rounded.
	DefaultPassRatio = 0.8
)

// CertNotifier hands a finalized, passing attempt to the external
// proof/timestamping pipeline. Implemented by certsync.Syncer.
type CertNotifier interface {
	SyncAttempt(ctx context.Context, attemptID string) error
}

// Service drives the exam pipeline: issuance, submission, grading, and
// completion propagation. All dependencies are injected; there is no
// package-level state.
type Service struct {
	store      Store
	events     syncx.Recorder
	certs      CertNotifier
	sampleSize int
	passRatio  float64
	now        func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

type Option func(*Service)

func WithSampleSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sampleSize = n
		}
	}
}

func WithPassRatio(r float64) Option {
	return func(s *Service) {
		if r > 0 && r <= 1 {
			s.passRatio = r
		}
	}
}

// WithRand injects the randomness source used for sampling and choice
// shuffling. Tests pass a seeded source for determinism.
func WithRand(r *rand.Rand) Option { return func(s *Service) { s.rnd = r } }

func WithEvents(rec syncx.Recorder) Option { return func(s *Service) { s.events = rec } }

func WithCertSync(c CertNotifier) Option { return func(s *Service) { s.certs = c } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:      store,
		sampleSize: DefaultSampleSize,
		passRatio:  DefaultPassRatio,
		now:        time.Now,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// StartAttempt creates a new attempt for user+course: samples questions from
// the bank, shuffles each question's choices, persists the attempt with its
// selections in one transaction, and returns the answer-redacted payload.
// A new attempt can always be started; retakes are new attempts.
func (s *Service) StartAttempt(ctx context.Context, userID, courseID, chapterID, language string) (*StartedAttempt, error) {
	bank, err := s.store.QuestionsForCourse(ctx, courseID, language)
	if err != nil {
		return nil, err
	}
	if len(bank) == 0 {
		return nil, ErrExamNotTranslated
	}

	picked := s.sampleQuestions(bank)

	a := Attempt{
		ID:        uuid.NewString(),
		UserID:    userID,
		CourseID:  courseID,
		ChapterID: chapterID,
		Language:  language,
		StartedAt: s.now(),
	}

	sels := make([]Selection, 0, len(picked))
	client := make([]ClientQuestion, 0, len(picked))
	for _, q := range picked {
		choices, correctPos := s.shuffleChoices(q)
		sels = append(sels, Selection{
			ID:              uuid.NewString(),
			AttemptID:       a.ID,
			QuestionID:      q.ID,
			CorrectPosition: correctPos,
		})
		client = append(client, ClientQuestion{
			QuestionID: q.ID,
			Text:       q.Text,
			Choices:    choices,
		})
	}

	if err := s.store.CreateAttempt(ctx, a, sels); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	s.record(ctx, syncx.EventAttemptStarted, a.ID,
		fmt.Sprintf(`{"user_id":%q,"course_id":%q,"language":%q}`, userID, courseID, language))

	return &StartedAttempt{AttemptID: a.ID, Questions: client}, nil
}

// SubmitAnswers validates the submitted set against the issued selections,
// writes all answers as one batch, and grades the attempt in the same request.
// Submitting an already-finalized attempt returns the stored result, so client
// retries after a timeout are safe.
func (s *Service) SubmitAnswers(ctx context.Context, userID, attemptID string, answers []SubmittedAnswer) (*GradeResult, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, ErrAttemptForbidden
	}
	if a.Finalized {
		return storedResult(a)
	}

	sels, err := s.store.SelectionsForAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	rows, err := matchSubmission(sels, answers)
	if err != nil {
		return nil, err
	}

	if err := s.store.SaveAnswers(ctx, attemptID, rows); err != nil {
		return nil, fmt.Errorf("save answers: %w", err)
	}

	return s.gradeAttempt(ctx, a)
}

// gradeAttempt computes the score from the stored answers and finalizes the
// attempt exactly once. On a pass, the chapter completion is upserted in the
// same transaction as the finalize, and the certificate sync is kicked off
// fire-and-forget.
func (s *Service) gradeAttempt(ctx context.Context, a Attempt) (*GradeResult, error) {
	rows, err := s.store.AnswersForAttempt(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNothingToGrade
	}

	correct := 0
	for _, r := range rows {
		if r.ChosenPosition == r.CorrectPosition {
			correct++
		}
	}
	total := len(rows)
	score := int(math.Round(float64(correct) / float64(total) * 100))
	succeeded := float64(correct) >= float64(total)*s.passRatio

	finishedAt := s.now()
	var completion *ChapterCompletion
	if succeeded {
		completion = &ChapterCompletion{
			UserID:      a.UserID,
			CourseID:    a.CourseID,
			ChapterID:   a.ChapterID,
			CompletedAt: finishedAt,
		}
	}

	updated, err := s.store.FinalizeAttempt(ctx, a.ID, score, succeeded, finishedAt, completion)
	if err != nil {
		return nil, fmt.Errorf("finalize attempt: %w", err)
	}
	if !updated {
		// A concurrent submit won the finalize; its stored result stands.
		stored, err := s.store.GetAttempt(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		return storedResult(stored)
	}

	s.record(ctx, syncx.EventAttemptGraded, a.ID,
		fmt.Sprintf(`{"score":%d,"succeeded":%t}`, score, succeeded))
	if succeeded {
		s.record(ctx, syncx.EventChapterCompleted, a.ID,
			fmt.Sprintf(`{"user_id":%q,"course_id":%q,"chapter_id":%q}`, a.UserID, a.CourseID, a.ChapterID))
		if s.certs != nil {
			go func(id string) {
				_ = s.certs.SyncAttempt(context.Background(), id)
			}(a.ID)
		}
	}

	return &GradeResult{Score: score, Succeeded: succeeded}, nil
}

// LatestResult returns the newest attempt for user+course, or
// ErrAttemptNotFound when the user has never taken the exam.
func (s *Service) LatestResult(ctx context.Context, userID, courseID string) (Attempt, error) {
	return s.store.LatestAttempt(ctx, userID, courseID)
}

func (s *Service) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	return s.store.ListAttempts(ctx, opts)
}

// sampleQuestions draws up to sampleSize questions without replacement.
// Shuffle-then-prefix keeps the draw uniform (Fisher-Yates).
func (s *Service) sampleQuestions(bank []QuizQuestion) []QuizQuestion {
	pool := make([]QuizQuestion, len(bank))
	copy(pool, bank)
	s.mu.Lock()
	s.rnd.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	s.mu.Unlock()
	n := s.sampleSize
	if n > len(pool) {
		n = len(pool)
	}
	return pool[:n]
}

// shuffleChoices returns the question's choices in randomized display order
// and the slot the correct answer landed in. The slot is persisted on the
// selection, never derived again from the shuffle.
func (s *Service) shuffleChoices(q QuizQuestion) ([]string, int) {
	choices := make([]string, 0, 1+len(q.WrongAnswers))
	choices = append(choices, q.CorrectAnswer)
	choices = append(choices, q.WrongAnswers...)

	correctPos := 0
	s.mu.Lock()
	s.rnd.Shuffle(len(choices), func(i, j int) {
		choices[i], choices[j] = choices[j], choices[i]
		switch correctPos {
		case i:
			correctPos = j
		case j:
			correctPos = i
		}
	})
	s.mu.Unlock()
	return choices, correctPos
}

// matchSubmission checks set integrity: same cardinality, same question ids,
// no duplicates. Returns the answer rows ready for the batch write.
func matchSubmission(sels []Selection, answers []SubmittedAnswer) ([]AnswerRow, error) {
	if len(answers) != len(sels) {
		return nil, ErrIncompleteSubmission
	}
	byQuestion := make(map[string]Selection, len(sels))
	for _, sel := range sels {
		byQuestion[sel.QuestionID] = sel
	}
	seen := make(map[string]bool, len(answers))
	rows := make([]AnswerRow, 0, len(answers))
	for _, ans := range answers {
		sel, ok := byQuestion[ans.QuestionID]
		if !ok || seen[ans.QuestionID] {
			return nil, ErrIncompleteSubmission
		}
		seen[ans.QuestionID] = true
		rows = append(rows, AnswerRow{
			SelectionID:     sel.ID,
			QuestionID:      sel.QuestionID,
			CorrectPosition: sel.CorrectPosition,
			ChosenPosition:  ans.ChosenIndex,
		})
	}
	return rows, nil
}

func storedResult(a Attempt) (*GradeResult, error) {
	if a.Score == nil {
		return nil, fmt.Errorf("attempt %s finalized without score", a.ID)
	}
	return &GradeResult{Score: *a.Score, Succeeded: a.Succeeded}, nil
}

// record appends to the event log best-effort; bookkeeping never fails a
// request.
func (s *Service) record(ctx context.Context, typ, key, data string) {
	if s.events == nil {
		return
	}
	_ = s.events.Append(ctx, syncx.Event{Type: typ, Key: key, DataJSON: data})
}
