package exam_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/btc-academy/exam-service/internal/exam"
	syncx "github.com/btc-academy/exam-service/internal/sync"
)

/* ------------------------------ test fixtures ------------------------------ */

type recordedEvents struct {
	mu     sync.Mutex
	events []syncx.Event
}

func (r *recordedEvents) Append(_ context.Context, e syncx.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordedEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeNotifier struct{ ch chan string }

func (n *fakeNotifier) SyncAttempt(_ context.Context, attemptID string) error {
	n.ch <- attemptID
	return nil
}

func seedBank(t *testing.T, store exam.Store, courseID, language string, n int) []exam.QuizQuestion {
	t.Helper()
	qs := make([]exam.QuizQuestion, 0, n)
	for i := 0; i < n; i++ {
		qs = append(qs, exam.QuizQuestion{
			ID:            fmt.Sprintf("%s-%s-q%02d", courseID, language, i),
			CourseID:      courseID,
			Language:      language,
			Text:          fmt.Sprintf("Question %d?", i),
			CorrectAnswer: fmt.Sprintf("right-%d", i),
			WrongAnswers:  []string{fmt.Sprintf("wrong-%d-a", i), fmt.Sprintf("wrong-%d-b", i), fmt.Sprintf("wrong-%d-c", i)},
			Explanation:   "because",
		})
	}
	if err := store.PutQuestions(context.Background(), qs); err != nil {
		t.Fatalf("seed bank: %v", err)
	}
	return qs
}

func newTestService(t *testing.T, store exam.Store, opts ...exam.Option) *exam.Service {
	t.Helper()
	base := []exam.Option{exam.WithRand(rand.New(rand.NewSource(42)))}
	return exam.NewService(store, append(base, opts...)...)
}

// answersFor builds a submission with exactly correctCount correct answers,
// reading the withheld correct positions through the store.
func answersFor(t *testing.T, store exam.Store, attemptID string, correctCount int) []exam.SubmittedAnswer {
	t.Helper()
	sels, err := store.SelectionsForAttempt(context.Background(), attemptID)
	if err != nil {
		t.Fatalf("selections: %v", err)
	}
	out := make([]exam.SubmittedAnswer, 0, len(sels))
	for i, sel := range sels {
		chosen := sel.CorrectPosition
		if i >= correctCount {
			chosen = (sel.CorrectPosition + 1) % 4
		}
		out = append(out, exam.SubmittedAnswer{QuestionID: sel.QuestionID, ChosenIndex: chosen})
	}
	return out
}

/* --------------------------------- issuance -------------------------------- */

func TestStartAttempt_RedactsAnswerKey(t *testing.T) {
	store := exam.NewMemoryStore()
	bank := seedBank(t, store, "btc101", "en", 5)
	svc := newTestService(t, store)

	started, err := svc.StartAttempt(context.Background(), "u1", "btc101", "ch-exam", "en")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(started.Questions) != 5 {
		t.Fatalf("expected 5 questions, got %d", len(started.Questions))
	}

	byID := map[string]exam.QuizQuestion{}
	for _, q := range bank {
		byID[q.ID] = q
	}
	correctAtZero := 0
	for _, cq := range started.Questions {
		src, ok := byID[cq.QuestionID]
		if !ok {
			t.Fatalf("question %s not from the bank", cq.QuestionID)
		}
		want := map[string]bool{src.CorrectAnswer: true}
		for _, wrong := range src.WrongAnswers {
			want[wrong] = true
		}
		if len(cq.Choices) != len(want) {
			t.Fatalf("choices must be correct+wrong exactly: got %v", cq.Choices)
		}
		for _, c := range cq.Choices {
			if !want[c] {
				t.Fatalf("unexpected choice %q", c)
			}
		}
		if cq.Choices[0] == src.CorrectAnswer {
			correctAtZero++
		}
	}
	// The shuffled payload must not encode correctness positionally.
	if correctAtZero == len(started.Questions) {
		t.Fatalf("correct answer always in slot 0; ordering leaks the key")
	}
}

func TestStartAttempt_NotTranslated(t *testing.T) {
	store := exam.NewMemoryStore()
	seedBank(t, store, "btc101", "en", 5)
	svc := newTestService(t, store)

	_, err := svc.StartAttempt(context.Background(), "u1", "btc101", "ch-exam", "fi")
	if !errors.Is(err, exam.ErrExamNotTranslated) {
		t.Fatalf("expected ErrExamNotTranslated, got %v", err)
	}
}

func TestStartAttempt_SamplesWithoutRepeats(t *testing.T) {
	store := exam.NewMemoryStore()
	seedBank(t, store, "btc101", "en", 12)
	svc := newTestService(t, store)

	started, err := svc.StartAttempt(context.Background(), "u1", "btc101", "ch-exam", "en")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(started.Questions) != 5 {
		t.Fatalf("expected sample of 5 from a bank of 12, got %d", len(started.Questions))
	}
	seen := map[string]bool{}
	for _, q := range started.Questions {
		if seen[q.QuestionID] {
			t.Fatalf("question %s issued twice in one attempt", q.QuestionID)
		}
		seen[q.QuestionID] = true
	}

	sels, err := store.SelectionsForAttempt(context.Background(), started.AttemptID)
	if err != nil {
		t.Fatalf("selections: %v", err)
	}
	if len(sels) != len(started.Questions) {
		t.Fatalf("selection rows (%d) must match issued questions (%d)", len(sels), len(started.Questions))
	}
}

func TestStartAttempt_SmallBankUsesWholeBank(t *testing.T) {
	store := exam.NewMemoryStore()
	seedBank(t, store, "btc101", "en", 3)
	svc := newTestService(t, store)

	started, err := svc.StartAttempt(context.Background(), "u1", "btc101", "ch-exam", "en")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(started.Questions) != 3 {
		t.Fatalf("bank smaller than sample size should issue the whole bank, got %d", len(started.Questions))
	}
}

/* ------------------------------- submission -------------------------------- */

func startFor(t *testing.T, svc *exam.Service, uid string) *exam.StartedAttempt {
	t.Helper()
	started, err := svc.StartAttempt(context.Background(), uid, "btc101", "ch-exam", "en")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return started
}

func TestSubmit_PassScenario(t *testing.T) {
	store := exam.NewMemoryStore()
	seedBank(t, store, "btc101", "en", 5)
	events := &recordedEvents{}
	svc := newTestService(t, store, exam.WithEvents(events))

	started := startFor(t, svc, "u1")
	res, err := svc.SubmitAnswers(context.Background(), "u1", started.AttemptID, answersFor(t, store, started.AttemptID, 4))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Score != 80 || !res.Succeeded {
		t.Fatalf("4/5 correct should be score=80 succeeded=true; got %+v", res)
	}

	done, err := store.HasCompletion(context.Background(), "u1", "btc101", "ch-exam")
	if err != nil || !done {
		t.Fatalf("passing attempt must record chapter completion (done=%v err=%v)", done, err)
	}

	a, err := svc.LatestResult(context.Background(), "u1", "btc101")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !a.Finalized || a.Score == nil || *a.Score != 80 || !a.Succeeded || a.FinishedAt == nil {
		t.Fatalf("finalized attempt inconsistent: %+v", a)
	}

	types := events.types()
	wantTypes := map[string]bool{}
	for _, typ := range types {
		wantTypes[typ] = true
	}
	if !wantTypes[syncx.EventAttemptGraded] || !wantTypes[syncx.EventChapterCompleted] {
		t.Fatalf("expected graded+completed events, got %v", types)
	}
}

func TestSubmit_FailScenario(t *testing.T) {
	store := exam.NewMemoryStore()
	seedBank(t, store, "btc101", "en", 5)
	svc := newTestService(t, store)

	started := startFor(t, svc, "u1")
	res, err := svc.SubmitAnswers(context.Background(), "u1", started.AttemptID, answersFor(t, store, started.AttemptID, 1))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Score != 20 || res.Succeeded {
		t.Fatalf("1/5 correct should be score=20 succeeded=false; got %+v", res)
	}

	done, err := store.HasCompletion(context.Background(), "u1", "btc101", "ch-exam")
	if err != nil {
		t.Fatalf("completion check: %v", err)
	}
	if done {
		t.Fatalf("failed attempt must never mark the chapter complete")
	}
}

func TestSubmit_PassThresholdUsesUnroundedRatio(t *testing.T) {
	store := exam.NewMemoryStore()
	seedBank(t, store, "btc101", "en", 5)
	svc := newTestService(t, store)

	// 3/5 = 0.6 < 0.8: fails even though the rounded score (60) looks close.
	started := startFor(t, svc, "u1")
	res, err := svc.SubmitAnswers(context.Background(), "u1", started.AttemptID, answersFor(t, store, started.AttemptID, 3))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Score != 60 || res.Succeeded {
		t.Fatalf("3/5 must fail with score=60; got %+v", res)
	}

	// Exactly 4/5 = 0.8 passes: the threshold is inclusive.
	started2 := startFor(t, svc, "u2")
	res2, err := svc.SubmitAnswers(context.Background(), "u2", started2.AttemptID, answersFor(t, store, started2.AttemptID, 4))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res2.Succeeded {
		t.Fatalf("exactly 80%% correct must pass")
	}
}

func TestSubmit_SetIntegrity(t *testing.T) {
	store := exam.NewMemoryStore()
	seedBank(t, store, "btc101", "en", 5)
	svc := newTestService(t, store)
	started := startFor(t, svc, "u1")

	full := answersFor(t, store, started.AttemptID, 5)

	// Missing one answer.
	if _, err := svc.SubmitAnswers(context.Background(), "u1", started.AttemptID, full[:4]); !errors.Is(err, exam.ErrIncompleteSubmission) {
		t.Fatalf("partial submission must be rejected, got %v", err)
	}

	// Unknown question id.
	bad := append([]exam.SubmittedAnswer(nil), full[:4]...)
	bad = append(bad, exam.SubmittedAnswer{QuestionID: "not-issued", ChosenIndex: 0})
	if _, err := svc.SubmitAnswers(context.Background(), "u1", started.AttemptID, bad); !errors.Is(err, exam.ErrIncompleteSubmission) {
		t.Fatalf("foreign question id must be rejected, got %v", err)
	}

	// Duplicate question id.
	dup := append([]exam.SubmittedAnswer(nil), full[:4]...)
	dup = append(dup, full[0])
	if _, err := svc.SubmitAnswers(context.Background(), "u1", started.AttemptID, dup); !errors.Is(err, exam.ErrIncompleteSubmission) {
		t.Fatalf("duplicate question id must be rejected, got %v", err)
	}

	// Nothing was graded along the way.
	a, err := store.GetAttempt(context.Background(), started.AttemptID)
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if a.Finalized {
		t.Fatalf("rejected submissions must not finalize the attempt")
	}
}

func TestSubmit_WrongUserForbidden(t *testing.T) {
	store := exam.NewMemoryStore()
	seedBank(t, store, "btc101", "en", 5)
	svc := newTestService(t, store)
	started := startFor(t, svc, "u1")

	_, err := svc.SubmitAnswers(context.Background(), "intruder", started.AttemptID, answersFor(t, store, started.AttemptID, 5))
	if !errors.Is(err, exam.ErrAttemptForbidden) {
		t.Fatalf("expected ErrAttemptForbidden, got %v", err)
	}
}

func TestSubmit_IdempotentGrading(t *testing.T) {
	store := exam.NewMemoryStore()
	seedBank(t, store, "btc101", "en", 5)
	svc := newTestService(t, store)
	started := startFor(t, svc, "u1")

	first, err := svc.SubmitAnswers(context.Background(), "u1", started.AttemptID, answersFor(t, store, started.AttemptID, 1))
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	// A retry with improved answers must return the stored result untouched.
	second, err := svc.SubmitAnswers(context.Background(), "u1", started.AttemptID, answersFor(t, store, started.AttemptID, 5))
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if second.Score != first.Score || second.Succeeded != first.Succeeded {
		t.Fatalf("re-grading drifted: first=%+v second=%+v", first, second)
	}

	a, err := store.GetAttempt(context.Background(), started.AttemptID)
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if a.Score == nil || *a.Score != first.Score {
		t.Fatalf("stored score drifted to %v", a.Score)
	}
}

func TestRetake_Independence(t *testing.T) {
	store := exam.NewMemoryStore()
	seedBank(t, store, "btc101", "en", 12)
	svc := newTestService(t, store)

	first := startFor(t, svc, "u1")
	if _, err := svc.SubmitAnswers(context.Background(), "u1", first.AttemptID, answersFor(t, store, first.AttemptID, 1)); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	second := startFor(t, svc, "u1")
	if second.AttemptID == first.AttemptID {
		t.Fatalf("retake must create a new attempt")
	}

	firstSels, _ := store.SelectionsForAttempt(context.Background(), first.AttemptID)
	if len(firstSels) != 5 {
		t.Fatalf("first attempt's selections changed: %d", len(firstSels))
	}
	firstAttempt, err := store.GetAttempt(context.Background(), first.AttemptID)
	if err != nil {
		t.Fatalf("get first attempt: %v", err)
	}
	if !firstAttempt.Finalized || firstAttempt.Score == nil || *firstAttempt.Score != 20 {
		t.Fatalf("first attempt mutated by retake: %+v", firstAttempt)
	}

	if _, err := svc.SubmitAnswers(context.Background(), "u1", second.AttemptID, answersFor(t, store, second.AttemptID, 5)); err != nil {
		t.Fatalf("second submit: %v", err)
	}
	latest, err := svc.LatestResult(context.Background(), "u1", "btc101")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != second.AttemptID || !latest.Succeeded {
		t.Fatalf("latest result should be the passing retake: %+v", latest)
	}
}

func TestSubmit_TriggersCertSyncOnPassOnly(t *testing.T) {
	store := exam.NewMemoryStore()
	seedBank(t, store, "btc101", "en", 5)
	notifier := &fakeNotifier{ch: make(chan string, 1)}
	svc := newTestService(t, store, exam.WithCertSync(notifier))

	started := startFor(t, svc, "u1")
	if _, err := svc.SubmitAnswers(context.Background(), "u1", started.AttemptID, answersFor(t, store, started.AttemptID, 5)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	select {
	case id := <-notifier.ch:
		if id != started.AttemptID {
			t.Fatalf("cert sync got wrong attempt %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("cert sync not triggered for passing attempt")
	}

	failed := startFor(t, svc, "u2")
	if _, err := svc.SubmitAnswers(context.Background(), "u2", failed.AttemptID, answersFor(t, store, failed.AttemptID, 0)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	select {
	case id := <-notifier.ch:
		t.Fatalf("failed attempt must not reach cert sync (got %s)", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLatestResult_NoAttempts(t *testing.T) {
	store := exam.NewMemoryStore()
	svc := newTestService(t, store)
	if _, err := svc.LatestResult(context.Background(), "u1", "btc101"); !errors.Is(err, exam.ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound, got %v", err)
	}
}
