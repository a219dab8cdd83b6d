package exam

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is the in-process Store used by tests and offline demos.
// Same visibility semantics as SQLStore, guarded by one mutex.
type MemoryStore struct {
	mu          sync.RWMutex
	questions   map[string]QuizQuestion // by question id
	attempts    map[string]Attempt
	selections  map[string][]Selection // by attempt id
	answers     map[string]AnswerRow   // by selection id
	completions map[string]ChapterCompletion
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		questions:   map[string]QuizQuestion{},
		attempts:    map[string]Attempt{},
		selections:  map[string][]Selection{},
		answers:     map[string]AnswerRow{},
		completions: map[string]ChapterCompletion{},
	}
}

func completionKey(userID, courseID, chapterID string) string {
	return userID + "|" + courseID + "|" + chapterID
}

func (m *MemoryStore) PutQuestions(_ context.Context, qs []QuizQuestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range qs {
		m.questions[q.ID] = q
	}
	return nil
}

func (m *MemoryStore) QuestionsForCourse(_ context.Context, courseID, language string) ([]QuizQuestion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []QuizQuestion
	for _, q := range m.questions {
		if q.CourseID == courseID && q.Language == language {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) CreateAttempt(_ context.Context, a Attempt, sels []Selection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[a.ID] = a
	m.selections[a.ID] = append([]Selection(nil), sels...)
	return nil
}

func (m *MemoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, nil
}

func (m *MemoryStore) SelectionsForAttempt(_ context.Context, attemptID string) ([]Selection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Selection(nil), m.selections[attemptID]...), nil
}

func (m *MemoryStore) SaveAnswers(_ context.Context, _ string, answers []AnswerRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ans := range answers {
		if _, exists := m.answers[ans.SelectionID]; exists {
			continue // first write wins
		}
		m.answers[ans.SelectionID] = ans
	}
	return nil
}

func (m *MemoryStore) AnswersForAttempt(_ context.Context, attemptID string) ([]AnswerRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []AnswerRow
	for _, sel := range m.selections[attemptID] {
		if ans, ok := m.answers[sel.ID]; ok {
			out = append(out, ans)
		}
	}
	return out, nil
}

func (m *MemoryStore) FinalizeAttempt(_ context.Context, attemptID string, score int, succeeded bool, finishedAt time.Time, completion *ChapterCompletion) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return false, ErrAttemptNotFound
	}
	if a.Finalized {
		return false, nil
	}
	a.Finalized = true
	a.FinishedAt = &finishedAt
	a.Score = &score
	a.Succeeded = succeeded
	m.attempts[attemptID] = a

	if completion != nil {
		k := completionKey(completion.UserID, completion.CourseID, completion.ChapterID)
		if _, exists := m.completions[k]; !exists {
			m.completions[k] = *completion
		}
	}
	return true, nil
}

func (m *MemoryStore) LatestAttempt(_ context.Context, userID, courseID string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		latest Attempt
		found  bool
	)
	for _, a := range m.attempts {
		if a.UserID != userID || a.CourseID != courseID {
			continue
		}
		if !found || a.StartedAt.After(latest.StartedAt) {
			latest = a
			found = true
		}
	}
	if !found {
		return Attempt{}, ErrAttemptNotFound
	}
	return latest, nil
}

func (m *MemoryStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Attempt, 0)
	for _, a := range m.attempts {
		if opts.CourseID != "" && a.CourseID != opts.CourseID {
			continue
		}
		if opts.UserID != "" && a.UserID != opts.UserID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if opts.Offset >= len(out) {
		return []Attempt{}, nil
	}
	out = out[opts.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) HasCompletion(_ context.Context, userID, courseID, chapterID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.completions[completionKey(userID, courseID, chapterID)]
	return ok, nil
}
