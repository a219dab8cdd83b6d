package exam

import "time"

// QuizQuestion is an entry in the per-course question bank, localized by
// language. The correct answer is present here because grading and payload
// building need it; anything leaving the server goes through ClientQuestion.
type QuizQuestion struct {
	ID            string   `json:"id"`
	CourseID      string   `json:"course_id"`
	Language      string   `json:"language"`
	Text          string   `json:"text"`
	CorrectAnswer string   `json:"correct_answer"`
	WrongAnswers  []string `json:"wrong_answers"`
	Explanation   string   `json:"explanation,omitempty"`
}

// ClientQuestion is the answer-redacted view sent to the client at issuance.
// Choices holds correct and wrong answers in shuffled order with no marker.
type ClientQuestion struct {
	QuestionID string   `json:"question_id"`
	Text       string   `json:"text"`
	Choices    []string `json:"choices"`
}

// Attempt is one instance of a user taking the exam for a course.
// Finalized implies Score and Succeeded are set; a retake is a new Attempt.
type Attempt struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	CourseID   string     `json:"course_id"`
	ChapterID  string     `json:"chapter_id"`
	Language   string     `json:"language"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Finalized  bool       `json:"finalized"`
	Score      *int       `json:"score,omitempty"` // 0-100, nil until graded
	Succeeded  bool       `json:"succeeded"`
}

// Selection pins one bank question to an attempt. CorrectPosition records
// which shuffled choice slot holds the true answer; the client never sees it.
type Selection struct {
	ID              string
	AttemptID       string
	QuestionID      string
	CorrectPosition int
}

// AnswerRow is a submitted answer joined with its selection, as the grader
// consumes it.
type AnswerRow struct {
	SelectionID     string
	QuestionID      string
	CorrectPosition int
	ChosenPosition  int
}

// SubmittedAnswer is one entry of the client's submit payload.
type SubmittedAnswer struct {
	QuestionID  string `json:"question_id"`
	ChosenIndex int    `json:"chosen_index"`
}

// StartedAttempt is the issuance response: the new attempt id plus the
// redacted question list in presentation order.
type StartedAttempt struct {
	AttemptID string           `json:"attempt_id"`
	Questions []ClientQuestion `json:"questions"`
}

// GradeResult is the outcome of grading an attempt.
type GradeResult struct {
	Score     int  `json:"score"`
	Succeeded bool `json:"succeeded"`
}

// ChapterCompletion marks a course chapter done for a user. Upserted, so
// completing the same chapter twice is a no-op.
type ChapterCompletion struct {
	UserID      string    `json:"user_id"`
	CourseID    string    `json:"course_id"`
	ChapterID   string    `json:"chapter_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// AttemptListOpts filters ListAttempts for dashboards and "my attempts".
type AttemptListOpts struct {
	CourseID string
	UserID   string
	Limit    int
	Offset   int
}
