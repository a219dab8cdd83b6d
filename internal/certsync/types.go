package certsync

import (
	"context"
	"time"
)

// GradedAttempt is the view of a finalized exam attempt the syncer needs.
type GradedAttempt struct {
	ID         string
	UserID     string
	CourseID   string
	ChapterID  string
	Score      int
	Succeeded  bool
	FinishedAt *time.Time
}

// Proof is the payload posted to the external timestamping/certificate
// service when an attempt passes.
type Proof struct {
	AttemptID  string    `json:"attempt_id"`
	UserID     string    `json:"user_id"`
	CourseID   string    `json:"course_id"`
	Score      int       `json:"score"`
	FinishedAt time.Time `json:"finished_at"`
}

// Store: implement this in your app, or use the SQLStore here.
type Store interface {
	GetGradedAttempt(ctx context.Context, id string) (GradedAttempt, error)

	MarkSyncPending(ctx context.Context, attemptID string) error
	MarkSyncOK(ctx context.Context, attemptID string) error
	MarkSyncFailed(ctx context.Context, attemptID, lastErr string) error
}

// Client talks to the external proof service. The HTTP implementation uses
// OAuth2 client credentials; tests swap in a fake.
type Client interface {
	SubmitProof(ctx context.Context, p Proof) (receipt string, err error)
}
