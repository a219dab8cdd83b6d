package certsync

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Clock func() time.Time

// Syncer pushes passing exam results to the external proof/timestamping
// service and tracks per-attempt sync status. Failures are recorded, never
// escalated into the grading path; a later retry re-invokes SyncAttempt.
type Syncer struct {
	Store  Store
	Client Client
	Now    Clock
}

func New(store Store, client Client, now Clock) *Syncer {
	if now == nil {
		now = time.Now
	}
	return &Syncer{Store: store, Client: client, Now: now}
}

func (s *Syncer) SyncAttempt(ctx context.Context, attemptID string) error {
	at, err := s.Store.GetGradedAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if at.FinishedAt == nil {
		return errors.New("attempt not graded")
	}
	if !at.Succeeded {
		// Only passing attempts earn a proof.
		return nil
	}
	_ = s.Store.MarkSyncPending(ctx, at.ID)

	_, err = s.Client.SubmitProof(ctx, Proof{
		AttemptID:  at.ID,
		UserID:     at.UserID,
		CourseID:   at.CourseID,
		Score:      at.Score,
		FinishedAt: *at.FinishedAt,
	})
	if err != nil {
		_ = s.Store.MarkSyncFailed(ctx, at.ID, err.Error())
		return fmt.Errorf("submit proof: %w", err)
	}
	return s.Store.MarkSyncOK(ctx, at.ID)
}
