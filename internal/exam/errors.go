package exam

import "errors"

var (
	// ErrExamNotTranslated means the course has no questions in the requested
	// language. The HTTP layer turns this into a distinct non-error state, not
	// a failure.
	ErrExamNotTranslated = errors.New("exam not available in this language")

	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrAttemptForbidden = errors.New("attempt belongs to another user")

	// ErrIncompleteSubmission means the submitted answers do not cover exactly
	// the question set issued for the attempt.
	ErrIncompleteSubmission = errors.New("answers do not match the issued question set")

	// ErrAlreadyFinalized signals that a finalize raced with another submit.
	// Callers treat the stored result as authoritative.
	ErrAlreadyFinalized = errors.New("attempt already finalized")

	ErrNothingToGrade = errors.New("attempt has no answers to grade")
)
