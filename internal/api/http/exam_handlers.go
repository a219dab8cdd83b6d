package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	authmw "github.com/btc-academy/exam-service/internal/auth/middleware"
	"github.com/btc-academy/exam-service/internal/exam"
)

// POST /exams/{courseID}/attempts  { "language": "en", "chapter_id": "..." }
// Issues a new attempt with an answer-redacted question list. A course with
// no questions in the requested language is a distinct state, not an error.
func StartExamHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		courseID := strings.TrimSpace(chi.URLParam(r, "courseID"))
		uid := authmw.SubjectFromContext(r.Context())
		if courseID == "" || uid == "" {
			http.Error(w, "courseID required", http.StatusBadRequest)
			return
		}
		var req struct {
			Language  string `json:"language"`
			ChapterID string `json:"chapter_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.Language == "" {
			req.Language = "en"
		}

		started, err := svc.StartAttempt(r.Context(), uid, courseID, req.ChapterID, req.Language)
		if errors.Is(err, exam.ErrExamNotTranslated) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "not_translated"})
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, started)
	}
}

// POST /attempts/{attemptID}/submit  { "answers": [{"question_id": "...", "chosen_index": 0}] }
// Grades synchronously. Resubmitting a finalized attempt returns the stored
// grade, so client retries after a timeout are success-equivalent.
func SubmitExamHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attemptID := strings.TrimSpace(chi.URLParam(r, "attemptID"))
		uid := authmw.SubjectFromContext(r.Context())
		if attemptID == "" || uid == "" {
			http.Error(w, "attemptID required", http.StatusBadRequest)
			return
		}
		var req struct {
			Answers []exam.SubmittedAnswer `json:"answers"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}

		res, err := svc.SubmitAnswers(r.Context(), uid, attemptID, req.Answers)
		switch {
		case errors.Is(err, exam.ErrAttemptNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		case errors.Is(err, exam.ErrAttemptForbidden):
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		case errors.Is(err, exam.ErrIncompleteSubmission):
			http.Error(w, err.Error(), http.StatusConflict)
			return
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GET /exams/{courseID}/attempts/latest
// Latest attempt for the authenticated user; 204 when none exists yet.
func LatestResultHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		courseID := strings.TrimSpace(chi.URLParam(r, "courseID"))
		uid := authmw.SubjectFromContext(r.Context())
		if courseID == "" || uid == "" {
			http.Error(w, "courseID required", http.StatusBadRequest)
			return
		}
		a, err := svc.LatestResult(r.Context(), uid, courseID)
		if errors.Is(err, exam.ErrAttemptNotFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
