package http

import (
	"net/http"
	"strconv"
	"strings"

	authmw "github.com/btc-academy/exam-service/internal/auth/middleware"
	"github.com/btc-academy/exam-service/internal/exam"
	"github.com/btc-academy/exam-service/internal/rbac"
)

// GET /attempts?course_id=...&user_id=...&limit=50&offset=0
// Callers without attempt:view-all only ever see their own attempts; the
// user_id filter is forced to the JWT subject for them.
func ListAttemptsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := rbac.RoleFromContext(r.Context())
		sub := authmw.SubjectFromContext(r.Context())
		if role == "" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		courseID := strings.TrimSpace(r.URL.Query().Get("course_id"))
		userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
		limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
		offset := parseIntDefault(r.URL.Query().Get("offset"), 0)

		if !rbac.NewChecker(nil).Has(role, "attempt:view-all") {
			userID = sub
		}

		list, err := svc.ListAttempts(r.Context(), exam.AttemptListOpts{
			CourseID: courseID,
			UserID:   userID,
			Limit:    limit,
			Offset:   offset,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}
