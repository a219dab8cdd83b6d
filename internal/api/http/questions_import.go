package http

import (
	"encoding/json"
	"net/http"

	"github.com/btc-academy/exam-service/internal/exam"
)

// POST /questions — bulk upsert of bank questions (instructor/admin only).
// Body: JSON array of questions including answer keys; this surface never
// reaches students.
func ImportQuestionsHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var qs []exam.QuizQuestion
		if err := json.NewDecoder(r.Body).Decode(&qs); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		for _, q := range qs {
			if q.ID == "" || q.CourseID == "" || q.Language == "" || q.CorrectAnswer == "" {
				http.Error(w, "id, course_id, language and correct_answer required", http.StatusBadRequest)
				return
			}
		}
		if err := store.PutQuestions(r.Context(), qs); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"imported": len(qs)})
	}
}
