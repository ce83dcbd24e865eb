package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	auth "github.com/openclass/quizcore/internal/auth/middleware"
	"github.com/openclass/quizcore/internal/quiz"
)

// POST /quizzes — teacher-only authoring endpoint. Validates the quiz's
// question invariants before anything is stored.
func CreateQuizHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if role := auth.RoleFromContext(r.Context()); role != "teacher" && role != "admin" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		var q quiz.Quiz
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if err := store.PutQuiz(r.Context(), q); err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"_id": q.ID})
	}
}

// GET /quizzes/{quizID} — student-safe view: option correctness is
// stripped, attemptsCount is filled for the caller.
func GetQuizHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "quizID")
		sub := auth.SubjectFromContext(r.Context())
		q, err := store.GetQuiz(r.Context(), id, sub)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(q)
	}
}
