package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	auth "github.com/openclass/quizcore/internal/auth/middleware"
	"github.com/openclass/quizcore/internal/quiz"
)

// GET /submissions?quiz_id=...&user_id=...&limit=50&offset=0
// Students only ever see their own submissions; teachers may filter
// freely.
func ListSubmissionsHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := auth.RoleFromContext(r.Context())
		sub := auth.SubjectFromContext(r.Context())

		quizID := strings.TrimSpace(r.URL.Query().Get("quiz_id"))
		userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
		limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
		offset := parseIntDefault(r.URL.Query().Get("offset"), 0)

		if role != "teacher" && role != "admin" {
			userID = sub
		}

		list, err := store.ListSubmissions(r.Context(), quiz.SubmissionListOpts{
			QuizID: quizID,
			UserID: userID,
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(list)
	}
}

// GET /submissions/{submissionID} — the report view after grading.
func GetSubmissionHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "submissionID")
		role := auth.RoleFromContext(r.Context())
		sub := auth.SubjectFromContext(r.Context())
		s, err := store.GetSubmission(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		if role != "teacher" && role != "admin" && s.UserID != sub {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s)
	}
}
