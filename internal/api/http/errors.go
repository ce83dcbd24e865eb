package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/openclass/quizcore/internal/attempt"
	"github.com/openclass/quizcore/internal/quiz"
	"github.com/openclass/quizcore/internal/scoring"
)

// writeError maps domain errors onto HTTP statuses. Scoring mismatches
// indicate tampering and are hidden behind a generic message.
func writeError(w http.ResponseWriter, err error) {
	var malformed *quiz.MalformedQuestionError
	var mismatch *scoring.InputMismatchError
	switch {
	case errors.As(err, &malformed):
		http.Error(w, malformed.Error(), http.StatusBadRequest)
	case errors.Is(err, quiz.ErrNotFound), errors.Is(err, attempt.ErrAttemptNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, quiz.ErrAttemptLimit), errors.Is(err, quiz.ErrNotAvailable):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, attempt.ErrAlreadySubmitted):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, attempt.ErrUnknownQuestion):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &mismatch):
		// integrity failure on the scoring side; detail stays server-side
		http.Error(w, "submission failed", http.StatusInternalServerError)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
