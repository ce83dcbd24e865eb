package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openclass/quizcore/internal/attempt"
	auth "github.com/openclass/quizcore/internal/auth/middleware"
	"github.com/openclass/quizcore/internal/quiz"
)

type answerView struct {
	SelectedOption  string   `json:"selectedOption,omitempty"`
	SelectedOptions []string `json:"selectedOptions,omitempty"`
	Blanks          []string `json:"blanks,omitempty"`
	ReviewMarked    bool     `json:"reviewMarked"`
	Answered        bool     `json:"answered"`
}

type attemptView struct {
	AttemptID           string        `json:"_id"`
	QuizID              string        `json:"quizId"`
	QuestionOrder       []string      `json:"questionOrder"`
	CurrentIndex        int           `json:"currentIndex"`
	Question            quiz.Question `json:"question"`
	Answer              *answerView   `json:"answer,omitempty"`
	AnsweredIndexes     []int         `json:"answeredIndexes"`
	ReviewMarkedIndexes []int         `json:"reviewMarkedIndexes"`
	RemainingSeconds    int           `json:"remainingSeconds"`
	ElapsedSeconds      int           `json:"elapsedSeconds"`
	Submitted           bool          `json:"submitted"`
}

func viewOf(attemptID string, s *attempt.Session) attemptView {
	q, a := s.Current()
	v := attemptView{
		AttemptID:           attemptID,
		QuizID:              s.Quiz.ID,
		QuestionOrder:       s.Order(),
		CurrentIndex:        s.CurrentIndex(),
		Question:            q,
		AnsweredIndexes:     s.AnsweredIndexes(),
		ReviewMarkedIndexes: s.ReviewMarkedIndexes(),
		RemainingSeconds:    s.Remaining(),
		ElapsedSeconds:      s.ElapsedSeconds(),
		Submitted:           s.Submitted(),
	}
	if a != nil {
		v.Answer = &answerView{
			SelectedOption:  a.Selected(),
			SelectedOptions: a.SelectedOptions(),
			Blanks:          a.Blanks(),
			ReviewMarked:    a.ReviewMarked,
			Answered:        a.Answered(),
		}
	}
	return v
}

// POST /quizzes/{quizID}/attempts — normalizes the quiz into a fresh
// session with a per-session shuffled question order. Availability and
// attempt-limit checks run here too, so an ineligible student fails
// before taking the quiz rather than at submit.
func StartAttemptHandler(store quiz.Store, reg *attempt.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quizID := chi.URLParam(r, "quizID")
		sub := auth.SubjectFromContext(r.Context())
		q, err := store.GetQuizAuthoritative(r.Context(), quizID)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := quiz.CheckWindow(q, time.Now()); err != nil {
			writeError(w, err)
			return
		}
		if q.AttemptsEnabled {
			used, err := store.CountSubmissions(r.Context(), quizID, sub)
			if err != nil {
				writeError(w, err)
				return
			}
			if used >= q.MaxAttempts {
				writeError(w, quiz.ErrAttemptLimit)
				return
			}
		}
		id, s, err := reg.Start(q, sub)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(viewOf(id, s))
	}
}

// GET /attempts/{attemptID}
func GetAttemptHandler(reg *attempt.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "attemptID")
		sub := auth.SubjectFromContext(r.Context())
		var v attemptView
		err := reg.With(id, sub, func(s *attempt.Session) error {
			v = viewOf(id, s)
			return nil
		})
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
}

// POST /attempts/{attemptID}/goto  { "index": 3 }
func GoToHandler(reg *attempt.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "attemptID")
		sub := auth.SubjectFromContext(r.Context())
		var req struct {
			Index int `json:"index"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		var v attemptView
		err := reg.With(id, sub, func(s *attempt.Session) error {
			s.GoTo(req.Index)
			v = viewOf(id, s)
			return nil
		})
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
}

// POST /attempts/{attemptID}/answers — one mutation per request. The
// populated field picks the semantics: selectedOption replaces a
// single-choice pick, toggleOption flips a multi-choice option, and
// blankIndex+text writes one fill-in slot.
func AnswerHandler(reg *attempt.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "attemptID")
		sub := auth.SubjectFromContext(r.Context())
		var req struct {
			QuestionID     string  `json:"_id"`
			SelectedOption *string `json:"selectedOption"`
			ToggleOption   *string `json:"toggleOption"`
			BlankIndex     *int    `json:"blankIndex"`
			Text           *string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		var v attemptView
		err := reg.With(id, sub, func(s *attempt.Session) error {
			switch {
			case req.SelectedOption != nil:
				if err := s.SelectOption(req.QuestionID, *req.SelectedOption); err != nil {
					return err
				}
			case req.ToggleOption != nil:
				if err := s.ToggleOption(req.QuestionID, *req.ToggleOption); err != nil {
					return err
				}
			case req.BlankIndex != nil && req.Text != nil:
				if err := s.FillBlank(req.QuestionID, *req.BlankIndex, *req.Text); err != nil {
					return err
				}
			default:
				return attempt.ErrUnknownQuestion
			}
			v = viewOf(id, s)
			return nil
		})
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
}

// POST /attempts/{attemptID}/review  { "_id": "q3" }
func ToggleReviewHandler(reg *attempt.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "attemptID")
		sub := auth.SubjectFromContext(r.Context())
		var req struct {
			QuestionID string `json:"_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		var v attemptView
		err := reg.With(id, sub, func(s *attempt.Session) error {
			if err := s.ToggleReviewMark(req.QuestionID); err != nil {
				return err
			}
			v = viewOf(id, s)
			return nil
		})
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
}

// POST /attempts/{attemptID}/submit — manual submission. The session's
// submitted flag flips before grading, so a double-click or a timer
// expiry racing this request yields exactly one graded submission. If
// the store rejects the submission transiently, the attempt stays
// registered with its staged request and this endpoint retries the same
// logical submission; only permanent failures discard the attempt.
func SubmitAttemptHandler(store quiz.Store, reg *attempt.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "attemptID")
		sub := auth.SubjectFromContext(r.Context())
		result, err := reg.Submit(r.Context(), id, sub, store.CreateSubmission)
		if err != nil {
			if quiz.PermanentSubmissionError(err) {
				reg.Remove(id)
			}
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"_id": result.ID})
	}
}

// DELETE /attempts/{attemptID} — abandon without submitting. No server
// state changes beyond dropping the session.
func AbandonAttemptHandler(reg *attempt.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "attemptID")
		sub := auth.SubjectFromContext(r.Context())
		err := reg.With(id, sub, func(s *attempt.Session) error { return nil })
		if err != nil {
			writeError(w, err)
			return
		}
		reg.Remove(id)
		w.WriteHeader(http.StatusNoContent)
	}
}
