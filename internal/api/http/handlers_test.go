package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	api "github.com/openclass/quizcore/internal/api/http"
	"github.com/openclass/quizcore/internal/attempt"
	auth "github.com/openclass/quizcore/internal/auth/middleware"
	"github.com/openclass/quizcore/internal/quiz"
)

// asUser stands in for the JWT middleware: it injects subject and role
// straight into the request context.
func asUser(sub, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithSubject(r.Context(), sub)
			ctx = auth.WithRole(ctx, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newRouter(store quiz.Store, reg *attempt.Registry, sub, role string) http.Handler {
	r := chi.NewRouter()
	r.Use(asUser(sub, role))
	r.Post("/quizzes", api.CreateQuizHandler(store))
	r.Get("/quizzes/{quizID}", api.GetQuizHandler(store))
	r.Post("/quizzes/{quizID}/attempts", api.StartAttemptHandler(store, reg))
	r.Post("/attempts/{attemptID}/answers", api.AnswerHandler(reg))
	r.Post("/attempts/{attemptID}/review", api.ToggleReviewHandler(reg))
	r.Post("/attempts/{attemptID}/goto", api.GoToHandler(reg))
	r.Post("/attempts/{attemptID}/submit", api.SubmitAttemptHandler(store, reg))
	r.Get("/submissions/{submissionID}", api.GetSubmissionHandler(store))
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: decode response: %v", method, path, err)
		}
	}
	return rec
}

func sampleQuiz() quiz.Quiz {
	return quiz.Quiz{
		ID:                  "geo-1",
		Name:                "Geography",
		SingleQuestionMarks: 5,
		PassPercentage:      60,
		Questions: []quiz.Question{
			{
				ID: "q1", Type: quiz.TypeSingleOption, Text: "Capital of France?",
				Options: []quiz.Option{{Text: "Paris", IsCorrect: true}, {Text: "Lyon"}},
			},
			{
				ID: "q2", Type: quiz.TypeMultipleOptions, Text: "Which are rivers?",
				Options: []quiz.Option{{Text: "Seine", IsCorrect: true}, {Text: "Rhone", IsCorrect: true}, {Text: "Alps"}},
			},
		},
	}
}

func TestQuizAttemptFlow(t *testing.T) {
	store := quiz.NewInMemoryStore()
	reg := attempt.NewRegistry()
	teacher := newRouter(store, reg, "t1", "teacher")
	student := newRouter(store, reg, "alice", "student")

	// author
	rec := do(t, teacher, "POST", "/quizzes", sampleQuiz(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("create quiz: %d %s", rec.Code, rec.Body.String())
	}
	// students cannot author
	rec = do(t, student, "POST", "/quizzes", sampleQuiz(), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("student create quiz: %d, want 403", rec.Code)
	}

	// student fetch never includes isCorrect
	var fetched quiz.Quiz
	do(t, student, "GET", "/quizzes/geo-1", nil, &fetched)
	for _, q := range fetched.Questions {
		for _, o := range q.Options {
			if o.IsCorrect {
				t.Fatal("student fetch leaks isCorrect")
			}
		}
	}

	// start attempt, answer both questions, submit
	var av struct {
		AttemptID     string   `json:"_id"`
		QuestionOrder []string `json:"questionOrder"`
	}
	rec = do(t, student, "POST", "/quizzes/geo-1/attempts", nil, &av)
	if rec.Code != http.StatusOK || len(av.QuestionOrder) != 2 {
		t.Fatalf("start attempt: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, student, "POST", "/attempts/"+av.AttemptID+"/answers",
		map[string]any{"_id": "q1", "selectedOption": "Paris"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("answer q1: %d %s", rec.Code, rec.Body.String())
	}
	for _, opt := range []string{"Seine", "Rhone"} {
		rec = do(t, student, "POST", "/attempts/"+av.AttemptID+"/answers",
			map[string]any{"_id": "q2", "toggleOption": opt}, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("toggle %s: %d", opt, rec.Code)
		}
	}
	rec = do(t, student, "POST", "/attempts/"+av.AttemptID+"/review",
		map[string]any{"_id": "q2"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("review toggle: %d", rec.Code)
	}

	var submitted struct {
		ID string `json:"_id"`
	}
	rec = do(t, student, "POST", "/attempts/"+av.AttemptID+"/submit", nil, &submitted)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", rec.Code, rec.Body.String())
	}

	// attempt is gone after submit; a second submit cannot double-grade
	rec = do(t, student, "POST", "/attempts/"+av.AttemptID+"/submit", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("resubmit: %d, want 404", rec.Code)
	}

	var report quiz.Submission
	do(t, student, "GET", "/submissions/"+submitted.ID, nil, &report)
	if report.MarksObtained != 10 || report.Percentage != 100 || report.Result != "pass" {
		t.Fatalf("report %+v", report)
	}
	if report.ReviewMarkedAnswers != 1 {
		t.Fatalf("reviewMarked = %d, want 1", report.ReviewMarkedAnswers)
	}

	// another student cannot read the report
	other := newRouter(store, reg, "bob", "student")
	rec = do(t, other, "GET", "/submissions/"+submitted.ID, nil, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign report read: %d, want 403", rec.Code)
	}
}

// flakyStore fails the first failFirst CreateSubmission calls, standing
// in for a database outage during submit.
type flakyStore struct {
	quiz.Store
	failFirst int
	calls     int
}

func (f *flakyStore) CreateSubmission(ctx context.Context, quizID, userID string, req quiz.SubmissionRequest) (quiz.Submission, error) {
	f.calls++
	if f.calls <= f.failFirst {
		return quiz.Submission{}, errors.New("connection refused")
	}
	return f.Store.CreateSubmission(ctx, quizID, userID, req)
}

func TestSubmitRetriesAfterStoreOutage(t *testing.T) {
	store := &flakyStore{Store: quiz.NewInMemoryStore(), failFirst: 1}
	reg := attempt.NewRegistry()
	teacher := newRouter(store, reg, "t1", "teacher")
	student := newRouter(store, reg, "alice", "student")

	do(t, teacher, "POST", "/quizzes", sampleQuiz(), nil)

	var av struct {
		AttemptID string `json:"_id"`
	}
	rec := do(t, student, "POST", "/quizzes/geo-1/attempts", nil, &av)
	if rec.Code != http.StatusOK {
		t.Fatalf("start attempt: %d", rec.Code)
	}
	rec = do(t, student, "POST", "/attempts/"+av.AttemptID+"/answers",
		map[string]any{"_id": "q1", "selectedOption": "Paris"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("answer: %d", rec.Code)
	}

	rec = do(t, student, "POST", "/attempts/"+av.AttemptID+"/submit", nil, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("submit during outage: %d, want 500", rec.Code)
	}

	// the attempt survives the outage; a retry lands the same submission
	var submitted struct {
		ID string `json:"_id"`
	}
	rec = do(t, student, "POST", "/attempts/"+av.AttemptID+"/submit", nil, &submitted)
	if rec.Code != http.StatusOK {
		t.Fatalf("retry after outage: %d %s", rec.Code, rec.Body.String())
	}
	if submitted.ID == "" {
		t.Fatal("retry returned no submission id")
	}
	var report quiz.Submission
	do(t, student, "GET", "/submissions/"+submitted.ID, nil, &report)
	if report.MarksObtained != 5 {
		t.Fatalf("report %+v", report)
	}

	// only the successful delivery removed the attempt
	rec = do(t, student, "POST", "/attempts/"+av.AttemptID+"/submit", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("resubmit after success: %d, want 404", rec.Code)
	}
	if store.calls != 2 {
		t.Fatalf("CreateSubmission calls = %d, want 2", store.calls)
	}
}

func TestStartAttemptRejectsClosedWindow(t *testing.T) {
	store := quiz.NewInMemoryStore()
	reg := attempt.NewRegistry()
	teacher := newRouter(store, reg, "t1", "teacher")
	student := newRouter(store, reg, "alice", "student")

	q := sampleQuiz()
	past := time.Now().Add(-time.Hour)
	q.AvailableUntil = &past
	do(t, teacher, "POST", "/quizzes", q, nil)

	rec := do(t, student, "POST", "/quizzes/geo-1/attempts", nil, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("start on closed quiz: %d, want 403", rec.Code)
	}
}

func TestStartAttemptRejectsOverAttemptLimit(t *testing.T) {
	store := quiz.NewInMemoryStore()
	reg := attempt.NewRegistry()
	teacher := newRouter(store, reg, "t1", "teacher")
	student := newRouter(store, reg, "alice", "student")

	q := sampleQuiz()
	q.AttemptsEnabled = true
	q.MaxAttempts = 1
	do(t, teacher, "POST", "/quizzes", q, nil)

	var av struct {
		AttemptID string `json:"_id"`
	}
	rec := do(t, student, "POST", "/quizzes/geo-1/attempts", nil, &av)
	if rec.Code != http.StatusOK {
		t.Fatalf("first attempt: %d", rec.Code)
	}
	rec = do(t, student, "POST", "/attempts/"+av.AttemptID+"/submit", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: %d", rec.Code)
	}

	// the limit is enforced before an attempt opens, not just at submit
	rec = do(t, student, "POST", "/quizzes/geo-1/attempts", nil, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("second attempt: %d, want 403", rec.Code)
	}
	// other students keep their own allowance
	other := newRouter(store, reg, "bob", "student")
	rec = do(t, other, "POST", "/quizzes/geo-1/attempts", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("fresh student attempt: %d", rec.Code)
	}
}
