package attempt_test

import (
	"context"
	"errors"
	"testing"

	"github.com/openclass/quizcore/internal/attempt"
	"github.com/openclass/quizcore/internal/quiz"
)

// fakeDeliverer records every delivery and fails the first failFirst calls.
type fakeDeliverer struct {
	failFirst int
	calls     []quiz.SubmissionRequest
}

var errStoreDown = errors.New("store down")

func (f *fakeDeliverer) deliver(_ context.Context, quizID, userID string, req quiz.SubmissionRequest) (quiz.Submission, error) {
	f.calls = append(f.calls, req)
	if len(f.calls) <= f.failFirst {
		return quiz.Submission{}, errStoreDown
	}
	return quiz.Submission{ID: "sub-1", QuizID: quizID, UserID: userID}, nil
}

func TestRegistryOwnership(t *testing.T) {
	reg := attempt.NewRegistry()
	id, _, err := reg.Start(testQuiz(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.With(id, "alice", func(s *attempt.Session) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if err := reg.With(id, "bob", func(s *attempt.Session) error { return nil }); !errors.Is(err, attempt.ErrAttemptNotFound) {
		t.Fatalf("foreign user got %v, want ErrAttemptNotFound", err)
	}
	fd := &fakeDeliverer{}
	if _, err := reg.Submit(context.Background(), id, "bob", fd.deliver); !errors.Is(err, attempt.ErrAttemptNotFound) {
		t.Fatalf("foreign submit got %v, want ErrAttemptNotFound", err)
	}
	reg.Remove(id)
	if err := reg.With(id, "alice", func(s *attempt.Session) error { return nil }); !errors.Is(err, attempt.ErrAttemptNotFound) {
		t.Fatalf("removed attempt got %v, want ErrAttemptNotFound", err)
	}
}

func TestRegistryTickAutoDelivers(t *testing.T) {
	reg := attempt.NewRegistry()
	id, _, err := reg.Start(timedQuiz(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	err = reg.With(id, "alice", func(s *attempt.Session) error {
		return s.SelectOption("q1", "Paris")
	})
	if err != nil {
		t.Fatal(err)
	}

	fd := &fakeDeliverer{}
	var delivered []attempt.DeliveryResult
	for i := 0; i < 60; i++ {
		delivered = append(delivered, reg.Tick(context.Background(), fd.deliver)...)
	}
	if len(delivered) != 1 {
		t.Fatalf("ticker delivered %d submissions, want 1", len(delivered))
	}
	d := delivered[0]
	if d.AttemptID != id || d.Err != nil || d.Submission.QuizID != "quiz-1" || d.Submission.UserID != "alice" {
		t.Fatalf("delivery result %+v", d)
	}
	if len(fd.calls) != 1 || len(fd.calls[0].Questions) != 1 {
		t.Fatalf("delivered request %+v", fd.calls)
	}
	// delivered attempts are gone; further ticks never re-deliver
	if err := reg.With(id, "alice", func(s *attempt.Session) error { return nil }); !errors.Is(err, attempt.ErrAttemptNotFound) {
		t.Fatalf("delivered attempt still registered: %v", err)
	}
	for i := 0; i < 10; i++ {
		if extra := reg.Tick(context.Background(), fd.deliver); len(extra) != 0 {
			t.Fatal("expired attempt delivered twice")
		}
	}
}

func TestRegistryTickRetriesFailedDelivery(t *testing.T) {
	reg := attempt.NewRegistry()
	id, _, err := reg.Start(timedQuiz(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	_ = reg.With(id, "alice", func(s *attempt.Session) error {
		return s.SelectOption("q1", "Paris")
	})

	fd := &fakeDeliverer{failFirst: 1}
	for i := 0; i < 60; i++ {
		reg.Tick(context.Background(), fd.deliver)
	}
	if len(fd.calls) != 1 {
		t.Fatalf("delivery attempts after expiry = %d, want 1", len(fd.calls))
	}
	// the failed attempt stays registered and the next tick retries it
	if err := reg.With(id, "alice", func(s *attempt.Session) error { return nil }); err != nil {
		t.Fatalf("attempt discarded after transient failure: %v", err)
	}
	results := reg.Tick(context.Background(), fd.deliver)
	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("retry results %+v", results)
	}
	if len(fd.calls) != 2 || len(fd.calls[1].Questions) != 1 || fd.calls[1].Questions[0].QuestionID != "q1" {
		t.Fatalf("retry must re-deliver the same request, got %+v", fd.calls)
	}
	if err := reg.With(id, "alice", func(s *attempt.Session) error { return nil }); !errors.Is(err, attempt.ErrAttemptNotFound) {
		t.Fatal("attempt still registered after successful retry")
	}
}

func TestRegistrySubmitRetriesAfterTransientFailure(t *testing.T) {
	reg := attempt.NewRegistry()
	id, _, err := reg.Start(testQuiz(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	_ = reg.With(id, "alice", func(s *attempt.Session) error {
		return s.SelectOption("q1", "Paris")
	})

	fd := &fakeDeliverer{failFirst: 1}
	if _, err := reg.Submit(context.Background(), id, "alice", fd.deliver); !errors.Is(err, errStoreDown) {
		t.Fatalf("first submit got %v, want store error", err)
	}
	// the attempt survives the failure and a retry delivers the same request
	sub, err := reg.Submit(context.Background(), id, "alice", fd.deliver)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if sub.ID != "sub-1" {
		t.Fatalf("retry submission %+v", sub)
	}
	if len(fd.calls) != 2 {
		t.Fatalf("delivery attempts = %d, want 2", len(fd.calls))
	}
	if fd.calls[0].Questions[0].QuestionID != fd.calls[1].Questions[0].QuestionID {
		t.Fatal("retry delivered a different request")
	}
	// only a successful delivery removes the attempt
	if _, err := reg.Submit(context.Background(), id, "alice", fd.deliver); !errors.Is(err, attempt.ErrAttemptNotFound) {
		t.Fatalf("resubmit after success got %v, want ErrAttemptNotFound", err)
	}
}
