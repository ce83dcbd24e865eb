package attempt_test

import (
	"testing"
	"time"

	"github.com/openclass/quizcore/internal/attempt"
	"github.com/openclass/quizcore/internal/quiz"
)

func timedQuiz() quiz.Quiz {
	q := testQuiz()
	q.TimeLimitEnabled = true
	q.TimeLimitMinutes = 1
	return q
}

func TestTimerIdleWithoutLimit(t *testing.T) {
	s := newSession(t, testQuiz())
	if s.TimerState() != attempt.TimerIdle {
		t.Fatal("untimed quiz must have an idle timer")
	}
	for i := 0; i < 5; i++ {
		s.Tick()
	}
	if s.Submitted() || s.PendingRequest() != nil {
		t.Fatal("ticks on an idle timer must never force a submission")
	}
}

func TestTimerExpiryForcesSubmitOnce(t *testing.T) {
	clk := newFakeClock()
	s := newSession(t, timedQuiz(), attempt.WithClock(clk))
	if got := s.Remaining(); got != 60 {
		t.Fatalf("remaining = %d, want 60", got)
	}
	_ = s.SelectOption("q1", "Paris")

	for i := 0; i < 60; i++ {
		clk.advance(time.Second)
		s.Tick()
		if i < 59 && s.PendingRequest() != nil {
			t.Fatalf("forced submit fired early, at tick %d", i+1)
		}
	}
	if !s.Submitted() {
		t.Fatal("session not submitted after expiry")
	}
	if s.TimerState() != attempt.TimerExpired {
		t.Fatal("timer not in Expired state")
	}
	forced := s.PendingRequest()
	if forced == nil || len(forced.Questions) != 1 || forced.Questions[0].QuestionID != "q1" {
		t.Fatalf("forced submission must carry the answers held at expiry, got %+v", forced)
	}

	// once delivered, later ticks never stage another submission
	s.MarkDelivered()
	for i := 0; i < 10; i++ {
		s.Tick()
	}
	if s.PendingRequest() != nil {
		t.Fatal("expired timer staged a second submission")
	}
	if s.Remaining() != 0 {
		t.Fatalf("remaining = %d after expiry, want 0", s.Remaining())
	}
}

func TestManualSubmitWinsOverTimer(t *testing.T) {
	s := newSession(t, timedQuiz())
	req, err := s.Submit()
	if err != nil {
		t.Fatal(err)
	}
	// drive the countdown past where expiry would have been
	for i := 0; i < 120; i++ {
		s.Tick()
	}
	if s.TimerState() == attempt.TimerExpired {
		t.Fatal("stopped timer still expired")
	}
	if s.PendingRequest() != req {
		t.Fatal("ticks after manual submit replaced the staged request")
	}
}

func TestCloseStopsTimer(t *testing.T) {
	s := newSession(t, timedQuiz())
	s.Close()
	for i := 0; i < 120; i++ {
		s.Tick()
	}
	if s.Submitted() || s.PendingRequest() != nil {
		t.Fatal("abandoned session must not submit")
	}
}

func TestNoEditsAfterExpiry(t *testing.T) {
	s := newSession(t, timedQuiz())
	for i := 0; i < 60; i++ {
		s.Tick()
	}
	if err := s.SelectOption("q1", "Paris"); err != attempt.ErrAlreadySubmitted {
		t.Fatalf("got %v, want ErrAlreadySubmitted", err)
	}
}
