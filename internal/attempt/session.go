package attempt

import (
	"errors"
	"math/rand"
	"time"

	"github.com/openclass/quizcore/internal/quiz"
)

var (
	// ErrAlreadySubmitted is returned by Submit and by every mutation
	// once the attempt's submitted flag has flipped. First writer wins;
	// the loser of the timer-vs-click race sees this and backs off.
	ErrAlreadySubmitted = errors.New("attempt already submitted")

	// ErrUnknownQuestion is returned when an operation references a
	// question id that is not part of the quiz.
	ErrUnknownQuestion = errors.New("question not part of quiz")
)

// Session is one student's pass through a quiz: the shuffled question
// order, per-question answer records, review marks, cursor position and
// countdown. All state is in-memory and dies with the attempt.
type Session struct {
	Quiz quiz.Quiz // student-safe copy; never carries option correctness

	order     []string // fixed random permutation of question ids, never recomputed
	byID      map[string]quiz.Question
	answers   map[string]*Answer
	current   int
	startedAt time.Time
	submitted bool

	clock Clock
	timer *Timer

	// staged at submit time, cleared only once the grading service
	// accepts it
	pending *quiz.SubmissionRequest
}

type Option func(*sessionConfig)

type sessionConfig struct {
	clock Clock
	rng   *rand.Rand
}

// WithClock injects a fake clock for tests.
func WithClock(c Clock) Option { return func(sc *sessionConfig) { sc.clock = c } }

// WithRand injects a deterministic shuffle source for tests.
func WithRand(r *rand.Rand) Option { return func(sc *sessionConfig) { sc.rng = r } }

// NewSession validates the quiz and builds a fresh attempt. The question
// order is a uniformly random permutation drawn exactly once here; it is
// the index space for every later operation and must never be reshuffled
// mid-attempt or the answered-index bookkeeping desyncs.
func NewSession(q quiz.Quiz, opts ...Option) (*Session, error) {
	if err := quiz.Validate(q); err != nil {
		return nil, err
	}
	cfg := sessionConfig{clock: SystemClock}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.rng == nil {
		cfg.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	s := &Session{
		Quiz:      q.StudentView(),
		byID:      make(map[string]quiz.Question, len(q.Questions)),
		answers:   make(map[string]*Answer, len(q.Questions)),
		clock:     cfg.clock,
		startedAt: cfg.clock.Now(),
	}
	s.order = make([]string, len(q.Questions))
	for i, qq := range q.Questions {
		s.order[i] = qq.ID
		s.byID[qq.ID] = s.Quiz.Questions[i]
	}
	cfg.rng.Shuffle(len(s.order), func(i, j int) {
		s.order[i], s.order[j] = s.order[j], s.order[i]
	})

	limit := 0
	if q.TimeLimitEnabled {
		limit = q.TimeLimitMinutes * 60
	}
	s.timer = NewTimer(limit, s.forceSubmit)
	return s, nil
}

// Order returns the shuffled question ids.
func (s *Session) Order() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s *Session) CurrentIndex() int { return s.current }

func (s *Session) Submitted() bool { return s.submitted }

func (s *Session) StartedAt() time.Time { return s.startedAt }

// Current returns the question at the cursor plus its answer record, if
// the student has interacted with it.
func (s *Session) Current() (quiz.Question, *Answer) {
	id := s.order[s.current]
	return s.byID[id], s.answers[id]
}

// GoTo moves the cursor. Out-of-bounds targets are a no-op rather than
// an error: the UI disables previous/next at the edges, so a stray call
// simply does nothing.
func (s *Session) GoTo(index int) {
	if index < 0 || index >= len(s.order) {
		return
	}
	s.current = index
}

func (s *Session) answerFor(questionID string) (*Answer, error) {
	if s.submitted {
		return nil, ErrAlreadySubmitted
	}
	q, ok := s.byID[questionID]
	if !ok {
		return nil, ErrUnknownQuestion
	}
	a, ok := s.answers[questionID]
	if !ok {
		a = newAnswer(q)
		s.answers[questionID] = a
	}
	return a, nil
}

// SelectOption records a single-choice selection, replacing any prior
// one.
func (s *Session) SelectOption(questionID, option string) error {
	a, err := s.answerFor(questionID)
	if err != nil {
		return err
	}
	if a.qtype != quiz.TypeSingleOption {
		return ErrUnknownQuestion
	}
	a.setSingle(option)
	return nil
}

// ToggleOption flips a multi-choice option in or out of the selection.
func (s *Session) ToggleOption(questionID, option string) error {
	a, err := s.answerFor(questionID)
	if err != nil {
		return err
	}
	if a.qtype != quiz.TypeMultipleOptions {
		return ErrUnknownQuestion
	}
	a.toggleMulti(option)
	return nil
}

// FillBlank writes one positional blank slot.
func (s *Session) FillBlank(questionID string, slot int, text string) error {
	a, err := s.answerFor(questionID)
	if err != nil {
		return err
	}
	if a.qtype != quiz.TypeFillInBlank {
		return ErrUnknownQuestion
	}
	if !a.setBlank(slot, text) {
		return ErrUnknownQuestion
	}
	return nil
}

// ToggleReviewMark flips the revisit flag, independent of whether the
// question has been answered.
func (s *Session) ToggleReviewMark(questionID string) error {
	a, err := s.answerFor(questionID)
	if err != nil {
		return err
	}
	a.ReviewMarked = !a.ReviewMarked
	return nil
}

// Answered reports the answered status of one question.
func (s *Session) Answered(questionID string) bool {
	a, ok := s.answers[questionID]
	return ok && a.Answered()
}

// AnsweredIndexes derives the answered positions in shuffle order. The
// answers map is the source of truth; nothing here is stored.
func (s *Session) AnsweredIndexes() []int {
	var out []int
	for i, id := range s.order {
		if a, ok := s.answers[id]; ok && a.Answered() {
			out = append(out, i)
		}
	}
	return out
}

// ReviewMarkedIndexes derives the review-marked positions in shuffle
// order.
func (s *Session) ReviewMarkedIndexes() []int {
	var out []int
	for i, id := range s.order {
		if a, ok := s.answers[id]; ok && a.ReviewMarked {
			out = append(out, i)
		}
	}
	return out
}

// ElapsedSeconds is the authoritative time-spent figure: wall clock
// since session start, not the countdown remainder, so clock drift or a
// suspended tab cannot understate it.
func (s *Session) ElapsedSeconds() int {
	return int(s.clock.Now().Sub(s.startedAt) / time.Second)
}

// Remaining exposes the countdown for the HH:MM:SS display. Zero when
// no time limit applies.
func (s *Session) Remaining() int { return s.timer.Remaining() }

func (s *Session) TimerState() TimerState { return s.timer.State() }

// Tick advances the countdown by one second. If this tick expires the
// timer, the forced submission built from the current answers is staged
// as the pending request for the event loop to deliver.
func (s *Session) Tick() {
	s.timer.Tick()
}

func (s *Session) forceSubmit() {
	// manual submit may have won the race; Submit stages pending itself
	_, _ = s.Submit()
}

// PendingRequest returns the serialized submission the grading service
// has not yet accepted, or nil. Retries re-deliver this same value, so
// a transient store failure never yields a second logical submission
// and never loses the student's answers.
func (s *Session) PendingRequest() *quiz.SubmissionRequest { return s.pending }

// MarkDelivered records that the grading service accepted the pending
// submission.
func (s *Session) MarkDelivered() { s.pending = nil }

// Submit flips the submitted flag synchronously, before any serialization
// or I/O, so a double-click or a simultaneous timer expiry observes
// submitted == true and gets ErrAlreadySubmitted instead of producing a
// second request. It then freezes the answers into the grading-service
// wire shape.
func (s *Session) Submit() (*quiz.SubmissionRequest, error) {
	if s.submitted {
		return nil, ErrAlreadySubmitted
	}
	s.submitted = true
	s.timer.Stop()

	req := &quiz.SubmissionRequest{
		TimeSpentInSeconds: s.ElapsedSeconds(),
		Questions:          make([]quiz.SubmittedAnswer, 0, len(s.answers)),
	}
	for _, id := range s.order {
		a, ok := s.answers[id]
		if !ok {
			continue
		}
		if !a.Answered() && !a.ReviewMarked {
			continue
		}
		req.Questions = append(req.Questions, a.wire())
	}
	s.pending = req
	return req, nil
}

// Close discards the attempt without submitting: the timer is torn down
// so no expiry callback can fire after teardown.
func (s *Session) Close() {
	s.timer.Stop()
}
