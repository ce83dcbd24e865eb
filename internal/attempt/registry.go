package attempt

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/openclass/quizcore/internal/quiz"
)

var ErrAttemptNotFound = errors.New("attempt not found")

// hosted pairs a session with the identity that owns it. The mutex
// serializes handler calls and timer ticks for one attempt, standing in
// for the single event queue the session logic assumes.
type hosted struct {
	mu     sync.Mutex
	s      *Session
	userID string
}

// Registry holds the live attempt sessions of a gateway process.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*hosted
	opts     []Option
}

func NewRegistry(opts ...Option) *Registry {
	return &Registry{sessions: make(map[string]*hosted), opts: opts}
}

// Start normalizes the quiz into a fresh session and registers it under
// a new attempt id.
func (r *Registry) Start(q quiz.Quiz, userID string) (string, *Session, error) {
	s, err := NewSession(q, r.opts...)
	if err != nil {
		return "", nil, err
	}
	id := uuid.NewString()
	r.mu.Lock()
	r.sessions[id] = &hosted{s: s, userID: userID}
	r.mu.Unlock()
	return id, s, nil
}

// With runs fn against one session under its lock. The owner check keeps
// a student out of someone else's attempt.
func (r *Registry) With(attemptID, userID string, fn func(*Session) error) error {
	r.mu.RLock()
	h, ok := r.sessions[attemptID]
	r.mu.RUnlock()
	if !ok || h.userID != userID {
		return ErrAttemptNotFound
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return fn(h.s)
}

// Remove drops a finished or abandoned attempt and tears its timer down.
func (r *Registry) Remove(attemptID string) {
	r.mu.Lock()
	h, ok := r.sessions[attemptID]
	delete(r.sessions, attemptID)
	r.mu.Unlock()
	if ok {
		h.mu.Lock()
		h.s.Close()
		h.mu.Unlock()
	}
}

// Deliverer hands a staged submission to the grading store.
type Deliverer func(ctx context.Context, quizID, userID string, req quiz.SubmissionRequest) (quiz.Submission, error)

// Submit flips the session's submitted flag — or picks up the request
// staged by an earlier submit whose delivery failed — and hands that
// request to deliver, all under the attempt's lock so concurrent
// submits and timer ticks serialize. The staged request is cleared only
// once deliver succeeds: a transient store failure leaves the attempt
// registered and retryable with the same logical submission.
func (r *Registry) Submit(ctx context.Context, attemptID, userID string, deliver Deliverer) (quiz.Submission, error) {
	r.mu.RLock()
	h, ok := r.sessions[attemptID]
	r.mu.RUnlock()
	if !ok || h.userID != userID {
		return quiz.Submission{}, ErrAttemptNotFound
	}
	h.mu.Lock()
	if !h.s.Submitted() {
		if _, err := h.s.Submit(); err != nil {
			h.mu.Unlock()
			return quiz.Submission{}, err
		}
	}
	req := h.s.PendingRequest()
	if req == nil {
		// submitted and already accepted, nothing to re-deliver
		h.mu.Unlock()
		return quiz.Submission{}, ErrAlreadySubmitted
	}
	sub, err := deliver(ctx, h.s.Quiz.ID, h.userID, *req)
	if err != nil {
		h.mu.Unlock()
		return quiz.Submission{}, err
	}
	h.s.MarkDelivered()
	h.mu.Unlock()
	r.Remove(attemptID)
	return sub, nil
}

// DeliveryResult reports one delivery attempted during Tick.
type DeliveryResult struct {
	AttemptID  string
	Submission quiz.Submission
	Err        error
}

// Tick advances every live countdown by one second and delivers staged
// submissions: attempts that just ran out of time plus any whose
// earlier delivery failed. Delivered attempts are removed; failures
// stay registered so the next tick retries, unless the caller deems the
// error permanent and removes them itself.
func (r *Registry) Tick(ctx context.Context, deliver Deliverer) []DeliveryResult {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	var out []DeliveryResult
	for _, id := range ids {
		r.mu.RLock()
		h, ok := r.sessions[id]
		r.mu.RUnlock()
		if !ok {
			continue
		}
		h.mu.Lock()
		h.s.Tick()
		req := h.s.PendingRequest()
		if req == nil {
			h.mu.Unlock()
			continue
		}
		sub, err := deliver(ctx, h.s.Quiz.ID, h.userID, *req)
		if err == nil {
			h.s.MarkDelivered()
		}
		h.mu.Unlock()
		if err == nil {
			r.Remove(id)
		}
		out = append(out, DeliveryResult{AttemptID: id, Submission: sub, Err: err})
	}
	return out
}
