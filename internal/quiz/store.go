package quiz

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openclass/quizcore/internal/scoring"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrAttemptLimit = errors.New("attempt limit reached")
	ErrNotAvailable = errors.New("quiz not currently available")
)

type SubmissionListOpts struct {
	QuizID string
	UserID string
	Limit  int
	Offset int
}

type Store interface {
	PutQuiz(ctx context.Context, q Quiz) error
	// GetQuiz is the student-safe fetch: option correctness stripped,
	// AttemptsCount filled for userID.
	GetQuiz(ctx context.Context, id, userID string) (Quiz, error)
	// GetQuizAuthoritative returns the full quiz with answer keys, for
	// scoring and authoring only. Never serve this to an attempt.
	GetQuizAuthoritative(ctx context.Context, id string) (Quiz, error)
	// CreateSubmission grades req against the authoritative quiz and
	// persists the result. Availability windows and attempt limits are
	// enforced here, server-side.
	CreateSubmission(ctx context.Context, quizID, userID string, req SubmissionRequest) (Submission, error)
	GetSubmission(ctx context.Context, id string) (Submission, error)
	ListSubmissions(ctx context.Context, opts SubmissionListOpts) ([]Submission, error)
	// CountSubmissions reports how many graded attempts userID already
	// has on a quiz, for attempt-limit enforcement.
	CountSubmissions(ctx context.Context, quizID, userID string) (int, error)
}

// PermanentSubmissionError reports whether a failed CreateSubmission
// can never succeed on retry: the quiz is gone, the attempt limit or
// availability window applies, or the submission itself is tampered.
// Transient failures (the store being unreachable) are not permanent;
// the staged request should be re-delivered.
func PermanentSubmissionError(err error) bool {
	var mismatch *scoring.InputMismatchError
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAttemptLimit) ||
		errors.Is(err, ErrNotAvailable) ||
		errors.As(err, &mismatch)
}

// answerKey flattens a question's options into the scoring engine's key
// shape: the single correct text, the correct set, or the positional
// blank values depending on type.
func answerKey(q Question) []string {
	var key []string
	switch q.Type {
	case TypeFillInBlank:
		for _, o := range q.Options {
			key = append(key, o.Text)
		}
	default:
		for _, o := range q.Options {
			if o.IsCorrect {
				key = append(key, o.Text)
			}
		}
	}
	return key
}

func scoringKey(q Quiz) scoring.Key {
	key := scoring.Key{
		SingleQuestionMarks: q.SingleQuestionMarks,
		PassPercentage:      q.PassPercentage,
		Questions:           make([]scoring.Q, 0, len(q.Questions)),
	}
	for _, qq := range q.Questions {
		key.Questions = append(key.Questions, scoring.Q{
			ID:        qq.ID,
			Type:      qq.Type,
			AnswerKey: answerKey(qq),
		})
	}
	return key
}

// grade runs the scoring engine over a submission request and assembles
// the persisted Submission record.
func grade(engine *scoring.Engine, q Quiz, userID string, req SubmissionRequest, now time.Time) (Submission, error) {
	answers := make([]scoring.Answer, 0, len(req.Questions))
	for _, a := range req.Questions {
		answers = append(answers, scoring.Answer{
			QuestionID:      a.QuestionID,
			SelectedOption:  a.SelectedOption,
			SelectedOptions: a.SelectedOptions,
			ReviewMarked:    a.ReviewMarked,
		})
	}
	res, err := engine.Score(scoringKey(q), answers)
	if err != nil {
		return Submission{}, err
	}
	sub := Submission{
		ID:                  uuid.NewString(),
		QuizID:              q.ID,
		UserID:              userID,
		MarksObtained:       res.MarksObtained,
		TotalMarks:          res.TotalMarks,
		Percentage:          res.Percentage,
		Result:              res.Result,
		CorrectAnswers:      res.CorrectAnswers,
		IncorrectAnswers:    res.IncorrectAnswers,
		UnattemptedAnswers:  res.UnattemptedAnswers,
		ReviewMarkedAnswers: res.ReviewMarkedAnswers,
		TimeSpentInSeconds:  req.TimeSpentInSeconds,
		SubmittedOn:         now,
	}
	for _, qr := range res.Questions {
		sub.Answers = append(sub.Answers, AnswerResult{
			QuestionID:   qr.QuestionID,
			IsCorrect:    qr.IsCorrect,
			Unattempted:  qr.Unattempted,
			ReviewMarked: qr.ReviewMarked,
		})
	}
	return sub, nil
}

// CheckWindow enforces the availability instants; it runs both when an
// attempt starts and again at submission time.
func CheckWindow(q Quiz, now time.Time) error {
	if q.AvailableFrom != nil && now.Before(*q.AvailableFrom) {
		return ErrNotAvailable
	}
	if q.AvailableUntil != nil && now.After(*q.AvailableUntil) {
		return ErrNotAvailable
	}
	return nil
}

// --- In-memory store, used by tests and the offline gateway mode ---

type memoryStore struct {
	mu          sync.RWMutex
	quizzes     map[string]Quiz
	submissions map[string]Submission
	engine      *scoring.Engine
	now         func() time.Time
}

func NewInMemoryStore() Store {
	return &memoryStore{
		quizzes:     map[string]Quiz{},
		submissions: map[string]Submission{},
		engine:      scoring.NewEngine(),
		now:         time.Now,
	}
}

func (m *memoryStore) PutQuiz(_ context.Context, q Quiz) error {
	if err := Validate(q); err != nil {
		return err
	}
	q.TotalMarks = q.ComputedTotalMarks()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizzes[q.ID] = q
	return nil
}

func (m *memoryStore) GetQuiz(ctx context.Context, id, userID string) (Quiz, error) {
	full, err := m.GetQuizAuthoritative(ctx, id)
	if err != nil {
		return Quiz{}, err
	}
	out := full.StudentView()
	used, err := m.CountSubmissions(ctx, id, userID)
	if err != nil {
		return Quiz{}, err
	}
	out.AttemptsCount = used
	return out, nil
}

func (m *memoryStore) CountSubmissions(_ context.Context, quizID, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	used := 0
	for _, s := range m.submissions {
		if s.QuizID == quizID && s.UserID == userID {
			used++
		}
	}
	return used, nil
}

func (m *memoryStore) GetQuizAuthoritative(_ context.Context, id string) (Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quizzes[id]
	if !ok {
		return Quiz{}, ErrNotFound
	}
	return q, nil
}

func (m *memoryStore) CreateSubmission(ctx context.Context, quizID, userID string, req SubmissionRequest) (Submission, error) {
	q, err := m.GetQuizAuthoritative(ctx, quizID)
	if err != nil {
		return Submission{}, err
	}
	now := m.now()
	if err := CheckWindow(q, now); err != nil {
		return Submission{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if q.AttemptsEnabled {
		used := 0
		for _, s := range m.submissions {
			if s.QuizID == quizID && s.UserID == userID {
				used++
			}
		}
		if used >= q.MaxAttempts {
			return Submission{}, ErrAttemptLimit
		}
	}
	sub, err := grade(m.engine, q, userID, req, now)
	if err != nil {
		return Submission{}, err
	}
	m.submissions[sub.ID] = sub
	return sub, nil
}

func (m *memoryStore) GetSubmission(_ context.Context, id string) (Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.submissions[id]
	if !ok {
		return Submission{}, ErrNotFound
	}
	return s, nil
}

func (m *memoryStore) ListSubmissions(_ context.Context, opts SubmissionListOpts) ([]Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Submission
	for _, s := range m.submissions {
		if opts.QuizID != "" && s.QuizID != opts.QuizID {
			continue
		}
		if opts.UserID != "" && s.UserID != opts.UserID {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedOn.After(out[j].SubmittedOn) })
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}
