package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/openclass/quizcore/internal/scoring"
)

// SQLStore persists quizzes and graded submissions over database/sql,
// working against both the sqlite and postgres schemas.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
	engine *scoring.Engine
	now    func() time.Time
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver, engine: scoring.NewEngine(), now: time.Now}
}

func (s *SQLStore) PutQuiz(ctx context.Context, q Quiz) error {
	if err := Validate(q); err != nil {
		return err
	}
	q.TotalMarks = q.ComputedTotalMarks()
	payload, err := json.Marshal(q)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO quizzes (id,name,payload_json,created_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, payload_json=EXCLUDED.payload_json`,
		q.ID, q.Name, string(payload), s.now().Unix())
	return err
}

func (s *SQLStore) GetQuiz(ctx context.Context, id, userID string) (Quiz, error) {
	full, err := s.GetQuizAuthoritative(ctx, id)
	if err != nil {
		return Quiz{}, err
	}
	out := full.StudentView()
	used, err := s.CountSubmissions(ctx, id, userID)
	if err != nil {
		return Quiz{}, err
	}
	out.AttemptsCount = used
	return out, nil
}

func (s *SQLStore) CountSubmissions(ctx context.Context, quizID, userID string) (int, error) {
	var used int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions WHERE quiz_id=$1 AND user_id=$2`, quizID, userID).Scan(&used)
	return used, err
}

func (s *SQLStore) GetQuizAuthoritative(ctx context.Context, id string) (Quiz, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload_json FROM quizzes WHERE id=$1`, id)
	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Quiz{}, ErrNotFound
		}
		return Quiz{}, err
	}
	var q Quiz
	if err := json.Unmarshal([]byte(payload), &q); err != nil {
		return Quiz{}, err
	}
	return q, nil
}

func (s *SQLStore) CreateSubmission(ctx context.Context, quizID, userID string, req SubmissionRequest) (Submission, error) {
	q, err := s.GetQuizAuthoritative(ctx, quizID)
	if err != nil {
		return Submission{}, err
	}
	now := s.now()
	if err := CheckWindow(q, now); err != nil {
		return Submission{}, err
	}
	if q.AttemptsEnabled {
		used, err := s.CountSubmissions(ctx, quizID, userID)
		if err != nil {
			return Submission{}, err
		}
		if used >= q.MaxAttempts {
			return Submission{}, ErrAttemptLimit
		}
	}
	sub, err := grade(s.engine, q, userID, req, now)
	if err != nil {
		return Submission{}, err
	}
	answers, _ := json.Marshal(sub.Answers)
	_, err = s.db.ExecContext(ctx, `INSERT INTO submissions
		(id,quiz_id,user_id,marks_obtained,total_marks,percentage,result,
		 correct_answers,incorrect_answers,unattempted_answers,review_marked_answers,
		 answers_json,time_spent_sec,submitted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		sub.ID, sub.QuizID, sub.UserID, sub.MarksObtained, sub.TotalMarks, sub.Percentage, sub.Result,
		sub.CorrectAnswers, sub.IncorrectAnswers, sub.UnattemptedAnswers, sub.ReviewMarkedAnswers,
		string(answers), sub.TimeSpentInSeconds, sub.SubmittedOn.Unix())
	if err != nil {
		return Submission{}, err
	}
	return sub, nil
}

func (s *SQLStore) GetSubmission(ctx context.Context, id string) (Submission, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,quiz_id,user_id,marks_obtained,total_marks,percentage,result,
		correct_answers,incorrect_answers,unattempted_answers,review_marked_answers,
		answers_json,time_spent_sec,submitted_at FROM submissions WHERE id=$1`, id)
	sub, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Submission{}, ErrNotFound
		}
		return Submission{}, err
	}
	return sub, nil
}

func (s *SQLStore) ListSubmissions(ctx context.Context, opts SubmissionListOpts) ([]Submission, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id,quiz_id,user_id,marks_obtained,total_marks,percentage,result,
		correct_answers,incorrect_answers,unattempted_answers,review_marked_answers,
		answers_json,time_spent_sec,submitted_at FROM submissions
		WHERE ($1 = '' OR quiz_id = $1) AND ($2 = '' OR user_id = $2)
		ORDER BY submitted_at DESC LIMIT $3 OFFSET $4`,
		opts.QuizID, opts.UserID, limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (Submission, error) {
	var sub Submission
	var answers string
	var submittedAt int64
	if err := row.Scan(&sub.ID, &sub.QuizID, &sub.UserID, &sub.MarksObtained, &sub.TotalMarks,
		&sub.Percentage, &sub.Result, &sub.CorrectAnswers, &sub.IncorrectAnswers,
		&sub.UnattemptedAnswers, &sub.ReviewMarkedAnswers, &answers, &sub.TimeSpentInSeconds,
		&submittedAt); err != nil {
		return Submission{}, err
	}
	if err := json.Unmarshal([]byte(answers), &sub.Answers); err != nil {
		sub.Answers = nil
	}
	sub.SubmittedOn = time.Unix(submittedAt, 0).UTC()
	return sub, nil
}
