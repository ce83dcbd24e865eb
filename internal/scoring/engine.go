package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Q is a minimal view of a question needed for scoring. AnswerKey holds
// the correct option texts: one entry for single_option, the correct set
// for multiple_options, and the positional blank values for
// fill_in_blank. Keep this in sync with the quiz store's bridge.
type Q struct {
	ID        string
	Type      string // single_option | multiple_options | fill_in_blank
	AnswerKey []string
}

// Answer is a minimal view of one submitted answer.
type Answer struct {
	QuestionID      string
	SelectedOption  string
	SelectedOptions []string
	ReviewMarked    bool
}

// Key is the authoritative quiz material the engine scores against.
type Key struct {
	Questions           []Q
	SingleQuestionMarks int
	PassPercentage      int
}

// Result is the full scored outcome of one attempt. Correct, incorrect
// and unattempted partition the question set exactly; the review-marked
// count is orthogonal to that partition.
type Result struct {
	MarksObtained int
	TotalMarks    int
	Percentage    int
	Result        string // pass | fail

	CorrectAnswers      int
	IncorrectAnswers    int
	UnattemptedAnswers  int
	ReviewMarkedAnswers int

	Questions []QuestionResult

	TimeSpentInSeconds int
	SubmittedOn        time.Time
}

type QuestionResult struct {
	QuestionID   string
	IsCorrect    bool
	Unattempted  bool
	ReviewMarked bool
}

// InputMismatchError indicates a tampered or stale submission: an answer
// references a question absent from the quiz, or the quiz has no
// questions at all.
type InputMismatchError struct {
	QuestionID string
	Reason     string
}

func (e *InputMismatchError) Error() string {
	if e.QuestionID != "" {
		return fmt.Sprintf("scoring input mismatch on question %s: %s", e.QuestionID, e.Reason)
	}
	return "scoring input mismatch: " + e.Reason
}

type outcome int

const (
	unattempted outcome = iota
	incorrect
	correct
)

// strategy scores a single question's answer.
type strategy interface {
	grade(q Q, a Answer) outcome
}

// Engine routes by question type to the correct strategy.
type Engine struct {
	strategies map[string]strategy
}

func NewEngine() *Engine {
	return &Engine{
		strategies: map[string]strategy{
			"single_option":    singleOptionStrategy{},
			"multiple_options": multiOptionStrategy{},
			"fill_in_blank":    fillBlankStrategy{},
		},
	}
}

// Score is a pure function over the answer key and the submitted answer
// set: identical input always yields an identical Result, so a retried
// submission grades the same. TimeSpentInSeconds and SubmittedOn are
// left zero for the caller to fill.
func (e *Engine) Score(key Key, answers []Answer) (Result, error) {
	if len(key.Questions) == 0 {
		return Result{}, &InputMismatchError{Reason: "quiz has no questions"}
	}
	known := make(map[string]struct{}, len(key.Questions))
	for _, q := range key.Questions {
		known[q.ID] = struct{}{}
	}
	byQ := make(map[string]Answer, len(answers))
	for _, a := range answers {
		if _, ok := known[a.QuestionID]; !ok {
			return Result{}, &InputMismatchError{QuestionID: a.QuestionID, Reason: "not part of quiz"}
		}
		byQ[a.QuestionID] = a
	}

	res := Result{
		TotalMarks: key.SingleQuestionMarks * len(key.Questions),
		Questions:  make([]QuestionResult, 0, len(key.Questions)),
	}
	for _, q := range key.Questions {
		a, has := byQ[q.ID]
		out := unattempted
		if has {
			s, ok := e.strategies[q.Type]
			if !ok {
				return Result{}, &InputMismatchError{QuestionID: q.ID, Reason: "unknown question type " + q.Type}
			}
			out = s.grade(q, a)
		}
		qr := QuestionResult{QuestionID: q.ID, ReviewMarked: a.ReviewMarked}
		switch out {
		case correct:
			res.CorrectAnswers++
			qr.IsCorrect = true
		case incorrect:
			res.IncorrectAnswers++
		default:
			res.UnattemptedAnswers++
			qr.Unattempted = true
		}
		if a.ReviewMarked {
			res.ReviewMarkedAnswers++
		}
		res.Questions = append(res.Questions, qr)
	}

	res.MarksObtained = res.CorrectAnswers * key.SingleQuestionMarks
	if res.TotalMarks > 0 {
		res.Percentage = int(math.Round(float64(res.MarksObtained) / float64(res.TotalMarks) * 100))
	}
	if res.Percentage >= key.PassPercentage {
		res.Result = "pass"
	} else {
		res.Result = "fail"
	}
	return res, nil
}

// --- Strategies ---

type singleOptionStrategy struct{}

func (singleOptionStrategy) grade(q Q, a Answer) outcome {
	if a.SelectedOption == "" {
		return unattempted
	}
	if len(q.AnswerKey) > 0 && a.SelectedOption == q.AnswerKey[0] {
		return correct
	}
	return incorrect
}

type multiOptionStrategy struct{}

func (multiOptionStrategy) grade(q Q, a Answer) outcome {
	if len(a.SelectedOptions) == 0 {
		return unattempted
	}
	// exact set equality, no partial credit
	if setEqual(toSet(a.SelectedOptions), toSet(q.AnswerKey)) {
		return correct
	}
	return incorrect
}

type fillBlankStrategy struct{}

func (fillBlankStrategy) grade(q Q, a Answer) outcome {
	filled := 0
	for _, s := range a.SelectedOptions {
		if strings.TrimSpace(s) != "" {
			filled++
		}
	}
	if filled == 0 {
		return unattempted
	}
	if len(a.SelectedOptions) != len(q.AnswerKey) {
		return incorrect
	}
	// every positional slot must match exactly, case-sensitive
	for i, want := range q.AnswerKey {
		if a.SelectedOptions[i] != want {
			return incorrect
		}
	}
	return correct
}

// helpers

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
