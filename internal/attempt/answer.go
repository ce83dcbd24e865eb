package attempt

import (
	"strings"

	"github.com/openclass/quizcore/internal/quiz"
)

// Answer is the mutable per-question record for one attempt. The value
// fields form a tagged union keyed by the question type: exactly one of
// single / multi / blanks is ever populated, so a single-choice question
// can never hold a multi-choice selection.
type Answer struct {
	questionID   string
	qtype        string
	single       string
	multi        []string
	blanks       []string
	ReviewMarked bool
}

func newAnswer(q quiz.Question) *Answer {
	a := &Answer{questionID: q.ID, qtype: q.Type}
	if q.Type == quiz.TypeFillInBlank {
		a.blanks = make([]string, len(q.Options))
	}
	return a
}

// setSingle replaces the selection entirely: picking a new option always
// deselects the prior one, there is no toggle-off.
func (a *Answer) setSingle(opt string) {
	a.single = opt
}

// toggleMulti flips membership of opt in the selected set, preserving
// first-selection order for the remaining options.
func (a *Answer) toggleMulti(opt string) {
	for i, s := range a.multi {
		if s == opt {
			a.multi = append(a.multi[:i], a.multi[i+1:]...)
			return
		}
	}
	a.multi = append(a.multi, opt)
}

// setBlank writes one positional slot; whitespace-only text clears that
// slot without touching the others.
func (a *Answer) setBlank(slot int, text string) bool {
	if slot < 0 || slot >= len(a.blanks) {
		return false
	}
	if strings.TrimSpace(text) == "" {
		a.blanks[slot] = ""
	} else {
		a.blanks[slot] = text
	}
	return true
}

// Answered reports whether this record counts as an attempt: a selection
// for single-choice, a non-empty set for multi-choice, at least one
// filled slot for fill-in-the-blank. Note a partially filled blank
// question is "answered" here yet still scores incorrect.
func (a *Answer) Answered() bool {
	switch a.qtype {
	case quiz.TypeSingleOption:
		return a.single != ""
	case quiz.TypeMultipleOptions:
		return len(a.multi) > 0
	case quiz.TypeFillInBlank:
		for _, s := range a.blanks {
			if s != "" {
				return true
			}
		}
	}
	return false
}

func (a *Answer) Selected() string { return a.single }

func (a *Answer) SelectedOptions() []string {
	out := make([]string, len(a.multi))
	copy(out, a.multi)
	return out
}

func (a *Answer) Blanks() []string {
	out := make([]string, len(a.blanks))
	copy(out, a.blanks)
	return out
}

// wire serializes the record into the grading-service shape. Empty
// records still serialize when review-marked so the flag survives.
func (a *Answer) wire() quiz.SubmittedAnswer {
	w := quiz.SubmittedAnswer{QuestionID: a.questionID, ReviewMarked: a.ReviewMarked}
	switch a.qtype {
	case quiz.TypeSingleOption:
		w.SelectedOption = a.single
	case quiz.TypeMultipleOptions:
		w.SelectedOptions = a.SelectedOptions()
	case quiz.TypeFillInBlank:
		w.SelectedOptions = a.Blanks()
	}
	return w
}
