package quiz

import (
	"fmt"
	"strings"
)

// MalformedQuestionError blocks a session from starting: the quiz carries
// a question that violates an authoring invariant.
type MalformedQuestionError struct {
	QuestionID string
	Reason     string
}

func (e *MalformedQuestionError) Error() string {
	if e.QuestionID == "" {
		return "malformed quiz: " + e.Reason
	}
	return fmt.Sprintf("malformed question %s: %s", e.QuestionID, e.Reason)
}

// Validate checks the authoring invariants every attempt relies on:
// each question has at least one option, single-choice questions have
// exactly one correct option, multi-choice questions at least two, and
// fill-in-the-blank text has one blank marker per option.
func Validate(q Quiz) error {
	if len(q.Questions) == 0 {
		return &MalformedQuestionError{Reason: "quiz has no questions"}
	}
	seen := make(map[string]struct{}, len(q.Questions))
	for _, qq := range q.Questions {
		if qq.ID == "" {
			return &MalformedQuestionError{QuestionID: qq.ID, Reason: "missing id"}
		}
		if _, dup := seen[qq.ID]; dup {
			return &MalformedQuestionError{QuestionID: qq.ID, Reason: "duplicate id"}
		}
		seen[qq.ID] = struct{}{}
		if len(qq.Options) == 0 {
			return &MalformedQuestionError{QuestionID: qq.ID, Reason: "no options"}
		}
		correct := 0
		for _, o := range qq.Options {
			if o.IsCorrect {
				correct++
			}
		}
		switch qq.Type {
		case TypeSingleOption:
			if correct != 1 {
				return &MalformedQuestionError{QuestionID: qq.ID, Reason: fmt.Sprintf("single-option question must have exactly one correct option, got %d", correct)}
			}
		case TypeMultipleOptions:
			if correct < 2 {
				return &MalformedQuestionError{QuestionID: qq.ID, Reason: fmt.Sprintf("multi-option question must have at least two correct options, got %d", correct)}
			}
		case TypeFillInBlank:
			if n := strings.Count(qq.Text, BlankMarker); n != len(qq.Options) {
				return &MalformedQuestionError{QuestionID: qq.ID, Reason: fmt.Sprintf("blank markers (%d) do not match options (%d)", n, len(qq.Options))}
			}
		default:
			return &MalformedQuestionError{QuestionID: qq.ID, Reason: "unknown question type " + qq.Type}
		}
	}
	return nil
}
