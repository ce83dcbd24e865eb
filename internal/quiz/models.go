package quiz

import "time"

// Question types supported by the attempt core.
const (
	TypeSingleOption    = "single_option"
	TypeMultipleOptions = "multiple_options"
	TypeFillInBlank     = "fill_in_blank"
)

// BlankMarker is the placeholder token inside fill-in-the-blank question
// text. Each occurrence corresponds positionally to one option.
const BlankMarker = "___"

type Option struct {
	Text      string `json:"optionText"`
	IsCorrect bool   `json:"isCorrect,omitempty"`
}

type Question struct {
	ID      string   `json:"_id"`
	Text    string   `json:"questionText"`
	Type    string   `json:"questionType"` // single_option | multiple_options | fill_in_blank
	Options []Option `json:"options"`
}

type Quiz struct {
	ID          string     `json:"_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Questions   []Question `json:"questions"`

	SingleQuestionMarks int `json:"singleQuestionMarks"`
	TotalMarks          int `json:"totalMarks"`
	PassPercentage      int `json:"passPercentage"`

	TimeLimitEnabled bool `json:"timeLimitEnabled"`
	TimeLimitMinutes int  `json:"timeLimit,omitempty"`

	AttemptsEnabled bool `json:"attemptsEnabled"`
	MaxAttempts     int  `json:"attempts,omitempty"`
	AttemptsCount   int  `json:"attemptsCount"` // for the requesting user, filled at fetch time

	AvailableFrom  *time.Time `json:"availableFrom,omitempty"`
	AvailableUntil *time.Time `json:"availableUntil,omitempty"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
}

// ComputedTotalMarks is the authoritative total; the stored TotalMarks
// field is never trusted from clients.
func (q Quiz) ComputedTotalMarks() int {
	return q.SingleQuestionMarks * len(q.Questions)
}

// StudentView returns a deep copy safe to serve to a student taking the
// quiz: option correctness is withheld so answers cannot leak to the
// browser. The authoritative copy stays server-side for scoring.
func (q Quiz) StudentView() Quiz {
	out := q
	out.TotalMarks = q.ComputedTotalMarks()
	out.Questions = make([]Question, len(q.Questions))
	for i, qq := range q.Questions {
		cp := qq
		cp.Options = make([]Option, len(qq.Options))
		for j, o := range qq.Options {
			cp.Options[j] = Option{Text: o.Text}
		}
		out.Questions[i] = cp
	}
	return out
}

// SubmittedAnswer is the wire shape for one answered question inside a
// submission request. Exactly one of SelectedOption / SelectedOptions is
// meaningful depending on the question type; for fill-in-the-blank,
// SelectedOptions is positional (index i = i-th blank marker).
type SubmittedAnswer struct {
	QuestionID      string   `json:"_id"`
	SelectedOption  string   `json:"selectedOption,omitempty"`
	SelectedOptions []string `json:"selectedOptions,omitempty"`
	ReviewMarked    bool     `json:"reviewMarked,omitempty"`
}

// SubmissionRequest is the body POSTed to the grading endpoint.
type SubmissionRequest struct {
	TimeSpentInSeconds int               `json:"timeSpentInSeconds"`
	Questions          []SubmittedAnswer `json:"questions"`
}

// AnswerResult carries per-question flags for the review UI.
type AnswerResult struct {
	QuestionID   string `json:"_id"`
	IsCorrect    bool   `json:"isCorrect"`
	Unattempted  bool   `json:"unattempted"`
	ReviewMarked bool   `json:"reviewMarked,omitempty"`
}

// Submission is a graded attempt as persisted and served to report views.
type Submission struct {
	ID     string `json:"_id"`
	QuizID string `json:"quizId"`
	UserID string `json:"userId"`

	MarksObtained int    `json:"marksObtained"`
	TotalMarks    int    `json:"totalMarks"`
	Percentage    int    `json:"percentage"`
	Result        string `json:"result"` // pass | fail

	CorrectAnswers      int `json:"correctAnswers"`
	IncorrectAnswers    int `json:"incorrectAnswers"`
	UnattemptedAnswers  int `json:"unattemptedAnswers"`
	ReviewMarkedAnswers int `json:"reviewMarkedAnswers"`

	Answers []AnswerResult `json:"answers"`

	TimeSpentInSeconds int       `json:"timeSpentInSeconds"`
	SubmittedOn        time.Time `json:"submittedOn"`
}
