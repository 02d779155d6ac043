package domain

import "fmt"

// Phase is the state of a quiz attempt.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseAnswering
	PhaseConfirmingSubmit
	PhaseSubmitting
	PhaseResults
	PhaseErrored
)

var phaseNames = map[Phase]string{
	PhaseLoading:          "loading",
	PhaseAnswering:        "answering",
	PhaseConfirmingSubmit: "confirmingSubmit",
	PhaseSubmitting:       "submitting",
	PhaseResults:          "results",
	PhaseErrored:          "errored",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for phase, name := range phaseNames {
		if name == string(text) {
			*p = phase
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// SubmitWarning is shown while confirming a submission.
type SubmitWarning struct {
	Unanswered int `json:"unanswered"`
	Total      int `json:"total"`
}

// SessionView is a read-only snapshot of a session for clients.
type SessionView struct {
	SessionID      string       `json:"sessionId"`
	QuizID         string       `json:"quizId,omitempty"`
	SubjectName    string       `json:"subjectName,omitempty"`
	TopicTitle     string       `json:"topicTitle,omitempty"`
	Phase          Phase        `json:"phase"`
	CurrentIndex   int          `json:"currentIndex"`
	Current        *Question    `json:"current,omitempty"`
	Total          int          `json:"total"`
	ElapsedSeconds int          `json:"elapsedSeconds"`
	Answers        []int        `json:"answers"`
	AnsweredCount  int          `json:"answeredCount"`
	Unanswered     int          `json:"unanswered"`
	Progress       float64      `json:"progress"`
	IsLastQuestion bool         `json:"isLastQuestion"`
	CanSubmit      bool         `json:"canSubmit"`
	Result         *Result      `json:"result,omitempty"`
	Review         []ReviewRow  `json:"review,omitempty"`
	Badge          AttemptBadge `json:"badge"`
	Error          string       `json:"error,omitempty"`
}
