package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a quiz session is not registered.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionClosed is returned when acting on a session that was torn down.
	ErrSessionClosed = errors.New("quiz session closed")
	// ErrQuizNotFound indicates the quiz content could not be located.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrInvalidQuiz indicates fetched quiz content is malformed.
	ErrInvalidQuiz = errors.New("invalid quiz")
	// ErrFetchFailed wraps any failure to load a quiz.
	ErrFetchFailed = errors.New("quiz fetch failed")
	// ErrSubmitFailed wraps any failure of the submit call.
	ErrSubmitFailed = errors.New("quiz submit failed")
	// ErrInvalidPhase is returned when an operation is not allowed in the current phase.
	ErrInvalidPhase = errors.New("operation not allowed in current phase")
	// ErrAnswerCountMismatch is returned by the grader when answers do not cover every question.
	ErrAnswerCountMismatch = errors.New("answer count does not match question count")
	// ErrValidation is matched by every RangeError.
	ErrValidation = errors.New("validation error")
)

// RangeError reports an index outside its allowed range.
type RangeError struct {
	Field string
	Index int
	Limit int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s index %d out of range [0,%d)", e.Field, e.Index, e.Limit)
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *RangeError) Is(target error) bool {
	return target == ErrValidation
}
