package domain

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the structural rules a quiz must satisfy before it can be taken.
func (q Quiz) Validate() error {
	if err := validate.Struct(q); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQuiz, err)
	}
	for i, question := range q.Questions {
		if question.CorrectOptionIndex >= len(question.Options) {
			return fmt.Errorf("%w: question %d correct option %d outside %d options",
				ErrInvalidQuiz, i, question.CorrectOptionIndex, len(question.Options))
		}
	}
	return nil
}
