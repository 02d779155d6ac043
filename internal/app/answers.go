package app

import "tutor-quiz-service/internal/domain"

// AnswerVector holds the current choice per question. Its length is fixed at
// construction; Set replaces one slot and never resizes.
type AnswerVector struct {
	slots   []int
	options []int
}

// NewAnswerVector returns a vector with every slot unanswered.
func NewAnswerVector(questions []domain.Question) *AnswerVector {
	v := &AnswerVector{
		slots:   make([]int, len(questions)),
		options: make([]int, len(questions)),
	}
	for i, q := range questions {
		v.slots[i] = domain.Unanswered
		v.options[i] = len(q.Options)
	}
	return v
}

func (v *AnswerVector) Len() int {
	return len(v.slots)
}

// Get returns the option chosen for a question, or domain.Unanswered.
func (v *AnswerVector) Get(index int) int {
	if index < 0 || index >= len(v.slots) {
		return domain.Unanswered
	}
	return v.slots[index]
}

// Set records an answer. Re-answering overwrites the previous choice.
func (v *AnswerVector) Set(index, option int) error {
	if index < 0 || index >= len(v.slots) {
		return &domain.RangeError{Field: "question", Index: index, Limit: len(v.slots)}
	}
	if option < 0 || option >= v.options[index] {
		return &domain.RangeError{Field: "option", Index: option, Limit: v.options[index]}
	}
	v.slots[index] = option
	return nil
}

func (v *AnswerVector) AnsweredCount() int {
	count := 0
	for _, slot := range v.slots {
		if slot != domain.Unanswered {
			count++
		}
	}
	return count
}

// ToSubmission maps unanswered slots to -1 and copies the rest unchanged.
func (v *AnswerVector) ToSubmission() []int {
	out := make([]int, len(v.slots))
	for i, slot := range v.slots {
		if slot == domain.Unanswered {
			out[i] = -1
			continue
		}
		out[i] = slot
	}
	return out
}

// Slots returns a copy of the raw slots.
func (v *AnswerVector) Slots() []int {
	out := make([]int, len(v.slots))
	copy(out, v.slots)
	return out
}
