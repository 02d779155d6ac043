package domain

import "time"

// Unanswered marks a question slot with no option selected.
const Unanswered = -1

// Difficulty levels produced by the content generator.
const (
	DifficultyFoundation   = "Foundation"
	DifficultyIntermediate = "Intermediate"
	DifficultyAdvanced     = "Advanced"
	DifficultyExpert       = "Expert"
)

// QuizRequest identifies the quiz a student wants to take.
type QuizRequest struct {
	SubjectID  int    `json:"subject_id"`
	TopicTitle string `json:"topic_title"`
	StudentID  int    `json:"student_id"`
}

// Question models a single-choice question. CorrectOptionIndex is only
// meaningful once it is echoed back in a Result.
type Question struct {
	ID                 string   `json:"id"`
	Prompt             string   `json:"question" validate:"required"`
	Options            []string `json:"options" validate:"min=2"`
	CorrectOptionIndex int      `json:"correct_answer" validate:"gte=0"`
	Explanation        string   `json:"explanation"`
}

// Quiz is an immutable question set fetched for one student.
type Quiz struct {
	ID              string     `json:"quiz_id" validate:"required"`
	SubjectID       int        `json:"subject_id"`
	SubjectName     string     `json:"subject_name"`
	TopicTitle      string     `json:"topic_title"`
	DifficultyLevel string     `json:"difficulty_level"`
	Questions       []Question `json:"questions" validate:"min=1,dive"`
	BestScore       *int       `json:"best_score,omitempty"`
	BestPercentage  *float64   `json:"best_percentage,omitempty"`
	HasAttempted    bool       `json:"has_attempted"`
}

// Submission is what gets sent to the grader. Unanswered slots carry -1.
type Submission struct {
	QuizID    string `json:"quiz_id"`
	StudentID int    `json:"student_id"`
	Answers   []int  `json:"answers"`
}

// Result is the graded attempt returned by the grader.
type Result struct {
	ID          string     `json:"id"`
	QuizID      string     `json:"quiz_id"`
	StudentID   int        `json:"student_id"`
	Answers     []int      `json:"answers"`
	Score       int        `json:"score"`
	Percentage  float64    `json:"percentage"`
	SubmittedAt time.Time  `json:"submitted_at"`
	Questions   []Question `json:"questions"`
	IsBestScore bool       `json:"is_best_score"`
}

// ReviewRow is the per-question view derived from a Result.
type ReviewRow struct {
	Question        Question `json:"question"`
	UserAnswerIndex int      `json:"userAnswerIndex"`
	IsCorrect       bool     `json:"isCorrect"`
	WasAnswered     bool     `json:"wasAnswered"`
}

// AttemptBadge labels prior and current attempts using only server-provided fields.
type AttemptBadge struct {
	HasAttempted   bool     `json:"hasAttempted"`
	BestScore      *int     `json:"bestScore,omitempty"`
	BestPercentage *float64 `json:"bestPercentage,omitempty"`
	IsBestScore    bool     `json:"isBestScore"`
	Label          string   `json:"label,omitempty"`
}
