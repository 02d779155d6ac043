package app

import (
	"fmt"

	"tutor-quiz-service/internal/domain"
)

// Project derives one review row per echoed question. Missing answers count as unanswered.
func Project(result domain.Result) []domain.ReviewRow {
	rows := make([]domain.ReviewRow, len(result.Questions))
	for i, q := range result.Questions {
		answer := domain.Unanswered
		if i < len(result.Answers) {
			answer = result.Answers[i]
		}
		rows[i] = domain.ReviewRow{
			Question:        q,
			UserAnswerIndex: answer,
			IsCorrect:       answer == q.CorrectOptionIndex,
			WasAnswered:     answer != domain.Unanswered,
		}
	}
	return rows
}

// BadgeForQuiz labels a quiz before it is taken. Best values come from the grader only.
func BadgeForQuiz(quiz domain.Quiz) domain.AttemptBadge {
	badge := domain.AttemptBadge{
		HasAttempted:   quiz.HasAttempted,
		BestScore:      quiz.BestScore,
		BestPercentage: quiz.BestPercentage,
	}
	switch {
	case !quiz.HasAttempted:
		badge.Label = "Not attempted yet"
	case quiz.BestScore != nil && quiz.BestPercentage != nil:
		badge.Label = fmt.Sprintf("Best: %d/%d (%.0f%%)", *quiz.BestScore, len(quiz.Questions), *quiz.BestPercentage)
	case quiz.BestScore != nil:
		badge.Label = fmt.Sprintf("Best: %d/%d", *quiz.BestScore, len(quiz.Questions))
	default:
		badge.Label = "Attempted"
	}
	return badge
}

// BadgeForResult labels a finished attempt.
func BadgeForResult(quiz domain.Quiz, result domain.Result) domain.AttemptBadge {
	badge := BadgeForQuiz(quiz)
	badge.HasAttempted = true
	badge.IsBestScore = result.IsBestScore
	if result.IsBestScore {
		badge.Label = "New best score!"
	}
	return badge
}
