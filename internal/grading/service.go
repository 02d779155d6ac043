// Package grading is the in-process grading backend used when no remote
// backend is configured. It owns scoring and the best-score decision.
package grading

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"tutor-quiz-service/internal/domain"
)

// QuizLoader reads stored quizzes.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, req domain.QuizRequest) (domain.Quiz, error)
	LoadQuizByID(ctx context.Context, quizID string) (domain.Quiz, error)
}

// ResultStore persists graded attempts.
type ResultStore interface {
	SaveResult(ctx context.Context, result domain.Result) error
	// BestResult returns the highest score, ties going to the earliest submission.
	BestResult(ctx context.Context, studentID int, quizID string) (domain.Result, bool, error)
}

type Service struct {
	quizzes QuizLoader
	results ResultStore
	now     func() time.Time
	newID   func() string
}

func NewService(quizzes QuizLoader, results ResultStore) *Service {
	return &Service{
		quizzes: quizzes,
		results: results,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// NewServiceWithClock is test-only for deterministic timestamps.
func NewServiceWithClock(quizzes QuizLoader, results ResultStore, now func() time.Time) *Service {
	s := NewService(quizzes, results)
	s.now = now
	return s
}

// LoadQuiz returns the quiz decorated with the student's best prior attempt.
func (s *Service) LoadQuiz(ctx context.Context, req domain.QuizRequest) (domain.Quiz, error) {
	quiz, err := s.quizzes.LoadQuiz(ctx, req)
	if err != nil {
		return domain.Quiz{}, err
	}
	best, ok, err := s.results.BestResult(ctx, req.StudentID, quiz.ID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("best result: %w", err)
	}
	quiz.HasAttempted = ok
	quiz.BestScore = nil
	quiz.BestPercentage = nil
	if ok {
		score, percentage := best.Score, best.Percentage
		quiz.BestScore = &score
		quiz.BestPercentage = &percentage
	}
	return quiz, nil
}

// SubmitQuiz grades a submission and records it. Unanswered (-1) never matches.
func (s *Service) SubmitQuiz(ctx context.Context, sub domain.Submission) (domain.Result, error) {
	quiz, err := s.quizzes.LoadQuizByID(ctx, sub.QuizID)
	if err != nil {
		return domain.Result{}, err
	}
	if len(sub.Answers) != len(quiz.Questions) {
		return domain.Result{}, fmt.Errorf("%w: got %d, want %d",
			domain.ErrAnswerCountMismatch, len(sub.Answers), len(quiz.Questions))
	}

	score := 0
	for i, q := range quiz.Questions {
		if sub.Answers[i] != domain.Unanswered && sub.Answers[i] == q.CorrectOptionIndex {
			score++
		}
	}

	prior, attempted, err := s.results.BestResult(ctx, sub.StudentID, sub.QuizID)
	if err != nil {
		return domain.Result{}, fmt.Errorf("best result: %w", err)
	}

	result := domain.Result{
		ID:          s.newID(),
		QuizID:      sub.QuizID,
		StudentID:   sub.StudentID,
		Answers:     append([]int(nil), sub.Answers...),
		Score:       score,
		Percentage:  percentage(score, len(quiz.Questions)),
		SubmittedAt: s.now().UTC(),
		Questions:   quiz.Questions,
		IsBestScore: !attempted || score > prior.Score,
	}
	if err := s.results.SaveResult(ctx, result); err != nil {
		return domain.Result{}, fmt.Errorf("save result: %w", err)
	}
	return result, nil
}

func percentage(score, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(score)/float64(total)*10000) / 100
}
