package memory

import (
	"context"
	"sync"

	"tutor-quiz-service/internal/domain"
)

// ResultStore keeps graded attempts in memory.
type ResultStore struct {
	mu      sync.RWMutex
	results []domain.Result
}

func NewResultStore() *ResultStore {
	return &ResultStore{}
}

func (s *ResultStore) SaveResult(_ context.Context, result domain.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

// BestResult returns the highest score; ties go to the earliest submission.
func (s *ResultStore) BestResult(_ context.Context, studentID int, quizID string) (domain.Result, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best domain.Result
	found := false
	for _, r := range s.results {
		if r.StudentID != studentID || r.QuizID != quizID {
			continue
		}
		if !found || r.Score > best.Score || (r.Score == best.Score && r.SubmittedAt.Before(best.SubmittedAt)) {
			best = r
			found = true
		}
	}
	return best, found, nil
}
