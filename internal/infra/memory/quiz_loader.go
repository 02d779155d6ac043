package memory

import (
	"context"
	"sort"

	"tutor-quiz-service/internal/domain"
)

// StaticQuizLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticQuizLoader struct {
	quizzes map[string]domain.Quiz
}

func NewStaticQuizLoader(quizzes map[string]domain.Quiz) *StaticQuizLoader {
	return &StaticQuizLoader{quizzes: quizzes}
}

// LoadQuiz matches on subject and topic; static quizzes are shared by every student.
func (l *StaticQuizLoader) LoadQuiz(_ context.Context, req domain.QuizRequest) (domain.Quiz, error) {
	ids := make([]string, 0, len(l.quizzes))
	for id := range l.quizzes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		quiz := l.quizzes[id]
		if quiz.SubjectID == req.SubjectID && quiz.TopicTitle == req.TopicTitle {
			return quiz, nil
		}
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

func (l *StaticQuizLoader) LoadQuizByID(_ context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := l.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}
