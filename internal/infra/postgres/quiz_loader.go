package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"tutor-quiz-service/internal/domain"
)

const quizColumns = `id, subject_id, subject_name, topic_title, difficulty_level, questions`

// QuizLoader loads generated quizzes from Postgres.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

// LoadQuiz returns the newest quiz generated for the student on a topic.
func (l *QuizLoader) LoadQuiz(ctx context.Context, req domain.QuizRequest) (domain.Quiz, error) {
	row := l.pool.QueryRow(ctx, `SELECT `+quizColumns+` FROM quizzes
		WHERE student_id=$1 AND subject_id=$2 AND topic_title=$3
		ORDER BY created_at DESC LIMIT 1`, req.StudentID, req.SubjectID, req.TopicTitle)
	return scanQuiz(row)
}

func (l *QuizLoader) LoadQuizByID(ctx context.Context, quizID string) (domain.Quiz, error) {
	row := l.pool.QueryRow(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE id=$1`, quizID)
	return scanQuiz(row)
}

func scanQuiz(row pgx.Row) (domain.Quiz, error) {
	var (
		quiz domain.Quiz
		raw  []byte
	)
	err := row.Scan(&quiz.ID, &quiz.SubjectID, &quiz.SubjectName, &quiz.TopicTitle, &quiz.DifficultyLevel, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	if err := json.Unmarshal(raw, &quiz.Questions); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal questions: %w", err)
	}
	return quiz, nil
}
