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

// ResultStore persists graded attempts in quiz_results.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) SaveResult(ctx context.Context, result domain.Result) error {
	answers, err := json.Marshal(result.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO quiz_results
		(id, quiz_id, student_id, answers, score, percentage, is_best, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		result.ID, result.QuizID, result.StudentID, answers, result.Score, result.Percentage,
		result.IsBestScore, result.SubmittedAt)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// BestResult returns the highest score; ties go to the earliest submission.
func (s *ResultStore) BestResult(ctx context.Context, studentID int, quizID string) (domain.Result, bool, error) {
	var (
		result domain.Result
		raw    []byte
	)
	err := s.pool.QueryRow(ctx, `SELECT id, quiz_id, student_id, answers, score, percentage, is_best, submitted_at
		FROM quiz_results
		WHERE student_id=$1 AND quiz_id=$2
		ORDER BY score DESC, submitted_at ASC
		LIMIT 1`, studentID, quizID).
		Scan(&result.ID, &result.QuizID, &result.StudentID, &raw, &result.Score, &result.Percentage,
			&result.IsBestScore, &result.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Result{}, false, nil
	}
	if err != nil {
		return domain.Result{}, false, fmt.Errorf("best result: %w", err)
	}
	if err := json.Unmarshal(raw, &result.Answers); err != nil {
		return domain.Result{}, false, fmt.Errorf("unmarshal answers: %w", err)
	}
	return result, true, nil
}
