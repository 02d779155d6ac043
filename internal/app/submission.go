package app

import (
	"context"
	"fmt"
	"log/slog"

	"tutor-quiz-service/internal/domain"
)

// Submitter sends a submission to the grader. It is not safe to retry blindly:
// every call is recorded as an attempt.
type Submitter interface {
	SubmitQuiz(ctx context.Context, submission domain.Submission) (domain.Result, error)
}

// SubmissionController turns a confirmed session into exactly one submit call.
type SubmissionController struct {
	submitter Submitter
	logger    *slog.Logger
}

func NewSubmissionController(submitter Submitter, logger *slog.Logger) *SubmissionController {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmissionController{submitter: submitter, logger: logger}
}

// Submit requires the session to be confirming. A call made while another
// submit is in flight, or after the result arrived, is swallowed and returns (nil, nil).
func (c *SubmissionController) Submit(ctx context.Context, s *Session) (*domain.Result, error) {
	submission, started, err := s.beginSubmit()
	if err != nil {
		return nil, err
	}
	if !started {
		c.logger.Debug("duplicate submit ignored", "session", s.ID())
		return nil, nil
	}

	result, err := c.submitter.SubmitQuiz(ctx, submission)
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrSubmitFailed, err)
		if !s.failSubmit(err) {
			c.logger.Debug("late submit failure discarded", "session", s.ID(), "error", err)
			return nil, domain.ErrSessionClosed
		}
		c.logger.Warn("quiz submit failed", "session", s.ID(), "quiz", submission.QuizID, "error", err)
		return nil, err
	}

	if !s.completeSubmit(result) {
		c.logger.Debug("late submit result discarded", "session", s.ID(), "result", result.ID)
		return nil, domain.ErrSessionClosed
	}
	c.logger.Info("quiz submitted", "session", s.ID(), "quiz", submission.QuizID,
		"score", result.Score, "percentage", result.Percentage)
	return &result, nil
}
