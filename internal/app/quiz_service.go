package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"tutor-quiz-service/internal/domain"
)

// EventAttemptCompleted is the routing key published after a graded attempt.
const EventAttemptCompleted = "quiz.attempt.completed"

// SessionRepository abstracts where live sessions are registered (in-memory, Redis, etc).
type SessionRepository interface {
	Put(session *Session)
	Get(id string) (*Session, bool)
	Delete(id string)
}

// QuizRepository serves quizzes, usually from a cache in front of the backend.
type QuizRepository interface {
	QuizFetcher
	Invalidate(ctx context.Context, req domain.QuizRequest) error
}

// EventPublisher emits domain events to a broker.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// AttemptCompleted is the payload of EventAttemptCompleted.
type AttemptCompleted struct {
	SessionID      string  `json:"session_id"`
	ResultID       string  `json:"result_id"`
	QuizID         string  `json:"quiz_id"`
	StudentID      int     `json:"student_id"`
	Score          int     `json:"score"`
	Percentage     float64 `json:"percentage"`
	IsBestScore    bool    `json:"is_best_score"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
}

// Options tune the sessions created by QuizService.
type Options struct {
	Ticks         TickSource
	FetchRetries  int
	RetryInterval time.Duration
	Logger        *slog.Logger
	Events        EventPublisher
	NewID         func() string
}

// QuizService owns the live sessions and the hooks that run when an attempt completes.
type QuizService struct {
	sessions SessionRepository
	quizzes  QuizRepository
	events   EventPublisher
	logger   *slog.Logger
	newID    func() string
	cfg      SessionConfig
}

func NewQuizService(store SessionRepository, quizzes QuizRepository, submitter Submitter, opts Options) *QuizService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	s := &QuizService{
		sessions: store,
		quizzes:  quizzes,
		events:   opts.Events,
		logger:   logger,
		newID:    newID,
	}
	s.cfg = SessionConfig{
		Fetcher:       quizzes,
		Submitter:     submitter,
		Ticks:         opts.Ticks,
		FetchRetries:  opts.FetchRetries,
		RetryInterval: opts.RetryInterval,
		Logger:        logger,
		OnComplete:    s.attemptCompleted,
	}
	return s
}

// Start loads a quiz into a new session and registers it. A session that
// fails to load is closed and never registered.
func (s *QuizService) Start(ctx context.Context, req domain.QuizRequest) (*Session, error) {
	session := NewSession(s.newID(), req, s.cfg)
	if err := session.Load(ctx); err != nil {
		session.Close()
		s.logger.Warn("quiz session failed to load", "session", session.ID(),
			"subject", req.SubjectID, "topic", req.TopicTitle, "student", req.StudentID, "error", err)
		return nil, err
	}
	s.sessions.Put(session)
	s.logger.Info("quiz session started", "session", session.ID(), "quiz", session.Quiz().ID, "student", req.StudentID)
	return session, nil
}

func (s *QuizService) Get(id string) (*Session, error) {
	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Retake replaces a finished session with a fresh one registered under a new id.
func (s *QuizService) Retake(id string) (*Session, error) {
	session, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	next, err := session.Retake(s.newID())
	if err != nil {
		return nil, err
	}
	s.sessions.Delete(id)
	s.sessions.Put(next)
	s.logger.Info("quiz retake started", "previous", id, "session", next.ID())
	return next, nil
}

// Close tears a session down and forgets it.
func (s *QuizService) Close(id string) {
	session, ok := s.sessions.Get(id)
	if !ok {
		return
	}
	session.Close()
	s.sessions.Delete(id)
}

func (s *QuizService) attemptCompleted(session *Session, result domain.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.quizzes.Invalidate(ctx, session.Request()); err != nil {
		s.logger.Warn("quiz cache invalidation failed", "session", session.ID(), "error", err)
	}
	if s.events == nil {
		return
	}
	event := AttemptCompleted{
		SessionID:      session.ID(),
		ResultID:       result.ID,
		QuizID:         result.QuizID,
		StudentID:      result.StudentID,
		Score:          result.Score,
		Percentage:     result.Percentage,
		IsBestScore:    result.IsBestScore,
		ElapsedSeconds: session.ElapsedSeconds(),
	}
	if err := s.events.Publish(ctx, EventAttemptCompleted, event); err != nil {
		s.logger.Warn("attempt event publish failed", "session", session.ID(), "error", err)
	}
}
