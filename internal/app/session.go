package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"tutor-quiz-service/internal/domain"
)

// QuizFetcher loads the quiz a student asked for.
type QuizFetcher interface {
	FetchQuiz(ctx context.Context, req domain.QuizRequest) (domain.Quiz, error)
}

// SessionConfig carries the collaborators of a session. A retake reuses it.
type SessionConfig struct {
	Fetcher       QuizFetcher
	Submitter     Submitter
	Ticks         TickSource
	FetchRetries  int
	RetryInterval time.Duration
	Logger        *slog.Logger
	// OnComplete runs outside the session lock after a result is applied.
	OnComplete func(*Session, domain.Result)
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.Ticks == nil {
		c.Ticks = IntervalTicker(time.Second)
	}
	if c.FetchRetries < 0 {
		c.FetchRetries = 0
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 200 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Session drives a single attempt: Loading -> Answering -> ConfirmingSubmit ->
// Submitting -> Results, with Errored reachable from Loading and Submitting.
// The elapsed ticker runs from Answering until Close, across every phase.
type Session struct {
	id         string
	request    domain.QuizRequest
	cfg        SessionConfig
	controller *SubmissionController
	logger     *slog.Logger

	mu          sync.Mutex
	phase       domain.Phase
	loading     bool
	quiz        domain.Quiz
	answers     *AnswerVector
	current     int
	elapsed     int
	pending     *domain.Submission
	result      *domain.Result
	review      []domain.ReviewRow
	err         error
	closed      bool
	done        chan struct{}
	stopTicks   func()
	subscribers map[chan domain.SessionView]struct{}
}

// NewSession returns a session in the Loading phase.
func NewSession(id string, req domain.QuizRequest, cfg SessionConfig) *Session {
	cfg = cfg.withDefaults()
	logger := cfg.Logger.With("session", id)
	return &Session{
		id:          id,
		request:     req,
		cfg:         cfg,
		controller:  NewSubmissionController(cfg.Submitter, logger),
		logger:      logger,
		phase:       domain.PhaseLoading,
		answers:     NewAnswerVector(nil),
		done:        make(chan struct{}),
		subscribers: make(map[chan domain.SessionView]struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Request() domain.QuizRequest { return s.request }

// Load fetches the quiz with bounded retries and enters Answering.
// On failure the session is Errored and the error wraps domain.ErrFetchFailed.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	if err := s.requirePhaseLocked("load", domain.PhaseLoading); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.loading {
		s.mu.Unlock()
		return fmt.Errorf("%w: load already in progress", domain.ErrInvalidPhase)
	}
	s.loading = true
	s.mu.Unlock()

	quiz, err := s.fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if s.closed {
		return domain.ErrSessionClosed
	}
	if err != nil {
		s.phase = domain.PhaseErrored
		s.err = fmt.Errorf("%w: %w", domain.ErrFetchFailed, err)
		s.broadcastLocked()
		return s.err
	}
	s.startLocked(quiz)
	return nil
}

func (s *Session) fetch(ctx context.Context) (domain.Quiz, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.cfg.RetryInterval
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.cfg.FetchRetries)), ctx)

	attempt := 0
	return backoff.RetryWithData(func() (domain.Quiz, error) {
		attempt++
		quiz, err := s.cfg.Fetcher.FetchQuiz(ctx, s.request)
		if err != nil {
			if errors.Is(err, domain.ErrQuizNotFound) || errors.Is(err, domain.ErrInvalidQuiz) {
				return domain.Quiz{}, backoff.Permanent(err)
			}
			s.logger.Warn("quiz fetch failed", "attempt", attempt, "error", err)
			return domain.Quiz{}, err
		}
		if err := quiz.Validate(); err != nil {
			return domain.Quiz{}, backoff.Permanent(err)
		}
		return quiz, nil
	}, b)
}

func (s *Session) startLocked(quiz domain.Quiz) {
	s.quiz = quiz
	s.answers = NewAnswerVector(quiz.Questions)
	s.current = 0
	s.elapsed = 0
	s.phase = domain.PhaseAnswering

	ticks, stop := s.cfg.Ticks()
	s.stopTicks = stop
	go s.runTicker(ticks, s.done)

	s.broadcastLocked()
}

func (s *Session) runTicker(ticks <-chan time.Time, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case _, ok := <-ticks:
			if !ok {
				return
			}
			s.tick()
		}
	}
}

func (s *Session) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.elapsed++
	s.broadcastLocked()
}

// SelectAnswer records option for question qIndex. An out-of-range index is a
// caller defect: it is logged and returned as a *domain.RangeError.
func (s *Session) SelectAnswer(qIndex, option int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requirePhaseLocked("select answer", domain.PhaseAnswering); err != nil {
		return err
	}
	if err := s.answers.Set(qIndex, option); err != nil {
		s.logger.Error("invalid answer rejected", "question", qIndex, "option", option, "error", err)
		return err
	}
	s.broadcastLocked()
	return nil
}

func (s *Session) GoNext() error {
	return s.navigate("next", func(cur int) int { return cur + 1 })
}

func (s *Session) GoPrevious() error {
	return s.navigate("previous", func(cur int) int { return cur - 1 })
}

// JumpTo moves to index, clamped to the question range.
func (s *Session) JumpTo(index int) error {
	return s.navigate("jump", func(int) int { return index })
}

func (s *Session) navigate(op string, next func(int) int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requirePhaseLocked(op, domain.PhaseAnswering); err != nil {
		return err
	}
	s.current = clamp(next(s.current), 0, s.answers.Len()-1)
	s.broadcastLocked()
	return nil
}

func clamp(v, lo, hi int) int {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}

// RequestSubmit enters ConfirmingSubmit. Unanswered questions only produce a warning.
func (s *Session) RequestSubmit() (domain.SubmitWarning, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requirePhaseLocked("request submit", domain.PhaseAnswering); err != nil {
		return domain.SubmitWarning{}, err
	}
	s.pending = nil
	s.phase = domain.PhaseConfirmingSubmit
	s.broadcastLocked()
	return s.warningLocked(), nil
}

// CancelSubmit returns to Answering and drops any retained submission.
func (s *Session) CancelSubmit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requirePhaseLocked("cancel submit", domain.PhaseConfirmingSubmit); err != nil {
		return err
	}
	s.pending = nil
	s.phase = domain.PhaseAnswering
	s.broadcastLocked()
	return nil
}

// ReofferSubmit moves a session whose submit failed back to ConfirmingSubmit,
// keeping the retained submission so a retry sends identical answers.
func (s *Session) ReofferSubmit() (domain.SubmitWarning, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requirePhaseLocked("reoffer submit", domain.PhaseErrored); err != nil {
		return domain.SubmitWarning{}, err
	}
	if s.pending == nil {
		return domain.SubmitWarning{}, fmt.Errorf("%w: no submission to retry", domain.ErrInvalidPhase)
	}
	s.phase = domain.PhaseConfirmingSubmit
	s.err = nil
	s.broadcastLocked()
	return s.warningLocked(), nil
}

// ConfirmSubmit issues the submit call. See SubmissionController.Submit.
func (s *Session) ConfirmSubmit(ctx context.Context) (*domain.Result, error) {
	return s.controller.Submit(ctx, s)
}

func (s *Session) beginSubmit() (domain.Submission, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.Submission{}, false, domain.ErrSessionClosed
	}
	// a repeated click after the grade arrived is a duplicate too
	if s.phase == domain.PhaseSubmitting || s.phase == domain.PhaseResults {
		return domain.Submission{}, false, nil
	}
	if err := s.requirePhaseLocked("confirm submit", domain.PhaseConfirmingSubmit); err != nil {
		return domain.Submission{}, false, err
	}
	if s.pending == nil {
		s.pending = &domain.Submission{
			QuizID:    s.quiz.ID,
			StudentID: s.request.StudentID,
			Answers:   s.answers.ToSubmission(),
		}
	}
	s.phase = domain.PhaseSubmitting
	s.broadcastLocked()

	submission := *s.pending
	submission.Answers = append([]int(nil), s.pending.Answers...)
	return submission, true, nil
}

func (s *Session) failSubmit(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.phase = domain.PhaseErrored
	s.err = err
	s.broadcastLocked()
	return true
}

func (s *Session) completeSubmit(result domain.Result) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.result = &result
	s.review = Project(result)
	s.pending = nil
	s.err = nil
	s.phase = domain.PhaseResults
	s.broadcastLocked()
	hook := s.cfg.OnComplete
	s.mu.Unlock()

	if hook != nil {
		hook(s, result)
	}
	return true
}

// Retake closes this session and returns a fresh one over the same quiz,
// already in Answering. Nothing from this attempt carries over.
func (s *Session) Retake(id string) (*Session, error) {
	s.mu.Lock()
	if err := s.requirePhaseLocked("retake", domain.PhaseResults); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	quiz := s.quiz
	// closing under the same lock makes a concurrent retake see ErrSessionClosed
	s.closeLocked()
	s.mu.Unlock()

	next := NewSession(id, s.request, s.cfg)
	next.mu.Lock()
	next.startLocked(quiz)
	next.mu.Unlock()
	return next, nil
}

// Close tears the session down: the ticker stops, subscribers are closed and
// any submit still in flight will be discarded when it returns.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Session) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	if s.stopTicks != nil {
		s.stopTicks()
	}
	for ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = nil
}

// Done is closed once the session is torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) requirePhaseLocked(op string, want domain.Phase) error {
	if s.closed {
		return domain.ErrSessionClosed
	}
	if s.phase != want {
		return fmt.Errorf("%w: %s during %s", domain.ErrInvalidPhase, op, s.phase)
	}
	return nil
}

func (s *Session) warningLocked() domain.SubmitWarning {
	total := s.answers.Len()
	return domain.SubmitWarning{Unanswered: total - s.answers.AnsweredCount(), Total: total}
}

func (s *Session) Phase() domain.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Session) ElapsedSeconds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

func (s *Session) Answers() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers.Slots()
}

func (s *Session) AnsweredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers.AnsweredCount()
}

// ProgressPercentage is answered / total * 100.
func (s *Session) ProgressPercentage() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked()
}

func (s *Session) progressLocked() float64 {
	total := s.answers.Len()
	if total == 0 {
		return 0
	}
	return float64(s.answers.AnsweredCount()) / float64(total) * 100
}

func (s *Session) IsLastQuestion() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers.Len() > 0 && s.current == s.answers.Len()-1
}

func (s *Session) CanSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.phase == domain.PhaseAnswering
}

func (s *Session) Quiz() domain.Quiz {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quiz
}

// Result returns the graded attempt once in Results.
func (s *Session) Result() (domain.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return domain.Result{}, false
	}
	return *s.result, true
}

func (s *Session) Review() []domain.ReviewRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ReviewRow(nil), s.review...)
}

// PendingSubmission is the submission retained after a failed submit.
func (s *Session) PendingSubmission() (domain.Submission, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return domain.Submission{}, false
	}
	return *s.pending, true
}

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) View() domain.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() domain.SessionView {
	total := s.answers.Len()
	answered := s.answers.AnsweredCount()
	view := domain.SessionView{
		SessionID:      s.id,
		QuizID:         s.quiz.ID,
		SubjectName:    s.quiz.SubjectName,
		TopicTitle:     s.quiz.TopicTitle,
		Phase:          s.phase,
		CurrentIndex:   s.current,
		Total:          total,
		ElapsedSeconds: s.elapsed,
		Answers:        s.answers.Slots(),
		AnsweredCount:  answered,
		Unanswered:     total - answered,
		Progress:       s.progressLocked(),
		IsLastQuestion: total > 0 && s.current == total-1,
		CanSubmit:      !s.closed && s.phase == domain.PhaseAnswering,
		Badge:          BadgeForQuiz(s.quiz),
	}
	if s.current < len(s.quiz.Questions) {
		q := s.quiz.Questions[s.current]
		if s.result == nil {
			q.CorrectOptionIndex = domain.Unanswered
			q.Explanation = ""
		}
		view.Current = &q
	}
	if s.result != nil {
		result := *s.result
		view.Result = &result
		view.Review = append([]domain.ReviewRow(nil), s.review...)
		view.Badge = BadgeForResult(s.quiz, result)
	}
	if s.err != nil {
		view.Error = s.err.Error()
	}
	return view
}

// Subscribe returns a channel of snapshots, starting with the current one.
// The channel closes on cancel or when the session is closed.
func (s *Session) Subscribe() (<-chan domain.SessionView, func()) {
	ch := make(chan domain.SessionView, 8)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	ch <- s.viewLocked()
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
	}
	return ch, cancel
}

func (s *Session) broadcastLocked() {
	if len(s.subscribers) == 0 {
		return
	}
	view := s.viewLocked()
	for ch := range s.subscribers {
		select {
		case ch <- view:
		default:
			// drop the oldest snapshot so a slow reader never blocks the session
			select {
			case <-ch:
			default:
			}
			ch <- view
		}
	}
}
