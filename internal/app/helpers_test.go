package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"tutor-quiz-service/internal/app"
	"tutor-quiz-service/internal/domain"
)

var errBackendDown = errors.New("backend down")

func threeQuestionQuiz() domain.Quiz {
	return domain.Quiz{
		ID:              "quiz-1",
		SubjectID:       1,
		SubjectName:     "Mathematics",
		TopicTitle:      "Fractions",
		DifficultyLevel: domain.DifficultyFoundation,
		Questions: []domain.Question{
			{ID: "q1", Prompt: "1/2 + 1/2 = ?", Options: []string{"0", "1", "2"}, CorrectOptionIndex: 1, Explanation: "Two halves make one."},
			{ID: "q2", Prompt: "1/4 of 8 = ?", Options: []string{"2", "4", "6"}, CorrectOptionIndex: 0, Explanation: "8 / 4 = 2."},
			{ID: "q3", Prompt: "3/3 = ?", Options: []string{"1", "3", "0"}, CorrectOptionIndex: 0, Explanation: "Anything over itself is one."},
		},
	}
}

func testRequest() domain.QuizRequest {
	return domain.QuizRequest{SubjectID: 1, TopicTitle: "Fractions", StudentID: 7}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFetcher struct {
	mu    sync.Mutex
	quiz  domain.Quiz
	errs  []error
	calls int
}

func (f *fakeFetcher) FetchQuiz(_ context.Context, _ domain.QuizRequest) (domain.Quiz, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= len(f.errs) && f.errs[f.calls-1] != nil {
		return domain.Quiz{}, f.errs[f.calls-1]
	}
	return f.quiz, nil
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeSubmitter grades against the quiz it was given. A non-nil gate blocks
// every call until it is closed.
type fakeSubmitter struct {
	mu    sync.Mutex
	quiz  domain.Quiz
	gate  chan struct{}
	errs  []error
	calls []domain.Submission
}

func (f *fakeSubmitter) SubmitQuiz(_ context.Context, sub domain.Submission) (domain.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, sub)
	n := len(f.calls)
	gate := f.gate
	var err error
	if n <= len(f.errs) {
		err = f.errs[n-1]
	}
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return domain.Result{}, err
	}

	score := 0
	for i, q := range f.quiz.Questions {
		if sub.Answers[i] == q.CorrectOptionIndex {
			score++
		}
	}
	return domain.Result{
		ID:          "result-1",
		QuizID:      sub.QuizID,
		StudentID:   sub.StudentID,
		Answers:     sub.Answers,
		Score:       score,
		Percentage:  float64(score) / float64(len(f.quiz.Questions)) * 100,
		SubmittedAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		Questions:   f.quiz.Questions,
		IsBestScore: true,
	}, nil
}

func (f *fakeSubmitter) Calls() []domain.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Submission(nil), f.calls...)
}

// manualTicks lets a test drive the elapsed-time ticker.
type manualTicks struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped int
}

func newManualTicks() *manualTicks {
	return &manualTicks{ch: make(chan time.Time)}
}

func (m *manualTicks) Source() app.TickSource {
	return func() (<-chan time.Time, func()) {
		return m.ch, func() {
			m.mu.Lock()
			m.stopped++
			m.mu.Unlock()
		}
	}
}

func (m *manualTicks) Tick(t *testing.T) {
	t.Helper()
	select {
	case m.ch <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatalf("ticker goroutine not receiving")
	}
}

func (m *manualTicks) Stopped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type harness struct {
	session   *app.Session
	fetcher   *fakeFetcher
	submitter *fakeSubmitter
	ticks     *manualTicks
	completed chan domain.Result
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	quiz := threeQuestionQuiz()
	h := &harness{
		fetcher:   &fakeFetcher{quiz: quiz},
		submitter: &fakeSubmitter{quiz: quiz},
		ticks:     newManualTicks(),
		completed: make(chan domain.Result, 4),
	}
	h.session = app.NewSession("s-1", testRequest(), h.config())
	t.Cleanup(func() { h.session.Close() })
	return h
}

func (h *harness) config() app.SessionConfig {
	return app.SessionConfig{
		Fetcher:       h.fetcher,
		Submitter:     h.submitter,
		Ticks:         h.ticks.Source(),
		FetchRetries:  2,
		RetryInterval: time.Millisecond,
		Logger:        discardLogger(),
		OnComplete: func(_ *app.Session, r domain.Result) {
			h.completed <- r
		},
	}
}

func (h *harness) load(t *testing.T) *app.Session {
	t.Helper()
	if err := h.session.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return h.session
}
