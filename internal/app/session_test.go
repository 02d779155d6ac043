package app_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"tutor-quiz-service/internal/app"
	"tutor-quiz-service/internal/domain"
)

func TestLoadEntersAnswering(t *testing.T) {
	h := newHarness(t)
	if h.session.Phase() != domain.PhaseLoading {
		t.Fatalf("expected loading before fetch, got %s", h.session.Phase())
	}
	s := h.load(t)

	if s.Phase() != domain.PhaseAnswering {
		t.Fatalf("expected answering, got %s", s.Phase())
	}
	if got := s.Answers(); !reflect.DeepEqual(got, []int{-1, -1, -1}) {
		t.Fatalf("expected all unanswered, got %v", got)
	}
	if s.CurrentIndex() != 0 || s.ElapsedSeconds() != 0 {
		t.Fatalf("expected index 0 and no elapsed time, got %d / %d", s.CurrentIndex(), s.ElapsedSeconds())
	}
	if !s.CanSubmit() {
		t.Fatalf("expected canSubmit while answering")
	}
}

func TestLoadRetriesThenFails(t *testing.T) {
	h := newHarness(t)
	h.fetcher.errs = []error{errBackendDown, errBackendDown, errBackendDown, errBackendDown}

	err := h.session.Load(context.Background())
	if !errors.Is(err, domain.ErrFetchFailed) || !errors.Is(err, errBackendDown) {
		t.Fatalf("expected fetch failure wrapping cause, got %v", err)
	}
	if h.fetcher.Calls() != 3 {
		t.Fatalf("expected 1 attempt + 2 retries, got %d", h.fetcher.Calls())
	}
	if h.session.Phase() != domain.PhaseErrored {
		t.Fatalf("expected errored, got %s", h.session.Phase())
	}
	if err := h.session.SelectAnswer(0, 0); !errors.Is(err, domain.ErrInvalidPhase) {
		t.Fatalf("expected answers unavailable after failed load, got %v", err)
	}
}

func TestLoadRecoversWithinRetries(t *testing.T) {
	h := newHarness(t)
	h.fetcher.errs = []error{errBackendDown}

	h.load(t)
	if h.fetcher.Calls() != 2 {
		t.Fatalf("expected one retry, got %d calls", h.fetcher.Calls())
	}
}

func TestLoadDoesNotRetryPermanentErrors(t *testing.T) {
	h := newHarness(t)
	h.fetcher.errs = []error{domain.ErrQuizNotFound}

	err := h.session.Load(context.Background())
	if !errors.Is(err, domain.ErrFetchFailed) || !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected not found fetch failure, got %v", err)
	}
	if h.fetcher.Calls() != 1 {
		t.Fatalf("expected no retry, got %d calls", h.fetcher.Calls())
	}
}

func TestLoadRejectsMalformedQuiz(t *testing.T) {
	h := newHarness(t)
	h.fetcher.quiz.Questions[1].Options = []string{"only"}

	err := h.session.Load(context.Background())
	if !errors.Is(err, domain.ErrInvalidQuiz) {
		t.Fatalf("expected invalid quiz, got %v", err)
	}
	if h.fetcher.Calls() != 1 {
		t.Fatalf("malformed content should not be retried, got %d calls", h.fetcher.Calls())
	}
}

func TestOperationsUnavailableWhileLoading(t *testing.T) {
	h := newHarness(t)
	s := h.session

	if err := s.SelectAnswer(0, 0); !errors.Is(err, domain.ErrInvalidPhase) {
		t.Fatalf("select: expected invalid phase, got %v", err)
	}
	if err := s.GoNext(); !errors.Is(err, domain.ErrInvalidPhase) {
		t.Fatalf("next: expected invalid phase, got %v", err)
	}
	if _, err := s.RequestSubmit(); !errors.Is(err, domain.ErrInvalidPhase) {
		t.Fatalf("request submit: expected invalid phase, got %v", err)
	}
	if s.ProgressPercentage() != 0 || s.IsLastQuestion() || s.CanSubmit() {
		t.Fatalf("derived queries should be neutral while loading")
	}
	if len(s.Answers()) != len(s.Quiz().Questions) {
		t.Fatalf("answer vector length must match question count")
	}
}

func TestNavigationClamps(t *testing.T) {
	s := newHarness(t).load(t)

	steps := []struct {
		name string
		op   func() error
		want int
	}{
		{"previous at start", s.GoPrevious, 0},
		{"next", s.GoNext, 1},
		{"next", s.GoNext, 2},
		{"next past end", s.GoNext, 2},
		{"jump negative", func() error { return s.JumpTo(-5) }, 0},
		{"jump beyond", func() error { return s.JumpTo(99) }, 2},
		{"jump inside", func() error { return s.JumpTo(1) }, 1},
		{"previous", s.GoPrevious, 0},
	}
	for _, step := range steps {
		if err := step.op(); err != nil {
			t.Fatalf("%s: unexpected error %v", step.name, err)
		}
		if got := s.CurrentIndex(); got != step.want {
			t.Fatalf("%s: expected index %d, got %d", step.name, step.want, got)
		}
	}

	if err := s.JumpTo(2); err != nil {
		t.Fatalf("jump: %v", err)
	}
	if !s.IsLastQuestion() {
		t.Fatalf("expected last question at index 2")
	}
}

func TestSelectAnswerValidation(t *testing.T) {
	s := newHarness(t).load(t)

	for _, tc := range []struct{ q, opt int }{{-1, 0}, {3, 0}, {0, -1}, {0, 3}} {
		err := s.SelectAnswer(tc.q, tc.opt)
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("select(%d,%d): expected validation error, got %v", tc.q, tc.opt, err)
		}
		var rangeErr *domain.RangeError
		if !errors.As(err, &rangeErr) {
			t.Fatalf("select(%d,%d): expected *RangeError, got %T", tc.q, tc.opt, err)
		}
	}
	if s.AnsweredCount() != 0 {
		t.Fatalf("rejected answers must not be recorded")
	}

	if err := s.SelectAnswer(0, 0); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	if err := s.SelectAnswer(0, 2); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	if got := s.Answers()[0]; got != 2 {
		t.Fatalf("expected last write to win, got %d", got)
	}
	if s.ProgressPercentage() < 33.3 || s.ProgressPercentage() > 33.4 {
		t.Fatalf("expected ~33.3%% progress, got %v", s.ProgressPercentage())
	}
}

func TestTickerRunsAcrossPhases(t *testing.T) {
	h := newHarness(t)
	h.submitter.gate = make(chan struct{})
	s := h.load(t)

	h.ticks.Tick(t)
	waitFor(t, "first tick", func() bool { return s.ElapsedSeconds() == 1 })

	if _, err := s.RequestSubmit(); err != nil {
		t.Fatalf("request submit: %v", err)
	}
	h.ticks.Tick(t)
	waitFor(t, "tick while confirming", func() bool { return s.ElapsedSeconds() == 2 })

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := s.ConfirmSubmit(context.Background()); err != nil {
			t.Errorf("confirm submit: %v", err)
		}
	}()
	waitFor(t, "submitting", func() bool { return s.Phase() == domain.PhaseSubmitting })
	h.ticks.Tick(t)
	waitFor(t, "tick while submitting", func() bool { return s.ElapsedSeconds() == 3 })

	close(h.submitter.gate)
	<-done
	h.ticks.Tick(t)
	waitFor(t, "tick in results", func() bool { return s.ElapsedSeconds() == 4 })

	s.Close()
	if h.ticks.Stopped() != 1 {
		t.Fatalf("expected ticker stopped on close, got %d", h.ticks.Stopped())
	}
}

func TestHappyPathSubmit(t *testing.T) {
	h := newHarness(t)
	s := h.load(t)

	for q, opt := range []int{2, 1, 0} {
		if err := s.SelectAnswer(q, opt); err != nil {
			t.Fatalf("select %d: %v", q, err)
		}
	}
	warning, err := s.RequestSubmit()
	if err != nil {
		t.Fatalf("request submit: %v", err)
	}
	if warning.Unanswered != 0 || warning.Total != 3 {
		t.Fatalf("unexpected warning %+v", warning)
	}

	result, err := s.ConfirmSubmit(context.Background())
	if err != nil || result == nil {
		t.Fatalf("confirm: result=%v err=%v", result, err)
	}

	calls := h.submitter.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one submit, got %d", len(calls))
	}
	want := domain.Submission{QuizID: "quiz-1", StudentID: 7, Answers: []int{2, 1, 0}}
	if !reflect.DeepEqual(calls[0], want) {
		t.Fatalf("expected %+v, got %+v", want, calls[0])
	}
	if s.Phase() != domain.PhaseResults {
		t.Fatalf("expected results, got %s", s.Phase())
	}
	if s.CanSubmit() {
		t.Fatalf("canSubmit must be false in results")
	}
	review := s.Review()
	if len(review) != 3 || review[0].IsCorrect || review[1].IsCorrect || !review[2].IsCorrect {
		t.Fatalf("unexpected review %+v", review)
	}
	if got := <-h.completed; got.Score != 1 {
		t.Fatalf("expected completion hook with score 1, got %d", got.Score)
	}
}

func TestPartialSubmitWarnsButDoesNotBlock(t *testing.T) {
	h := newHarness(t)
	s := h.load(t)

	if err := s.SelectAnswer(0, 1); err != nil {
		t.Fatalf("select: %v", err)
	}
	warning, err := s.RequestSubmit()
	if err != nil {
		t.Fatalf("request submit: %v", err)
	}
	if warning != (domain.SubmitWarning{Unanswered: 2, Total: 3}) {
		t.Fatalf("expected 2 of 3 unanswered, got %+v", warning)
	}
	if s.Phase() != domain.PhaseConfirmingSubmit {
		t.Fatalf("expected confirming, got %s", s.Phase())
	}

	if _, err := s.ConfirmSubmit(context.Background()); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	calls := h.submitter.Calls()
	if len(calls) != 1 || !reflect.DeepEqual(calls[0].Answers, []int{1, -1, -1}) {
		t.Fatalf("expected [1 -1 -1] sent once, got %+v", calls)
	}
	review := s.Review()
	if review[1].WasAnswered || review[1].IsCorrect {
		t.Fatalf("unanswered question must review as unanswered and wrong: %+v", review[1])
	}
}

func TestConfirmAfterResultsIsSwallowed(t *testing.T) {
	h := newHarness(t)
	s := h.load(t)
	if _, err := s.RequestSubmit(); err != nil {
		t.Fatalf("request submit: %v", err)
	}
	if _, err := s.ConfirmSubmit(context.Background()); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	result, err := s.ConfirmSubmit(context.Background())
	if result != nil || err != nil {
		t.Fatalf("late duplicate confirm must be swallowed, got result=%v err=%v", result, err)
	}
	if n := len(h.submitter.Calls()); n != 1 {
		t.Fatalf("expected one submission, got %d", n)
	}
	if s.Phase() != domain.PhaseResults {
		t.Fatalf("expected results, got %s", s.Phase())
	}
}

func TestCancelSubmitReturnsToAnswering(t *testing.T) {
	s := newHarness(t).load(t)

	if _, err := s.RequestSubmit(); err != nil {
		t.Fatalf("request submit: %v", err)
	}
	if err := s.SelectAnswer(0, 0); !errors.Is(err, domain.ErrInvalidPhase) {
		t.Fatalf("answers are frozen while confirming, got %v", err)
	}
	if err := s.CancelSubmit(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if s.Phase() != domain.PhaseAnswering {
		t.Fatalf("expected answering, got %s", s.Phase())
	}
	if err := s.CancelSubmit(); !errors.Is(err, domain.ErrInvalidPhase) {
		t.Fatalf("cancel outside confirming should fail, got %v", err)
	}
}

func TestConfirmSubmitRequiresConfirmation(t *testing.T) {
	h := newHarness(t)
	s := h.load(t)

	if _, err := s.ConfirmSubmit(context.Background()); !errors.Is(err, domain.ErrInvalidPhase) {
		t.Fatalf("expected invalid phase, got %v", err)
	}
	if len(h.submitter.Calls()) != 0 {
		t.Fatalf("no submit expected")
	}
}

func TestConfirmSubmitIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.submitter.gate = make(chan struct{})
	s := h.load(t)
	if err := s.SelectAnswer(0, 1); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	if _, err := s.RequestSubmit(); err != nil {
		t.Fatalf("request submit: %v", err)
	}

	first := make(chan error, 1)
	go func() {
		_, err := s.ConfirmSubmit(context.Background())
		first <- err
	}()
	waitFor(t, "submitting", func() bool { return s.Phase() == domain.PhaseSubmitting })

	for i := 0; i < 3; i++ {
		result, err := s.ConfirmSubmit(context.Background())
		if result != nil || err != nil {
			t.Fatalf("duplicate confirm must be swallowed, got result=%v err=%v", result, err)
		}
	}

	close(h.submitter.gate)
	if err := <-first; err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if n := len(h.submitter.Calls()); n != 1 {
		t.Fatalf("expected exactly one network submission, got %d", n)
	}
	if s.Phase() != domain.PhaseResults {
		t.Fatalf("expected results, got %s", s.Phase())
	}
}

func TestSubmitFailureRetainsSubmissionForRetry(t *testing.T) {
	h := newHarness(t)
	h.submitter.errs = []error{errBackendDown}
	s := h.load(t)
	if err := s.SelectAnswer(1, 2); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	if _, err := s.RequestSubmit(); err != nil {
		t.Fatalf("request submit: %v", err)
	}

	_, err := s.ConfirmSubmit(context.Background())
	if !errors.Is(err, domain.ErrSubmitFailed) || !errors.Is(err, errBackendDown) {
		t.Fatalf("expected submit failure, got %v", err)
	}
	if s.Phase() != domain.PhaseErrored {
		t.Fatalf("expected errored, got %s", s.Phase())
	}
	pending, ok := s.PendingSubmission()
	if !ok || !reflect.DeepEqual(pending.Answers, []int{-1, 2, -1}) {
		t.Fatalf("expected retained submission, got %+v ok=%v", pending, ok)
	}
	if view := s.View(); view.Error == "" {
		t.Fatalf("expected error in view")
	}

	warning, err := s.ReofferSubmit()
	if err != nil {
		t.Fatalf("reoffer: %v", err)
	}
	if warning.Unanswered != 2 {
		t.Fatalf("unexpected warning %+v", warning)
	}
	if _, err := s.ConfirmSubmit(context.Background()); err != nil {
		t.Fatalf("retry confirm: %v", err)
	}

	calls := h.submitter.Calls()
	if len(calls) != 2 || !reflect.DeepEqual(calls[0], calls[1]) {
		t.Fatalf("expected identical retry, got %+v", calls)
	}
	if s.Phase() != domain.PhaseResults {
		t.Fatalf("expected results, got %s", s.Phase())
	}
	if _, ok := s.PendingSubmission(); ok {
		t.Fatalf("submission should be cleared once graded")
	}
}

func TestReofferRequiresFailedSubmit(t *testing.T) {
	h := newHarness(t)
	h.fetcher.errs = []error{domain.ErrQuizNotFound}
	_ = h.session.Load(context.Background())

	if _, err := h.session.ReofferSubmit(); !errors.Is(err, domain.ErrInvalidPhase) {
		t.Fatalf("fetch failures have nothing to resubmit, got %v", err)
	}
}

func TestRetakeStartsFresh(t *testing.T) {
	h := newHarness(t)
	s := h.load(t)
	if err := s.SelectAnswer(0, 1); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	if err := s.GoNext(); err != nil {
		t.Fatalf("GoNext: %v", err)
	}
	h.ticks.Tick(t)
	waitFor(t, "tick", func() bool { return s.ElapsedSeconds() == 1 })
	if _, err := s.RequestSubmit(); err != nil {
		t.Fatalf("request submit: %v", err)
	}
	if _, err := s.ConfirmSubmit(context.Background()); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	next, err := s.Retake("s-2")
	if err != nil {
		t.Fatalf("retake: %v", err)
	}
	defer next.Close()

	if next == s || next.ID() != "s-2" {
		t.Fatalf("retake must build a new session")
	}
	if !s.Closed() {
		t.Fatalf("old session must be torn down")
	}
	if next.Phase() != domain.PhaseAnswering || next.ElapsedSeconds() != 0 || next.CurrentIndex() != 0 {
		t.Fatalf("expected fresh answering session, got %+v", next.View())
	}
	if got := next.Answers(); !reflect.DeepEqual(got, []int{-1, -1, -1}) {
		t.Fatalf("expected cleared answers, got %v", got)
	}
	if _, ok := next.Result(); ok {
		t.Fatalf("prior result must not be reachable")
	}
	if next.Quiz().ID != s.Quiz().ID {
		t.Fatalf("retake reuses the same quiz")
	}
	if h.fetcher.Calls() != 1 {
		t.Fatalf("retake must not refetch, got %d fetches", h.fetcher.Calls())
	}
}

func TestConcurrentRetakeCreatesOneSession(t *testing.T) {
	s := newHarness(t).load(t)
	if _, err := s.RequestSubmit(); err != nil {
		t.Fatalf("request submit: %v", err)
	}
	if _, err := s.ConfirmSubmit(context.Background()); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		sessions []*app.Session
		failures int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next, err := s.Retake(fmt.Sprintf("s-%d", i+2))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if !errors.Is(err, domain.ErrSessionClosed) {
					t.Errorf("unexpected retake error %v", err)
				}
				failures++
				return
			}
			sessions = append(sessions, next)
		}(i)
	}
	wg.Wait()

	if len(sessions) != 1 || failures != callers-1 {
		t.Fatalf("expected exactly one retake, got %d (failures %d)", len(sessions), failures)
	}
	sessions[0].Close()
}

func TestRetakeRequiresResults(t *testing.T) {
	s := newHarness(t).load(t)
	if _, err := s.Retake("s-2"); !errors.Is(err, domain.ErrInvalidPhase) {
		t.Fatalf("expected invalid phase, got %v", err)
	}
}

func TestLateResultAfterTeardownIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.submitter.gate = make(chan struct{})
	s := h.load(t)
	if _, err := s.RequestSubmit(); err != nil {
		t.Fatalf("request submit: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.ConfirmSubmit(context.Background())
		done <- err
	}()
	waitFor(t, "submitting", func() bool { return s.Phase() == domain.PhaseSubmitting })

	s.Close()
	close(h.submitter.gate)

	if err := <-done; !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected late result discarded, got %v", err)
	}
	if _, ok := s.Result(); ok {
		t.Fatalf("late result must not be applied")
	}
	if s.Phase() != domain.PhaseSubmitting {
		t.Fatalf("closed session must not transition, got %s", s.Phase())
	}
	select {
	case r := <-h.completed:
		t.Fatalf("completion hook must not run for a discarded session, got %+v", r)
	default:
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	s := newHarness(t).load(t)

	updates, cancel := s.Subscribe()
	defer cancel()

	initial := <-updates
	if initial.Phase != domain.PhaseAnswering || initial.Total != 3 {
		t.Fatalf("unexpected initial view %+v", initial)
	}

	if err := s.SelectAnswer(2, 0); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	update := <-updates
	if update.AnsweredCount != 1 || update.Answers[2] != 0 || update.Unanswered != 2 {
		t.Fatalf("unexpected update %+v", update)
	}

	s.Close()
	for range updates {
	}
	if _, cancel2 := s.Subscribe(); cancel2 == nil {
		t.Fatalf("subscribe after close must still return a cancel func")
	}
}

func TestBadgeFollowsServerFlags(t *testing.T) {
	h := newHarness(t)
	best := 2
	pct := 66.67
	h.fetcher.quiz.HasAttempted = true
	h.fetcher.quiz.BestScore = &best
	h.fetcher.quiz.BestPercentage = &pct
	s := h.load(t)

	if badge := s.View().Badge; !badge.HasAttempted || badge.Label != "Best: 2/3 (67%)" {
		t.Fatalf("unexpected pre-attempt badge %+v", badge)
	}

	if _, err := s.RequestSubmit(); err != nil {
		t.Fatalf("request submit: %v", err)
	}
	if _, err := s.ConfirmSubmit(context.Background()); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if badge := s.View().Badge; !badge.IsBestScore || badge.Label != "New best score!" {
		t.Fatalf("unexpected post-attempt badge %+v", badge)
	}
}

var _ app.QuizFetcher = (*fakeFetcher)(nil)
var _ app.Submitter = (*fakeSubmitter)(nil)
