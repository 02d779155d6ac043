package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"tutor-quiz-service/internal/app"
	"tutor-quiz-service/internal/domain"
	"tutor-quiz-service/internal/grading"
	"tutor-quiz-service/internal/infra/memory"
)

func newTakeService() *app.QuizService {
	grader := grading.NewService(memory.NewStaticQuizLoader(sampleQuizzes()), memory.NewResultStore())
	return app.NewQuizService(memory.NewSessionStore(), memory.NewQuizRepository(grader, time.Minute), grader, app.Options{
		Ticks:  func() (<-chan time.Time, func()) { return make(chan time.Time), func() {} },
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestRunTakeScoresAndReviews(t *testing.T) {
	var out bytes.Buffer
	// answer q1 correctly, skip q2, answer q3 wrong
	input := strings.Join([]string{"2", "n", "n", "4", "s", "y", "q"}, "\n")
	req := domain.QuizRequest{SubjectID: 1, TopicTitle: "Fractions", StudentID: 5}

	if err := runTake(context.Background(), newTakeService(), req, strings.NewReader(input), &out); err != nil {
		t.Fatalf("take: %v", err)
	}

	text := out.String()
	for _, want := range []string{
		"Not attempted yet",
		"1 of 3 questions have no answer",
		"Score: 1/3 (33%)",
		"New best score!",
		"1. [v] What is 1/2 + 1/4?",
		"2. [x] Which fraction equals 0.2?\n   no answer",
		"correct answer: 3/4",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, text)
		}
	}
}

func TestRunTakeRetakeAndErrors(t *testing.T) {
	var out bytes.Buffer
	input := strings.Join([]string{"9", "j x", "huh", "s", "y", "r", "1", "q"}, "\n")
	req := domain.QuizRequest{SubjectID: 2, TopicTitle: "Photosynthesis", StudentID: 5}

	if err := runTake(context.Background(), newTakeService(), req, strings.NewReader(input), &out); err != nil {
		t.Fatalf("take: %v", err)
	}

	text := out.String()
	for _, want := range []string{
		"! option index 8 out of range [0,3)",
		"! jump needs a question number",
		"! unknown command",
		"Score: 0/2 (0%)",
		" * 1) Mitochondria",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, text)
		}
	}
}

func TestRunTakeUnknownTopic(t *testing.T) {
	req := domain.QuizRequest{SubjectID: 1, TopicTitle: "Calculus", StudentID: 5}
	err := runTake(context.Background(), newTakeService(), req, strings.NewReader(""), io.Discard)
	if err == nil {
		t.Fatalf("expected load error")
	}
}
