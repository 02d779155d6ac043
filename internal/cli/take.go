package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"tutor-quiz-service/internal/app"
	"tutor-quiz-service/internal/domain"
)

const takeHelp = "answer with an option number; n/p next/previous; j <n> jump; s submit; y confirm; c cancel; r retake; q quit"

// NewTakeCmd runs one quiz attempt in the terminal.
func NewTakeCmd(configPath *string) *cobra.Command {
	var req domain.QuizRequest
	cmd := &cobra.Command{
		Use:   "take",
		Short: "Take a quiz interactively from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			rt, err := buildRuntime(cmd.Context(), cfg, newLogger(cfg, os.Stderr))
			if err != nil {
				return err
			}
			defer rt.Close()
			return runTake(cmd.Context(), rt.service, req, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&req.SubjectID, "subject", 1, "subject id")
	cmd.Flags().StringVar(&req.TopicTitle, "topic", "Fractions", "topic title")
	cmd.Flags().IntVar(&req.StudentID, "student", 1, "student id")
	return cmd
}

func runTake(ctx context.Context, service *app.QuizService, req domain.QuizRequest, in io.Reader, out io.Writer) error {
	session, err := service.Start(ctx, req)
	if err != nil {
		return err
	}
	defer func() { service.Close(session.ID()) }()

	quiz := session.Quiz()
	fmt.Fprintf(out, "%s: %s (%s, %d questions)\n%s\n", quiz.SubjectName, quiz.TopicTitle,
		quiz.DifficultyLevel, len(quiz.Questions), app.BadgeForQuiz(quiz).Label)
	fmt.Fprintln(out, takeHelp)
	render(out, session)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "q" {
			return nil
		}
		next, err := apply(ctx, service, session, line, out)
		if err != nil {
			fmt.Fprintf(out, "! %v\n", err)
		}
		session = next
		render(out, session)
	}
	return scanner.Err()
}

func apply(ctx context.Context, service *app.QuizService, session *app.Session, line string, out io.Writer) (*app.Session, error) {
	switch {
	case line == "n":
		return session, session.GoNext()
	case line == "p":
		return session, session.GoPrevious()
	case strings.HasPrefix(line, "j "):
		n, err := strconv.Atoi(strings.TrimSpace(line[2:]))
		if err != nil {
			return session, fmt.Errorf("jump needs a question number")
		}
		return session, session.JumpTo(n - 1)
	case line == "s":
		warning, err := session.RequestSubmit()
		if err != nil {
			return session, err
		}
		printWarning(out, warning)
		return session, nil
	case line == "c":
		return session, session.CancelSubmit()
	case line == "y":
		if session.Phase() == domain.PhaseErrored {
			warning, err := session.ReofferSubmit()
			if err != nil {
				return session, err
			}
			printWarning(out, warning)
		}
		_, err := session.ConfirmSubmit(ctx)
		return session, err
	case line == "r":
		next, err := service.Retake(session.ID())
		if err != nil {
			return session, err
		}
		return next, nil
	}

	n, err := strconv.Atoi(line)
	if err != nil {
		return session, errors.New("unknown command; " + takeHelp)
	}
	return session, session.SelectAnswer(session.CurrentIndex(), n-1)
}

func printWarning(out io.Writer, w domain.SubmitWarning) {
	if w.Unanswered > 0 {
		fmt.Fprintf(out, "%d of %d questions have no answer and will be marked wrong.\n", w.Unanswered, w.Total)
	}
	fmt.Fprintln(out, "Submit now? y to confirm, c to keep answering")
}

func render(out io.Writer, session *app.Session) {
	view := session.View()
	switch view.Phase {
	case domain.PhaseAnswering:
		q := view.Current
		if q == nil {
			return
		}
		fmt.Fprintf(out, "\nQuestion %d/%d  answered %d/%d  %ds\n%s\n",
			view.CurrentIndex+1, view.Total, view.AnsweredCount, view.Total, view.ElapsedSeconds, q.Prompt)
		for i, option := range q.Options {
			mark := " "
			if view.Answers[view.CurrentIndex] == i {
				mark = "*"
			}
			fmt.Fprintf(out, " %s %d) %s\n", mark, i+1, option)
		}
	case domain.PhaseErrored:
		fmt.Fprintf(out, "Submission failed: %s\ny to retry with the same answers, q to quit\n", view.Error)
	case domain.PhaseResults:
		renderResults(out, view)
	}
}

func renderResults(out io.Writer, view domain.SessionView) {
	result := view.Result
	fmt.Fprintf(out, "\nScore: %d/%d (%.0f%%) in %ds\n%s\n",
		result.Score, len(result.Questions), result.Percentage, view.ElapsedSeconds, view.Badge.Label)
	for i, row := range view.Review {
		mark := "x"
		if row.IsCorrect {
			mark = "v"
		}
		fmt.Fprintf(out, "%d. [%s] %s\n", i+1, mark, row.Question.Prompt)
		if row.WasAnswered {
			fmt.Fprintf(out, "   your answer: %s\n", optionText(row.Question, row.UserAnswerIndex))
		} else {
			fmt.Fprintln(out, "   no answer")
		}
		if !row.IsCorrect {
			fmt.Fprintf(out, "   correct answer: %s\n", optionText(row.Question, row.Question.CorrectOptionIndex))
		}
		if row.Question.Explanation != "" {
			fmt.Fprintf(out, "   %s\n", row.Question.Explanation)
		}
	}
	fmt.Fprintln(out, "r to retake, q to quit")
}

func optionText(q domain.Question, index int) string {
	if index < 0 || index >= len(q.Options) {
		return fmt.Sprintf("option %d", index+1)
	}
	return q.Options[index]
}
