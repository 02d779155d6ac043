// Package backend talks to the remote grading backend that generates quizzes
// and records attempts.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tutor-quiz-service/internal/domain"
)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// LoadQuiz is GET /api/quiz; idempotent and safe to retry.
func (c *Client) LoadQuiz(ctx context.Context, req domain.QuizRequest) (domain.Quiz, error) {
	query := url.Values{}
	query.Set("subject_id", strconv.Itoa(req.SubjectID))
	query.Set("topic_title", req.TopicTitle)
	query.Set("student_id", strconv.Itoa(req.StudentID))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/quiz?"+query.Encode(), nil)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("build quiz request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("quiz request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Quiz{}, statusError("quiz", resp)
	}

	var quiz domain.Quiz
	if err := json.NewDecoder(resp.Body).Decode(&quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("decode quiz: %w", err)
	}
	return quiz, nil
}

// SubmitQuiz is POST /api/quiz/submit. The server records an attempt per call,
// so callers must not retry it on their own.
func (c *Client) SubmitQuiz(ctx context.Context, sub domain.Submission) (domain.Result, error) {
	body, err := json.Marshal(sub)
	if err != nil {
		return domain.Result{}, fmt.Errorf("encode submission: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/quiz/submit", bytes.NewReader(body))
	if err != nil {
		return domain.Result{}, fmt.Errorf("build submit request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return domain.Result{}, fmt.Errorf("submit request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return domain.Result{}, statusError("submit", resp)
	}

	var result domain.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return domain.Result{}, fmt.Errorf("decode result: %w", err)
	}
	return result, nil
}

func statusError(op string, resp *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(detail))
	if msg == "" {
		return fmt.Errorf("%s api returned %s", op, resp.Status)
	}
	return fmt.Errorf("%s api returned %s: %s", op, resp.Status, msg)
}
