package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"tutor-quiz-service/internal/app"
	"tutor-quiz-service/internal/config"
	"tutor-quiz-service/internal/domain"
	"tutor-quiz-service/internal/grading"
	"tutor-quiz-service/internal/infra/backend"
	"tutor-quiz-service/internal/infra/memory"
	"tutor-quiz-service/internal/infra/postgres"
	"tutor-quiz-service/internal/infra/rabbit"
	redisinfra "tutor-quiz-service/internal/infra/redis"
)

// runtime bundles the quiz service with the connections it holds open.
type runtime struct {
	service *app.QuizService
	closers []func()
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// buildRuntime wires the quiz service from config. A backend URL selects the
// remote grader; otherwise quizzes are graded in-process from Postgres or the
// built-in sample set.
func buildRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger) (*runtime, error) {
	rt := &runtime{}
	fail := func(err error) (*runtime, error) {
		rt.Close()
		return nil, err
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, func() { _ = redisClient.Close() })
	}

	var loader memory.QuizLoader
	var submitter app.Submitter
	if cfg.Backend.BaseURL != "" {
		client := backend.NewClient(cfg.Backend.BaseURL, config.TTLDuration(cfg.Backend.Timeout, 10*time.Second))
		loader, submitter = client, client
		logger.Info("grading via backend", "url", cfg.Backend.BaseURL)
	} else {
		var quizzes grading.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
		var results grading.ResultStore = memory.NewResultStore()
		if cfg.Postgres.URL != "" {
			pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
			if err != nil {
				return fail(fmt.Errorf("connect postgres: %w", err))
			}
			rt.closers = append(rt.closers, pool.Close)
			quizzes = postgres.NewQuizLoader(pool)
			results = postgres.NewResultStore(pool)
		}
		grader := grading.NewService(quizzes, results)
		loader, submitter = grader, grader
		logger.Info("grading in-process", "postgres", cfg.Postgres.URL != "")
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	var store app.SessionRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
		store = redisinfra.NewSessionStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 2*time.Hour))
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
		store = memory.NewSessionStore()
	}

	opts := app.Options{
		Ticks:         app.IntervalTicker(config.TTLDuration(cfg.Quiz.TickInterval, time.Second)),
		FetchRetries:  cfg.FetchRetries(),
		RetryInterval: config.TTLDuration(cfg.Quiz.RetryInterval, 200*time.Millisecond),
		Logger:        logger,
	}
	if cfg.RabbitMQ.URL != "" {
		publisher, err := rabbit.NewPublisher(cfg.RabbitMQ.URL, cfg.Exchange())
		if err != nil {
			return fail(err)
		}
		rt.closers = append(rt.closers, func() { _ = publisher.Close() })
		opts.Events = publisher
	}

	rt.service = app.NewQuizService(store, quizRepo, submitter, opts)
	return rt, nil
}

// sampleQuizzes is the built-in quiz set used when neither a backend nor Postgres is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"sample-fractions": {
			ID:              "sample-fractions",
			SubjectID:       1,
			SubjectName:     "Mathematics",
			TopicTitle:      "Fractions",
			DifficultyLevel: domain.DifficultyFoundation,
			Questions: []domain.Question{
				{ID: "q1", Prompt: "What is 1/2 + 1/4?", Options: []string{"2/6", "3/4", "1/8", "2/4"}, CorrectOptionIndex: 1,
					Explanation: "Rewrite 1/2 as 2/4, then 2/4 + 1/4 = 3/4."},
				{ID: "q2", Prompt: "Which fraction equals 0.2?", Options: []string{"1/2", "2/5", "1/5", "5/2"}, CorrectOptionIndex: 2,
					Explanation: "1 divided by 5 is 0.2."},
				{ID: "q3", Prompt: "Simplify 6/8.", Options: []string{"3/4", "2/3", "6/8", "1/2"}, CorrectOptionIndex: 0,
					Explanation: "Divide numerator and denominator by 2."},
			},
		},
		"sample-photosynthesis": {
			ID:              "sample-photosynthesis",
			SubjectID:       2,
			SubjectName:     "Biology",
			TopicTitle:      "Photosynthesis",
			DifficultyLevel: domain.DifficultyIntermediate,
			Questions: []domain.Question{
				{ID: "q1", Prompt: "Where does photosynthesis mainly take place?", Options: []string{"Mitochondria", "Chloroplasts", "Nucleus"}, CorrectOptionIndex: 1,
					Explanation: "Chloroplasts contain chlorophyll, which captures light."},
				{ID: "q2", Prompt: "Which gas is released?", Options: []string{"Oxygen", "Carbon dioxide", "Nitrogen"}, CorrectOptionIndex: 0,
					Explanation: "Water is split and oxygen is released as a by-product."},
			},
		},
	}
}
