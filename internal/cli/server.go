package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vd4-dee/quiz/internal/app"
	"github.com/vd4-dee/quiz/internal/config"
	"github.com/vd4-dee/quiz/internal/domain"
	"github.com/vd4-dee/quiz/internal/grading"
	"github.com/vd4-dee/quiz/internal/infra/memory"
	pgstore "github.com/vd4-dee/quiz/internal/infra/postgres"
	rediscache "github.com/vd4-dee/quiz/internal/infra/redis"
	"github.com/vd4-dee/quiz/internal/logging"
	transport "github.com/vd4-dee/quiz/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the submission processing server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer func() { _ = log.Sync() }()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgstore.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var questions app.QuizRepository
	if redisClient != nil {
		questions = rediscache.NewQuestionRepository(redisClient, loader, quizTTL)
	} else {
		questions = memory.NewQuestionRepository(loader, quizTTL)
	}

	var store app.SubmissionStore = memory.NewSubmissionStore()
	var history grading.History = grading.NoHistory{}
	if pool != nil {
		pgSubmissions := pgstore.NewSubmissionStore(pool)
		store = pgSubmissions
		history = pgstore.NewScoreHistory(pgSubmissions, log)
	}

	service := app.NewSubmissionService(questions, app.Options{
		Store:      store,
		History:    history,
		GradeCfg: grading.Config{
			PassThreshold:    cfg.Grading.PassThreshold,
			DefaultTimeLimit: float64(cfg.Grading.DefaultTimeLimit),
		},
		CacheTTL:   config.TTLDuration(cfg.Stats.CacheTTL, 5*time.Minute),
		CacheSize:  cfg.Stats.CacheEntries,
		BatchSize:  cfg.Stats.BatchSize,
		BatchDelay: config.TTLDuration(cfg.Stats.BatchTimeout, 2*time.Second),
		QueueDepth: cfg.Stats.QueueDepth,
	}, log)

	if redisClient != nil {
		// Mirror snapshots to Redis so restarted nodes serve dashboards warm.
		snapshots := rediscache.NewSnapshotCache(redisClient, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute))
		updates, cancelUpdates := service.Subscribe(ctx)
		defer cancelUpdates()
		go func() {
			for snap := range updates {
				if err := snapshots.Store(ctx, snap); err != nil {
					log.Warn("snapshot mirror failed", zap.Error(err))
				}
			}
		}()
	}

	mux := http.NewServeMux()
	transport.NewHandler(service, log).Register(mux)
	mux.HandleFunc("/ws/stats", transport.NewWSHandler(service, log).ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting quiz core", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server stopped", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := service.Close(shutdownCtx); err != nil {
		log.Warn("stats drain incomplete", zap.Error(err))
	}
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes provides a minimal data set for running without Postgres.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Arithmetic warm-up",
			Questions: []domain.Question{
				{
					ID:         "q1",
					Prompt:     "What is 2 + 2?",
					Type:       domain.SingleChoice,
					Options:    []string{"3", "4", "5"},
					Correct:    []int{1},
					Category:   "arithmetic",
					Difficulty: domain.Easy,
				},
				{
					ID:         "q2",
					Prompt:     "Which of these are prime?",
					Type:       domain.MultipleChoice,
					Options:    []string{"2", "4", "5", "9"},
					Correct:    []int{0, 2},
					Category:   "arithmetic",
					Difficulty: domain.Normal,
				},
			},
		},
	}
}
