package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/config"
	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/infra/memory"
	"quiz-session-engine/internal/infra/postgres"
	infraredis "quiz-session-engine/internal/infra/redis"
	transport "quiz-session-engine/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// broker is satisfied by both the in-process and the Redis pub/sub.
type broker interface {
	app.Publisher
	transport.Subscriber
}

type components struct {
	service     *app.QuizService
	broker      broker
	broadcaster *app.Broadcaster
	closers     []func()
}

func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// buildComponents picks Postgres/Redis backends when configured and falls
// back to in-process ones otherwise.
func buildComponents(ctx context.Context, cfg config.Config, logger *slog.Logger) (*components, error) {
	c := &components{}

	var catalog app.Catalog
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		c.closers = append(c.closers, pool.Close)
		catalog = postgres.NewCatalog(pool)
		logger.Info("quiz catalog backed by postgres")
	} else {
		catalog = memory.NewCatalog(sampleQuizzes()...)
		logger.Info("quiz catalog in memory", "codes", len(sampleQuizzes()))
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 30*time.Second)
	var store app.SessionRepository
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.closers = append(c.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			c.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		catalog = infraredis.NewCachedCatalog(client, catalog, quizTTL)
		store = infraredis.NewSessionStore(client, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute))
		c.broker = infraredis.NewPubSub(client, logger)
		logger.Info("redis enabled", "addr", cfg.Redis.Addr)
	} else {
		catalog = memory.NewCachedCatalog(catalog, quizTTL)
		store = memory.NewSessionStore()
		c.broker = memory.NewBroker()
	}

	codes := app.NewCodeGenerator(catalog, cfg.Codes.MaxAttempts)
	c.service = app.NewQuizService(store, catalog, codes)
	c.broadcaster = app.NewBroadcaster(
		c.service,
		c.broker,
		config.TTLDuration(cfg.Broadcast.Interval, app.DefaultBroadcastInterval),
		cfg.Broadcast.Concurrency,
		logger,
	)
	return c, nil
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stdout, cfg)
	slog.SetDefault(logger)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	go c.broadcaster.Run(ctx)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(c.service, c.broker, cfg.Server.AllowedOrigins, logger),
		ReadTimeout: 15 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting quiz server", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes seeds the in-memory catalog so a bare start is playable.
func sampleQuizzes() []domain.Quiz {
	return []domain.Quiz{
		{
			ID:        "sample-colours",
			Code:      "ABC123",
			Title:     "Colours",
			CreatedBy: "system",
			Questions: []domain.Question{
				{ID: 1, Text: "What colour is the sky on a clear day?", Options: []string{"Blue", "Green", "Red", "Yellow"}, CorrectAnswer: "Blue", TimeLimitSeconds: 30},
				{ID: 2, Text: "What colour do you get by mixing blue and yellow?", Options: []string{"Purple", "Green", "Orange", "Brown"}, CorrectAnswer: "Green", TimeLimitSeconds: 30},
			},
		},
		{
			ID:        "sample-capitals",
			Code:      "PARIS1",
			Title:     "Capitals",
			CreatedBy: "system",
			Questions: []domain.Question{
				{ID: 1, Text: "What is the capital of France?", Options: []string{"Paris", "Lyon", "Nice", "Lille"}, CorrectAnswer: "Paris", TimeLimitSeconds: 20},
				{ID: 2, Text: "What is the capital of Japan?", Options: []string{"Osaka", "Kyoto", "Tokyo", "Nagoya"}, CorrectAnswer: "Tokyo", TimeLimitSeconds: 20},
			},
		},
	}
}
