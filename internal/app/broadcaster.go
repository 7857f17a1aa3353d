package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"quiz-session-engine/internal/domain"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultBroadcastInterval is the leaderboard push period.
	DefaultBroadcastInterval = 5 * time.Second
	// DefaultBroadcastConcurrency caps parallel publishes within one tick.
	DefaultBroadcastConcurrency = 8
)

// Publisher pushes a leaderboard snapshot on a topic. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, topic string, leaderboard domain.Leaderboard) error
}

// ScoresTopic is the broadcast topic for a quiz code.
func ScoresTopic(code string) string {
	return "scores/" + code
}

// TickResult counts what one broadcast tick did.
type TickResult struct {
	Codes     int
	Published int
	Failed    int
}

// Broadcaster periodically publishes the leaderboard of every quiz in the
// catalog. Failures for one code never abort the rest of the tick.
type Broadcaster struct {
	service     *QuizService
	publisher   Publisher
	interval    time.Duration
	concurrency int
	logger      *slog.Logger
}

func NewBroadcaster(service *QuizService, publisher Publisher, interval time.Duration, concurrency int, logger *slog.Logger) *Broadcaster {
	if interval <= 0 {
		interval = DefaultBroadcastInterval
	}
	if concurrency <= 0 {
		concurrency = DefaultBroadcastConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		service:     service,
		publisher:   publisher,
		interval:    interval,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run ticks until ctx is canceled. A slow tick makes the ticker drop ticks
// rather than queue them.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Tick(ctx)
		}
	}
}

// Tick runs one broadcast pass over all catalog codes.
func (b *Broadcaster) Tick(ctx context.Context) TickResult {
	codes, err := b.service.QuizCodes(ctx)
	if err != nil {
		b.logger.Error("broadcast: list quiz codes", "error", err)
		return TickResult{}
	}

	var published, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(b.concurrency)
	for _, code := range codes {
		g.Go(func() error {
			if err := b.publish(ctx, code); err != nil {
				failed.Add(1)
				b.logger.Warn("broadcast: publish leaderboard", "code", code, "error", err)
				return nil
			}
			published.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return TickResult{
		Codes:     len(codes),
		Published: int(published.Load()),
		Failed:    int(failed.Load()),
	}
}

func (b *Broadcaster) publish(ctx context.Context, code string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	leaderboard, err := b.service.GetLeaderboard(ctx, code)
	if err != nil {
		return err
	}
	return b.publisher.Publish(ctx, ScoresTopic(code), leaderboard)
}
