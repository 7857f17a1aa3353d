package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"quiz-session-engine/internal/domain"

	"github.com/redis/go-redis/v9"
)

const subscriberBuffer = 8

// PubSub carries leaderboard snapshots over Redis PUBLISH/SUBSCRIBE so that
// every instance's websocket clients see the broadcast, whichever instance ticked.
// It relies on the Redis SessionStore: every instance then reads the same
// ledger, so concurrent ticks publish the same standings.
type PubSub struct {
	client *redis.Client
	logger *slog.Logger
}

func NewPubSub(client *redis.Client, logger *slog.Logger) *PubSub {
	if logger == nil {
		logger = slog.Default()
	}
	return &PubSub{client: client, logger: logger}
}

func (p *PubSub) Publish(ctx context.Context, topic string, leaderboard domain.Leaderboard) error {
	data, err := json.Marshal(leaderboard)
	if err != nil {
		return fmt.Errorf("marshal leaderboard: %w", err)
	}
	if err := p.client.Publish(ctx, topic, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe returns a channel of decoded snapshots for topic. The caller must
// invoke the returned cancel function to release the Redis subscription.
func (p *PubSub) Subscribe(ctx context.Context, topic string) (<-chan domain.Leaderboard, func(), error) {
	sub := p.client.Subscribe(ctx, topic)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	out := make(chan domain.Leaderboard, subscriberBuffer)
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		defer close(out)
		msgs := sub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var lb domain.Leaderboard
				if err := json.Unmarshal([]byte(msg.Payload), &lb); err != nil {
					p.logger.Warn("pubsub: decode leaderboard", "topic", topic, "error", err)
					continue
				}
				select {
				case out <- lb:
				default:
					// drop the stale snapshot, keep the newest
					select {
					case <-out:
					default:
					}
					out <- lb
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
			<-stopped
		})
	}
	return out, cancel, nil
}
