package memory

import (
	"context"
	"sync"

	"quiz-session-engine/internal/domain"
)

const subscriberBuffer = 8

// Broker is an in-process pub/sub for leaderboard snapshots, keyed by topic.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan domain.Leaderboard]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[chan domain.Leaderboard]struct{}),
	}
}

// Subscribe returns a channel receiving snapshots published on topic.
// The caller must invoke the returned cancel function to avoid leaks.
func (b *Broker) Subscribe(_ context.Context, topic string) (<-chan domain.Leaderboard, func(), error) {
	ch := make(chan domain.Leaderboard, subscriberBuffer)

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[chan domain.Leaderboard]struct{})
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[topic][ch]; !ok {
			return
		}
		delete(b.subs[topic], ch)
		if len(b.subs[topic]) == 0 {
			delete(b.subs, topic)
		}
		close(ch)
	}
	return ch, cancel, nil
}

// Publish never blocks: a full subscriber loses its oldest snapshot.
func (b *Broker) Publish(_ context.Context, topic string, leaderboard domain.Leaderboard) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[topic] {
		select {
		case ch <- leaderboard:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- leaderboard
		}
	}
	return nil
}

// Subscribers reports how many channels listen on topic.
func (b *Broker) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}
