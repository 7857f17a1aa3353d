package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/domain"

	"github.com/redis/go-redis/v9"
)

// SessionStore keeps every session ledger in Redis so all instances share one
// score ledger per code.
// Layout per code:
//   - quiz:{code}:scores  HASH username -> score
//   - quiz:{code}:joined  HASH username -> joinedAt (RFC3339Nano, UTC)
//   - quiz:{code}:order   LIST usernames in ledger insertion order (tie-break)
//   - quiz:session:{code} liveness marker with TTL, refreshed by ledger writes
//
// Ledger writes run as Lua scripts, so a join or score update is one atomic
// round trip.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl, now: time.Now}
}

// GetOrCreate is free of round trips; the ledger materializes on its first
// write.
func (s *SessionStore) GetOrCreate(_ context.Context, code string) (app.Ledger, error) {
	return s.ledger(code), nil
}

// Get reports a session once it holds at least one participant.
func (s *SessionStore) Get(ctx context.Context, code string) (app.Ledger, bool, error) {
	n, err := s.client.Exists(ctx, orderKey(code)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("check session %s: %w", code, err)
	}
	if n == 0 {
		return nil, false, nil
	}
	return s.ledger(code), true, nil
}

func (s *SessionStore) ledger(code string) *Ledger {
	return &Ledger{client: s.client, code: code, ttl: s.ttl, now: s.now}
}

const livenessPrefix = "quiz:session:"

func scoresKey(code string) string { return "quiz:" + code + ":scores" }
func joinedKey(code string) string { return "quiz:" + code + ":joined" }
func orderKey(code string) string  { return "quiz:" + code + ":order" }

// KEYS: scores, joined, order, liveness. ARGV: username, joinedAt, ttl ms.
var joinScript = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], ARGV[1], 0) == 1 then
  redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
  redis.call('RPUSH', KEYS[3], ARGV[1])
end
if tonumber(ARGV[3]) > 0 then
  redis.call('SET', KEYS[4], '1', 'PX', ARGV[3])
end
return {redis.call('HGET', KEYS[1], ARGV[1]), redis.call('HGET', KEYS[2], ARGV[1])}
`)

// KEYS: scores, joined, order, liveness. ARGV: username, correct (1/0),
// joinedAt, ttl ms. Returns nil when an incorrect answer hits an unknown user.
var scoreScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 0 then
  if ARGV[2] ~= '1' then
    return false
  end
  redis.call('HSET', KEYS[1], ARGV[1], 0)
  redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
  redis.call('RPUSH', KEYS[3], ARGV[1])
  if tonumber(ARGV[4]) > 0 then
    redis.call('SET', KEYS[4], '1', 'PX', ARGV[4])
  end
end
if ARGV[2] == '1' then
  redis.call('HINCRBY', KEYS[1], ARGV[1], 1)
end
return {redis.call('HGET', KEYS[1], ARGV[1]), redis.call('HGET', KEYS[2], ARGV[1])}
`)

// Ledger is the Redis-backed app.Ledger of one code.
type Ledger struct {
	client *redis.Client
	code   string
	ttl    time.Duration
	now    func() time.Time
}

func (l *Ledger) keys() []string {
	return []string{scoresKey(l.code), joinedKey(l.code), orderKey(l.code), livenessPrefix + l.code}
}

func (l *Ledger) Join(ctx context.Context, username string) (domain.Participant, error) {
	reply, err := joinScript.Run(ctx, l.client, l.keys(),
		username, l.now().UTC().Format(time.RFC3339Nano), l.ttl.Milliseconds()).Result()
	if err != nil {
		return domain.Participant{}, fmt.Errorf("join %s: %w", l.code, err)
	}
	return l.participantFromReply(username, reply)
}

func (l *Ledger) ApplyScore(ctx context.Context, username string, correct bool) (domain.Participant, bool, error) {
	flag := "0"
	if correct {
		flag = "1"
	}
	reply, err := scoreScript.Run(ctx, l.client, l.keys(),
		username, flag, l.now().UTC().Format(time.RFC3339Nano), l.ttl.Milliseconds()).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Participant{}, false, nil
	}
	if err != nil {
		return domain.Participant{}, false, fmt.Errorf("score %s: %w", l.code, err)
	}
	participant, err := l.participantFromReply(username, reply)
	if err != nil {
		return domain.Participant{}, false, err
	}
	return participant, true, nil
}

func (l *Ledger) ParticipantCount(ctx context.Context) (int, error) {
	n, err := l.client.HLen(ctx, scoresKey(l.code)).Result()
	if err != nil {
		return 0, fmt.Errorf("count participants of %s: %w", l.code, err)
	}
	return int(n), nil
}

func (l *Ledger) Participant(ctx context.Context, username string) (domain.Participant, bool, error) {
	var score, joined *redis.StringCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		score = pipe.HGet(ctx, scoresKey(l.code), username)
		joined = pipe.HGet(ctx, joinedKey(l.code), username)
		return nil
	})
	if errors.Is(err, redis.Nil) || errors.Is(score.Err(), redis.Nil) {
		return domain.Participant{}, false, nil
	}
	if err != nil {
		return domain.Participant{}, false, fmt.Errorf("load participant of %s: %w", l.code, err)
	}
	participant, err := l.participantFromReply(username, []interface{}{score.Val(), joined.Val()})
	if err != nil {
		return domain.Participant{}, false, err
	}
	return participant, true, nil
}

// Leaderboard reads order and scores in one MULTI so the snapshot is
// consistent, then ranks it like the in-process ledger.
func (l *Ledger) Leaderboard(ctx context.Context) (domain.Leaderboard, error) {
	var (
		order  *redis.StringSliceCmd
		scores *redis.MapStringStringCmd
	)
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		order = pipe.LRange(ctx, orderKey(l.code), 0, -1)
		scores = pipe.HGetAll(ctx, scoresKey(l.code))
		return nil
	})
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("load leaderboard of %s: %w", l.code, err)
	}

	byUser := scores.Val()
	entries := make([]domain.LeaderboardEntry, 0, len(order.Val()))
	for _, username := range order.Val() {
		score, err := strconv.Atoi(byUser[username])
		if err != nil {
			return domain.Leaderboard{}, fmt.Errorf("score of %s in %s: %w", username, l.code, err)
		}
		entries = append(entries, domain.LeaderboardEntry{Username: username, Score: score})
	}
	app.RankEntries(entries)

	return domain.Leaderboard{
		QuizCode:  l.code,
		Players:   entries,
		UpdatedAt: l.now(),
	}, nil
}

func (l *Ledger) participantFromReply(username string, reply interface{}) (domain.Participant, error) {
	values, ok := reply.([]interface{})
	if !ok || len(values) != 2 {
		return domain.Participant{}, fmt.Errorf("unexpected ledger reply %v", reply)
	}
	rawScore, _ := values[0].(string)
	rawJoined, _ := values[1].(string)

	score, err := strconv.Atoi(rawScore)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("parse score %q: %w", rawScore, err)
	}
	joinedAt, err := time.Parse(time.RFC3339Nano, rawJoined)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("parse joinedAt %q: %w", rawJoined, err)
	}
	return domain.Participant{
		Username: username,
		QuizCode: l.code,
		Score:    score,
		JoinedAt: joinedAt,
	}, nil
}
