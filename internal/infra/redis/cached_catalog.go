package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CachedCatalog caches quiz definitions in Redis so every instance shares one
// warm copy, and falls back to the backing catalog on a miss.
// Quizzes are stored as JSON: SET quiz:{code}:definition <json> EX <ttl>
type CachedCatalog struct {
	app.Catalog
	client *redis.Client
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewCachedCatalog(client *redis.Client, backing app.Catalog, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{
		Catalog: backing,
		client:  client,
		ttl:     ttl,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *CachedCatalog) GetQuizByCode(ctx context.Context, code string) (domain.Quiz, error) {
	if quiz, ok := c.lookup(ctx, code); ok {
		return quiz, nil
	}

	result, err, _ := c.sf.Do(code, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := c.lookup(ctx, code); ok {
			return quiz, nil
		}

		quiz, err := c.Catalog.GetQuizByCode(ctx, code)
		if err != nil {
			return domain.Quiz{}, err
		}

		if ttl := c.ttlWithJitter(); ttl > 0 {
			if data, err := json.Marshal(quiz); err == nil {
				// best effort: a failed write only costs a reload
				_ = c.client.Set(ctx, definitionKey(code), data, ttl).Err()
			}
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// SaveQuiz writes through and evicts the cached definition.
func (c *CachedCatalog) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	if err := c.Catalog.SaveQuiz(ctx, quiz); err != nil {
		return err
	}
	return c.client.Del(ctx, definitionKey(quiz.Code)).Err()
}

// DeleteQuiz deletes from the backing catalog and evicts the shared copy.
func (c *CachedCatalog) DeleteQuiz(ctx context.Context, code string) error {
	if err := c.Catalog.DeleteQuiz(ctx, code); err != nil {
		return err
	}
	return c.client.Del(ctx, definitionKey(code)).Err()
}

func (c *CachedCatalog) lookup(ctx context.Context, code string) (domain.Quiz, bool) {
	data, err := c.client.Get(ctx, definitionKey(code)).Bytes()
	if err != nil {
		// redis.Nil is a plain miss; other errors degrade to the backing store too.
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(data, &quiz); err != nil {
		return domain.Quiz{}, false
	}
	return quiz, true
}

func definitionKey(code string) string {
	return "quiz:" + code + ":definition"
}

func (c *CachedCatalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
