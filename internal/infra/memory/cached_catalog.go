package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/domain"

	"golang.org/x/sync/singleflight"
)

// CachedCatalog keeps quiz definitions in process for a short TTL so answer
// checks do not hit the backing store on every submission. Keep the TTL short:
// edits made behind this cache become visible only after expiry; saves and
// deletes through it evict immediately.
type CachedCatalog struct {
	app.Catalog
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewCachedCatalog(backing app.Catalog, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{
		Catalog: backing,
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:   make(map[string]cachedQuiz),
	}
}

func (c *CachedCatalog) GetQuizByCode(ctx context.Context, code string) (domain.Quiz, error) {
	if quiz, ok := c.lookup(code); ok {
		return quiz, nil
	}

	result, err, _ := c.sf.Do(code, func() (interface{}, error) {
		// Re-check in case another goroutine filled it.
		if quiz, ok := c.lookup(code); ok {
			return quiz, nil
		}

		quiz, err := c.Catalog.GetQuizByCode(ctx, code)
		if err != nil {
			return domain.Quiz{}, err
		}

		if ttl := c.ttlWithJitter(); ttl > 0 {
			c.mu.Lock()
			c.cache[code] = cachedQuiz{quiz: quiz, expiresAt: c.clock().Add(ttl)}
			c.mu.Unlock()
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// SaveQuiz writes through and drops the cached copy.
func (c *CachedCatalog) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	if err := c.Catalog.SaveQuiz(ctx, quiz); err != nil {
		return err
	}
	c.evict(quiz.Code)
	return nil
}

// DeleteQuiz deletes from the backing catalog and evicts the cached copy.
func (c *CachedCatalog) DeleteQuiz(ctx context.Context, code string) error {
	if err := c.Catalog.DeleteQuiz(ctx, code); err != nil {
		return err
	}
	c.evict(code)
	return nil
}

func (c *CachedCatalog) evict(code string) {
	c.mu.Lock()
	delete(c.cache, code)
	c.mu.Unlock()
}

func (c *CachedCatalog) lookup(code string) (domain.Quiz, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[code]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return domain.Quiz{}, false
	}
	return entry.quiz, true
}

func (c *CachedCatalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
