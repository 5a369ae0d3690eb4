package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/bson"

	"kanban-api/domain"
)

type backend interface {
	FindBoard(ctx context.Context, boardID bson.ObjectID) (domain.Board, error)
	FindCardsByBoard(ctx context.Context, boardID bson.ObjectID) ([]domain.Card, error)
	FindUser(ctx context.Context, userID bson.ObjectID) (domain.UserSnapshot, error)
}

// Cache wraps a Store with Redis-backed read-through caching for board,
// card-list and user-snapshot reads. Entries are written without expiry
// unless a safety TTL is configured; repositories invalidate explicitly
// after writes. A nil Redis client degrades every read to the store.
type Cache struct {
	*Store
	base   backend
	redis  *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

// NewCache creates a caching wrapper using the provided Redis client. A ttl
// of zero stores entries without expiry.
func NewCache(base backend, client *redis.Client, ttl time.Duration, logger *log.Logger) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}

	c := &Cache{
		base:   base,
		redis:  client,
		ttl:    ttl,
		logger: logger,
	}
	if s, ok := base.(*Store); ok {
		c.Store = s
	}
	return c
}

// FetchBoard returns the board from cache, falling back to the store on a
// miss and populating the key.
func (c *Cache) FetchBoard(ctx context.Context, boardID bson.ObjectID) (domain.Board, error) {
	key := boardCacheKey(boardID)
	var cached domain.Board
	if c.load(ctx, key, &cached) {
		return cached, nil
	}

	board, err := c.base.FindBoard(ctx, boardID)
	if err != nil {
		return domain.Board{}, err
	}

	c.store(ctx, key, board)
	return board, nil
}

// FetchCards returns the board's card list from cache, falling back to the
// store on a miss and populating the key.
func (c *Cache) FetchCards(ctx context.Context, boardID bson.ObjectID) ([]domain.Card, error) {
	key := cardsCacheKey(boardID)
	var cached []domain.Card
	if c.load(ctx, key, &cached) {
		return cached, nil
	}

	cards, err := c.base.FindCardsByBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}

	c.store(ctx, key, cards)
	return cards, nil
}

// FetchUser returns the user snapshot from cache, falling back to the store
// on a miss and populating the key.
func (c *Cache) FetchUser(ctx context.Context, userID bson.ObjectID) (domain.UserSnapshot, error) {
	key := userCacheKey(userID)
	var cached domain.UserSnapshot
	if c.load(ctx, key, &cached) {
		return cached, nil
	}

	user, err := c.base.FindUser(ctx, userID)
	if err != nil {
		return domain.UserSnapshot{}, err
	}

	c.store(ctx, key, user)
	return user, nil
}

// EvictBoard drops the board's cache key. Failures are logged and swallowed:
// a failed invalidation must not mask a successful mutation.
func (c *Cache) EvictBoard(ctx context.Context, boardID bson.ObjectID) {
	c.evict(ctx, boardCacheKey(boardID))
}

// EvictCards drops the board's card-list cache key.
func (c *Cache) EvictCards(ctx context.Context, boardID bson.ObjectID) {
	c.evict(ctx, cardsCacheKey(boardID))
}

func (c *Cache) load(ctx context.Context, key string, out any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the store without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, value any) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.WithFields(log.Fields{"key": key, "error": err.Error()}).Warn("cache populate failed")
	}
}

func (c *Cache) evict(ctx context.Context, key string) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, key).Err(); err != nil && c.logger != nil {
		c.logger.WithFields(log.Fields{"key": key, "error": err.Error()}).Warn("cache invalidation failed")
	}
}

func boardCacheKey(boardID bson.ObjectID) string {
	return "board:" + boardID.Hex()
}

func cardsCacheKey(boardID bson.ObjectID) string {
	return "cards:" + boardID.Hex()
}

func userCacheKey(userID bson.ObjectID) string {
	return "user:" + userID.Hex()
}
