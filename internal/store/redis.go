package store

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore implements SessionStore on Redis. Session state lives under
// game:{id}; the member set, called-number list and cards hang off the same
// prefix and share its TTL.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

// NewRedisStore wraps an existing client. ttl applies to keys written
// without an explicit lifetime (players, called numbers, cards).
func NewRedisStore(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisStore{rdb: rdb, ttl: ttl, log: log.Named("redis")}
}

// DialRedis parses a redis:// URL and returns a connected store.
func DialRedis(ctx context.Context, url string, ttl time.Duration, log *zap.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, unavailable("ping", err)
	}
	return NewRedisStore(rdb, ttl, log), nil
}

func (s *RedisStore) Close() error { return s.rdb.Close() }

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *RedisStore) GetSession(ctx context.Context, id string) ([]byte, error) {
	blob, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get session", err)
	}
	return blob, nil
}

// PutSession writes the blob and refreshes the TTL of every related key,
// members' cards included, so the whole session expires at once.
func (s *RedisStore) PutSession(ctx context.Context, id string, blob []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	members, err := s.rdb.SMembers(ctx, playersKey(id)).Result()
	if err != nil {
		return unavailable("put session", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, sessionKey(id), blob, ttl)
	pipe.Expire(ctx, playersKey(id), ttl)
	pipe.Expire(ctx, calledKey(id), ttl)
	for _, playerID := range members {
		pipe.Expire(ctx, cardKey(id, playerID), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("put session", err)
	}
	return nil
}

func (s *RedisStore) AddPlayer(ctx context.Context, id, playerID string) error {
	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, playersKey(id), playerID)
	pipe.Expire(ctx, playersKey(id), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("add player", err)
	}
	return nil
}

func (s *RedisStore) RemovePlayer(ctx context.Context, id, playerID string) error {
	if err := s.rdb.SRem(ctx, playersKey(id), playerID).Err(); err != nil {
		return unavailable("remove player", err)
	}
	return nil
}

// ListPlayers returns the member set sorted lexically. Join order is not
// recoverable from a set; callers needing it keep their own list.
func (s *RedisStore) ListPlayers(ctx context.Context, id string) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, playersKey(id)).Result()
	if err != nil {
		return nil, unavailable("list players", err)
	}
	sort.Strings(members)
	return members, nil
}

func (s *RedisStore) AppendCalledNumber(ctx context.Context, id string, number int) error {
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, calledKey(id), number)
	pipe.Expire(ctx, calledKey(id), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("append called number", err)
	}
	return nil
}

func (s *RedisStore) ListCalledNumbers(ctx context.Context, id string) ([]int, error) {
	raw, err := s.rdb.LRange(ctx, calledKey(id), 0, -1).Result()
	if err != nil {
		return nil, unavailable("list called numbers", err)
	}
	numbers := make([]int, 0, len(raw))
	for _, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.log.Warn("skipping malformed called number", zap.String("session", id), zap.String("value", v))
			continue
		}
		numbers = append(numbers, n)
	}
	return numbers, nil
}

func (s *RedisStore) GetCard(ctx context.Context, id, playerID string) ([]byte, error) {
	blob, err := s.rdb.Get(ctx, cardKey(id, playerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get card", err)
	}
	return blob, nil
}

func (s *RedisStore) PutCard(ctx context.Context, id, playerID string, blob []byte) error {
	if err := s.rdb.Set(ctx, cardKey(id, playerID), blob, s.ttl).Err(); err != nil {
		return unavailable("put card", err)
	}
	return nil
}

func (s *RedisStore) DeleteCard(ctx context.Context, id, playerID string) error {
	if err := s.rdb.Del(ctx, cardKey(id, playerID)).Err(); err != nil {
		return unavailable("delete card", err)
	}
	return nil
}

func (s *RedisStore) AddWaiting(ctx context.Context, id string) error {
	if err := s.rdb.SAdd(ctx, waitingKey, id).Err(); err != nil {
		return unavailable("add waiting", err)
	}
	return nil
}

func (s *RedisStore) RemoveWaiting(ctx context.Context, id string) error {
	if err := s.rdb.SRem(ctx, waitingKey, id).Err(); err != nil {
		return unavailable("remove waiting", err)
	}
	return nil
}

func (s *RedisStore) ListWaiting(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, waitingKey).Result()
	if err != nil {
		return nil, unavailable("list waiting", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Purge deletes the session's keys and its waiting index entry. Card keys
// are derived from the member set.
func (s *RedisStore) Purge(ctx context.Context, id string) error {
	members, err := s.rdb.SMembers(ctx, playersKey(id)).Result()
	if err != nil {
		return unavailable("purge", err)
	}
	keys := []string{sessionKey(id), playersKey(id), calledKey(id)}
	for _, playerID := range members {
		keys = append(keys, cardKey(id, playerID))
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.SRem(ctx, waitingKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("purge", err)
	}
	s.log.Debug("session purged", zap.String("session", id), zap.Int("keys", len(keys)))
	return nil
}
