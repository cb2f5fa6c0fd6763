package redis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dtroode/authkeeper-server/internal/logger"
	"github.com/dtroode/authkeeper-server/internal/model"
)

var _ model.SessionStore = (*SessionCache)(nil)

const (
	mainKeyPrefix    = "session:main:"
	indexKeyPrefix   = "session:id:"
	revokedKeyPrefix = "session:revoked:"
)

// storeScript writes the main secret entry and its index unless the session
// carries a revocation tombstone.
//
// KEYS: main key, index key, tombstone key. ARGV: payload, encoded digest, ttl ms.
var storeScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[3]) == 1 then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`)

// SessionCache decorates the authoritative session store with a Redis
// lookup for main secrets. Entries are written only when a main secret is
// minted and are never populated from reads, so a deleted entry cannot be
// resurrected by a concurrent lookup.
//
// A delete leaves a tombstone for the session id that lives as long as a
// cache entry could. A write racing with the delete (a refresh or issue
// whose durable commit landed first) checks the tombstone atomically and
// is discarded.
type SessionCache struct {
	next   model.SessionStore
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger *logger.Logger
	now    func() time.Time
}

func NewSessionCache(next model.SessionStore, rdb redis.UniversalClient, ttl time.Duration, logger *logger.Logger) *SessionCache {
	return &SessionCache{next: next, rdb: rdb, ttl: ttl, logger: logger, now: time.Now}
}

func (c *SessionCache) Create(ctx context.Context, session model.Session) error {
	if err := c.next.Create(ctx, session); err != nil {
		return err
	}
	c.store(ctx, session)
	return nil
}

func (c *SessionCache) GetByID(ctx context.Context, id int64) (model.Session, error) {
	return c.next.GetByID(ctx, id)
}

func (c *SessionCache) GetByAuthDigest(ctx context.Context, digest []byte) (model.Session, error) {
	return c.next.GetByAuthDigest(ctx, digest)
}

// GetByMainDigest answers from Redis when possible and falls back to the
// durable store on a miss or a Redis failure.
func (c *SessionCache) GetByMainDigest(ctx context.Context, digest []byte) (model.Session, error) {
	raw, err := c.rdb.Get(ctx, mainKey(digest)).Bytes()
	switch {
	case err == nil:
		var session model.Session
		if err := json.Unmarshal(raw, &session); err != nil {
			c.logger.Warn("Session cache: dropping corrupt entry")
			c.rdb.Del(ctx, mainKey(digest))
			break
		}
		revoked, err := c.rdb.Exists(ctx, revokedKey(session.ID)).Result()
		if err != nil {
			c.logger.Warn("Session cache: tombstone check failed, using durable store",
				"session_id", session.ID,
				"error", err.Error())
			break
		}
		if revoked > 0 {
			c.rdb.Del(ctx, mainKey(digest), indexKey(session.ID))
			break
		}
		session.MainDigest = digest
		return session, nil
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("Session cache: lookup failed, using durable store",
			"error", err.Error())
	}

	return c.next.GetByMainDigest(ctx, digest)
}

func (c *SessionCache) ListByAccount(ctx context.Context, accountID int64) ([]model.Session, error) {
	return c.next.ListByAccount(ctx, accountID)
}

// Rotate drops the old main secret from the cache before the durable
// update. If that drop fails the rotation is refused, since the old secret
// would otherwise stay usable until its TTL.
func (c *SessionCache) Rotate(ctx context.Context, current model.Session, next model.Session) (model.Session, error) {
	if err := c.rdb.Del(ctx, mainKey(current.MainDigest)).Err(); err != nil {
		return model.Session{}, fmt.Errorf("failed to invalidate cached main secret: %w", err)
	}

	rotated, err := c.next.Rotate(ctx, current, next)
	if err != nil {
		return model.Session{}, err
	}

	c.store(ctx, rotated)
	return rotated, nil
}

func (c *SessionCache) Delete(ctx context.Context, id int64) (model.Session, error) {
	deleted, err := c.next.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			if evictErr := c.Evict(ctx, id); evictErr != nil {
				c.logger.Warn("Session cache: failed to evict session",
					"session_id", id,
					"error", evictErr.Error())
			}
			c.drop(ctx, model.Session{ID: id})
		}
		return model.Session{}, err
	}

	c.drop(ctx, deleted)
	return deleted, nil
}

func (c *SessionCache) DeleteAllByAccount(ctx context.Context, accountID int64, keepID int64) ([]model.Session, error) {
	deleted, err := c.next.DeleteAllByAccount(ctx, accountID, keepID)
	if err != nil {
		return nil, err
	}

	c.drop(ctx, deleted...)
	return deleted, nil
}

// Evict removes the cached main secret of a session by id. It is safe to
// call any number of times.
func (c *SessionCache) Evict(ctx context.Context, sessionID int64) error {
	idx := indexKey(sessionID)
	encoded, err := c.rdb.Get(ctx, idx).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("failed to read session index: %w", err)
	}

	if err := c.rdb.Del(ctx, mainKeyPrefix+encoded, idx).Err(); err != nil {
		return fmt.Errorf("failed to evict session: %w", err)
	}
	return nil
}

func (c *SessionCache) store(ctx context.Context, session model.Session) {
	ttl := c.ttl
	if left := session.MainExpiresAt.Sub(c.now()); left < ttl {
		ttl = left
	}
	if ttl <= 0 {
		return
	}

	raw, err := json.Marshal(session)
	if err != nil {
		c.logger.Error("Session cache: failed to marshal session",
			"session_id", session.ID,
			"error", err.Error())
		return
	}

	keys := []string{mainKey(session.MainDigest), indexKey(session.ID), revokedKey(session.ID)}
	ttlMs := ttl.Milliseconds()
	if ttlMs < 1 {
		ttlMs = 1
	}
	stored, err := storeScript.Run(ctx, c.rdb, keys, raw, encodeDigest(session.MainDigest), ttlMs).Int()
	if err != nil {
		c.logger.Warn("Session cache: failed to store main secret",
			"session_id", session.ID,
			"error", err.Error())
		return
	}
	if stored == 0 {
		c.logger.Debug("Session cache: session revoked before caching",
			"session_id", session.ID)
	}
}

// drop tombstones the sessions and deletes their cache entries in one
// transaction.
func (c *SessionCache) drop(ctx context.Context, sessions ...model.Session) {
	if len(sessions) == 0 {
		return
	}

	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		keys := make([]string, 0, len(sessions)*2)
		for _, s := range sessions {
			p.Set(ctx, revokedKey(s.ID), "1", c.ttl)
			keys = append(keys, indexKey(s.ID))
			if len(s.MainDigest) > 0 {
				keys = append(keys, mainKey(s.MainDigest))
			}
		}
		p.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		c.logger.Error("Session cache: failed to drop revoked sessions",
			"count", len(sessions),
			"error", err.Error())
	}
}

func encodeDigest(digest []byte) string {
	return base64.RawURLEncoding.EncodeToString(digest)
}

func mainKey(digest []byte) string {
	return mainKeyPrefix + encodeDigest(digest)
}

func indexKey(id int64) string {
	return indexKeyPrefix + strconv.FormatInt(id, 10)
}

func revokedKey(id int64) string {
	return revokedKeyPrefix + strconv.FormatInt(id, 10)
}
