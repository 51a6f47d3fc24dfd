// Package cache implements the two-tier result/BM25-index cache (component
// C1). A bounded in-process LRU (hashicorp/golang-lru/v2, the same library
// the teacher's query classifier uses for its hot-key cache) sits in front
// of a Redis-backed store for the "result:" and "bm25:" namespaces
// described in §4.2 and §6. Every operation degrades to a miss or no-op on
// a store error: callers never see a cache failure as an error (§7,
// "Corruption... recovered locally").
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	resultPrefix = "result:"
	bm25Prefix   = "bm25:"

	// DefaultResultTTL is the result-cache entry lifetime (§3 "Cache
	// entries").
	DefaultResultTTL = 3600 * time.Second
	// DefaultBM25TTL is the cached BM25 index's lifetime.
	DefaultBM25TTL = 7200 * time.Second

	defaultL1Size = 512
)

// ResultEntry is one cached hybrid-search report.
type ResultEntry struct {
	Payload    json.RawMessage `json:"payload"`
	CachedAt   time.Time       `json:"cached_at"`
	TTLSeconds int             `json:"ttl_seconds"`
	FromCache  bool            `json:"-"`
	ReadAt     time.Time       `json:"-"`
}

// Store is the Cache Store abstraction the Hybrid Retriever and BM25
// Indexer depend on. Implementations MUST NOT return an error for a miss;
// ok=false signals a miss.
type Store interface {
	GetResult(ctx context.Context, key string) (ResultEntry, bool)
	PutResult(ctx context.Context, key string, entry ResultEntry, ttl time.Duration)
	GetBM25(ctx context.Context, accessLevel int) ([]byte, bool)
	PutBM25(ctx context.Context, accessLevel int, blob []byte, ttl time.Duration)
	Invalidate(ctx context.Context, prefix string)
	// Ping reports whether the backing store is reachable, for the health
	// endpoint's cache-store liveness check (§6).
	Ping(ctx context.Context) error
}

// RedisStore is the production Store, a Redis client fronted by a bounded
// in-process LRU for the hottest keys.
type RedisStore struct {
	rdb *redis.Client
	l1  *lru.Cache[string, []byte]
	log zerolog.Logger
}

// NewRedisStore builds a RedisStore. l1Size <= 0 selects defaultL1Size.
func NewRedisStore(rdb *redis.Client, l1Size int, log zerolog.Logger) *RedisStore {
	if l1Size <= 0 {
		l1Size = defaultL1Size
	}
	l1, _ := lru.New[string, []byte](l1Size)
	return &RedisStore{rdb: rdb, l1: l1, log: log.With().Str("component", "cache").Logger()}
}

// ResultKey computes "result:{md5(canonical_json)}" from the lowercased,
// trimmed query, the access level and the canonicalized search params
// (§4.2). params keys are sorted so the same parameter set always hashes
// identically regardless of map iteration order.
func ResultKey(query string, accessLevel int, params map[string]any) string {
	canon := struct {
		Query       string         `json:"query"`
		AccessLevel int            `json:"access_level"`
		Params      map[string]any `json:"params"`
	}{
		Query:       strings.ToLower(strings.TrimSpace(query)),
		AccessLevel: accessLevel,
		Params:      canonicalParams(params),
	}
	b, _ := json.Marshal(canon)
	sum := md5.Sum(b) //nolint:gosec // cache key, not a security boundary
	return resultPrefix + hex.EncodeToString(sum[:])
}

// BM25Key computes "bm25:index_{access_level}" (§6).
func BM25Key(accessLevel int) string {
	return bm25Prefix + "index_" + strconv.Itoa(accessLevel)
}

// canonicalParams sorts a params map's keys into a deterministic
// representation by round-tripping through an ordered key list; Go's
// encoding/json already sorts map keys on marshal, so this mostly
// documents the intent and guards against nil.
func canonicalParams(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]any, len(params))
	for _, k := range keys {
		out[k] = params[k]
	}
	return out
}

// GetResult looks up a cached search report. A hit is marked FromCache=true
// with ReadAt stamped to now, per §4.2's "augmented on read" rule.
func (s *RedisStore) GetResult(ctx context.Context, key string) (ResultEntry, bool) {
	raw, ok := s.get(ctx, key)
	if !ok {
		return ResultEntry{}, false
	}
	var entry ResultEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		s.log.Debug().Err(err).Str("key", key).Msg("corrupt result cache entry, treating as miss")
		return ResultEntry{}, false
	}
	entry.FromCache = true
	entry.ReadAt = time.Now()
	return entry, true
}

// PutResult stores a search report with FromCache=false (it is set true
// only when read back).
func (s *RedisStore) PutResult(ctx context.Context, key string, entry ResultEntry, ttl time.Duration) {
	entry.FromCache = false
	if entry.CachedAt.IsZero() {
		entry.CachedAt = time.Now()
	}
	entry.TTLSeconds = int(ttl.Seconds())
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	s.put(ctx, key, raw, ttl)
}

// GetBM25 returns the cached serialized BM25 index blob for accessLevel.
func (s *RedisStore) GetBM25(ctx context.Context, accessLevel int) ([]byte, bool) {
	return s.get(ctx, BM25Key(accessLevel))
}

// PutBM25 caches a serialized BM25 index blob for accessLevel.
func (s *RedisStore) PutBM25(ctx context.Context, accessLevel int, blob []byte, ttl time.Duration) {
	s.put(ctx, BM25Key(accessLevel), blob, ttl)
}

// Invalidate removes every key under prefix from both the L1 and Redis.
func (s *RedisStore) Invalidate(ctx context.Context, prefix string) {
	for _, k := range s.l1.Keys() {
		if strings.HasPrefix(k, prefix) {
			s.l1.Remove(k)
		}
	}
	if s.rdb == nil {
		return
	}
	iter := s.rdb.Scan(ctx, 0, prefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.log.Debug().Err(err).Str("prefix", prefix).Msg("invalidate scan failed, degrading to no-op")
		return
	}
	if len(keys) > 0 {
		if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
			s.log.Debug().Err(err).Msg("invalidate delete failed")
		}
	}
}

// Ping checks Redis reachability directly, bypassing the L1 and the
// degrade-to-miss behavior every other method follows — the health
// endpoint needs a real answer, not a masked failure.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) get(ctx context.Context, key string) ([]byte, bool) {
	if v, ok := s.l1.Get(key); ok {
		return v, true
	}
	if s.rdb == nil {
		return nil, false
	}
	v, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.log.Debug().Err(err).Str("key", key).Msg("cache get failed, treating as miss")
		}
		return nil, false
	}
	s.l1.Add(key, v)
	return v, true
}

func (s *RedisStore) put(ctx context.Context, key string, value []byte, ttl time.Duration) {
	s.l1.Add(key, value)
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		s.log.Debug().Err(err).Str("key", key).Msg("cache put failed")
	}
}
