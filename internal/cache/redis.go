package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"relicforge/internal/logging"
	"relicforge/internal/metrics"
	"relicforge/internal/types"
)

const (
	redisEntryPrefix = "relicforge:cache:entry:"
	redisCreatedZSet = "relicforge:cache:created"
	redisDelChunk    = 512
)

// lookupScript reads the entry and bumps its hit counter in one round trip,
// so concurrent lookups never lose increments. Returns nil when the entry
// is absent or already expired away by the server.
var lookupScript = redis.NewScript(`
local data = redis.call('HGET', KEYS[1], 'data')
if not data then
	return false
end
local hits = redis.call('HINCRBY', KEYS[1], 'hits', 1)
return {data, hits}
`)

// RedisOptions carries connection settings for the redis backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// Redis shares cache entries between processes. Each entry is a hash
// (data, hits, size) under a server-side TTL; a sorted set indexed by
// creation time drives trim order and statistics.
type Redis struct {
	client *redis.Client
	clock  types.Clock
}

// NewRedis connects and pings the server so misconfiguration fails at
// startup instead of on the first lookup.
func NewRedis(opts RedisOptions, clock types.Clock) (*Redis, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis cache address is empty")
	}
	if clock == nil {
		clock = types.SystemClock{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", opts.Addr, err)
	}

	logging.CacheDebug("redis cache connected to %s", opts.Addr)
	return &Redis{client: client, clock: clock}, nil
}

func redisEntryKey(key string) string { return redisEntryPrefix + key }

// Lookup runs the scripted read-and-increment. Server-side TTL already
// hides expired entries.
func (r *Redis) Lookup(ctx context.Context, key string) (*types.CacheEntry, bool, error) {
	res, err := lookupScript.Run(ctx, r.client, []string{redisEntryKey(key)}).Result()
	if errors.Is(err, redis.Nil) {
		metrics.CacheRequests.WithLabelValues(BackendRedis, "miss").Inc()
		return nil, false, nil
	}
	if err != nil {
		metrics.CacheRequests.WithLabelValues(BackendRedis, "error").Inc()
		return nil, false, types.Internal("cache lookup", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return nil, false, types.Internal("cache lookup",
			fmt.Errorf("unexpected script reply %T", res))
	}
	data, _ := vals[0].(string)
	hits, _ := vals[1].(int64)

	var entry types.CacheEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, false, types.Internal("decode cache entry", err)
	}
	entry.HitCount = hits
	metrics.CacheRequests.WithLabelValues(BackendRedis, "hit").Inc()
	return &entry, true, nil
}

// Store writes the entry hash, arms its TTL, and indexes its creation time,
// all in one transactional pipeline.
func (r *Redis) Store(ctx context.Context, entry *types.CacheEntry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = types.DefaultCacheTTL
	}
	stored := *entry
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.clock.Now()
	}
	stored.ExpiresAt = stored.CreatedAt.Add(ttl)
	stored.HitCount = 0

	raw, err := json.Marshal(&stored)
	if err != nil {
		return types.Internal("encode cache entry", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		ek := redisEntryKey(entry.Key)
		pipe.HSet(ctx, ek, "data", raw, "hits", 0, "size", len(raw))
		pipe.PExpire(ctx, ek, ttl)
		pipe.ZAdd(ctx, redisCreatedZSet, &redis.Z{
			Score:  float64(stored.CreatedAt.UnixMilli()),
			Member: entry.Key,
		})
		return nil
	})
	if err != nil {
		return types.Internal("cache store", err)
	}
	return nil
}

// reconcile drops index members whose entry hash the server already
// expired, returning how many were removed.
func (r *Redis) reconcile(ctx context.Context) (int, error) {
	members, err := r.client.ZRange(ctx, redisCreatedZSet, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, nil
	}

	cmds := make([]*redis.IntCmd, len(members))
	pipe := r.client.Pipeline()
	for i, member := range members {
		cmds[i] = pipe.Exists(ctx, redisEntryKey(member))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	var stale []interface{}
	for i, cmd := range cmds {
		if cmd.Val() == 0 {
			stale = append(stale, members[i])
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := r.client.ZRem(ctx, redisCreatedZSet, stale...).Err(); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// CleanupExpired reconciles the creation index against entries the server
// expired. The server deletes entry data itself, so the returned count is
// the number of index slots reclaimed.
func (r *Redis) CleanupExpired(ctx context.Context) (int, error) {
	n, err := r.reconcile(ctx)
	if err != nil {
		return 0, types.Internal("cache cleanup", err)
	}
	return n, nil
}

// TrimToSize drops the oldest live entries until at most max remain.
func (r *Redis) TrimToSize(ctx context.Context, max int) (int, error) {
	if max <= 0 {
		max = types.DefaultCacheMaxEntries
	}
	if _, err := r.reconcile(ctx); err != nil {
		return 0, types.Internal("cache trim", err)
	}

	count, err := r.client.ZCard(ctx, redisCreatedZSet).Result()
	if err != nil {
		return 0, types.Internal("cache trim", err)
	}
	excess := int(count) - max
	if excess <= 0 {
		return 0, nil
	}

	oldest, err := r.client.ZRange(ctx, redisCreatedZSet, 0, int64(excess)-1).Result()
	if err != nil {
		return 0, types.Internal("cache trim", err)
	}
	if err := r.deleteEntries(ctx, oldest); err != nil {
		return 0, types.Internal("cache trim", err)
	}
	return len(oldest), nil
}

// DeleteAll drops every entry and the creation index.
func (r *Redis) DeleteAll(ctx context.Context) error {
	members, err := r.client.ZRange(ctx, redisCreatedZSet, 0, -1).Result()
	if err != nil {
		return types.Internal("cache clear", err)
	}
	if err := r.deleteEntries(ctx, members); err != nil {
		return types.Internal("cache clear", err)
	}
	if err := r.client.Del(ctx, redisCreatedZSet).Err(); err != nil {
		return types.Internal("cache clear", err)
	}
	return nil
}

func (r *Redis) deleteEntries(ctx context.Context, members []string) error {
	for start := 0; start < len(members); start += redisDelChunk {
		end := start + redisDelChunk
		if end > len(members) {
			end = len(members)
		}
		chunk := members[start:end]

		keys := make([]string, len(chunk))
		zmembers := make([]interface{}, len(chunk))
		for i, member := range chunk {
			keys[i] = redisEntryKey(member)
			zmembers[i] = member
		}
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return err
		}
		if err := r.client.ZRem(ctx, redisCreatedZSet, zmembers...).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Stats reconciles the index and summarizes the live population.
func (r *Redis) Stats(ctx context.Context, topN int) (*types.CacheStats, error) {
	if _, err := r.reconcile(ctx); err != nil {
		return nil, types.Internal("cache stats", err)
	}
	members, err := r.client.ZRange(ctx, redisCreatedZSet, 0, -1).Result()
	if err != nil {
		return nil, types.Internal("cache stats", err)
	}

	stats := &types.CacheStats{}
	if len(members) == 0 {
		return stats, nil
	}

	cmds := make([]*redis.SliceCmd, len(members))
	pipe := r.client.Pipeline()
	for i, member := range members {
		cmds[i] = pipe.HMGet(ctx, redisEntryKey(member), "hits", "size")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, types.Internal("cache stats", err)
	}

	tops := make([]types.CacheTopEntry, 0, len(members))
	for i, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) != 2 || vals[0] == nil {
			continue // expired between reconcile and read
		}
		hits := parseRedisInt(vals[0])
		size := parseRedisInt(vals[1])

		stats.Entries++
		stats.TotalHits += hits
		stats.SizeBytes += size
		tops = append(tops, types.CacheTopEntry{Key: members[i], HitCount: hits})
	}
	if stats.Entries > 0 {
		stats.AverageHits = float64(stats.TotalHits) / float64(stats.Entries)
	}
	if topN <= 0 {
		return stats, nil
	}

	sort.Slice(tops, func(i, j int) bool {
		if tops[i].HitCount != tops[j].HitCount {
			return tops[i].HitCount > tops[j].HitCount
		}
		return tops[i].Key < tops[j].Key
	})
	if len(tops) > topN {
		tops = tops[:topN]
	}

	// Attach relic ids to the top entries only; the full population would
	// mean fetching every entry body.
	for i := range tops {
		data, err := r.client.HGet(ctx, redisEntryKey(tops[i].Key), "data").Result()
		if err != nil {
			continue
		}
		var entry types.CacheEntry
		if err := json.Unmarshal([]byte(data), &entry); err == nil {
			tops[i].RelicIDs = entry.Input.RelicIDs
		}
	}
	if len(tops) > 0 {
		stats.TopEntries = tops
	}
	return stats, nil
}

// Close releases the client and its connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

func parseRedisInt(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	}
	return 0
}
