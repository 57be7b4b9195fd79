package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/learntrack-backend/internal/config"
	"github.com/stemsi/learntrack-backend/internal/model"
)

var errStaleStats = errors.New("stats generation moved")

// generationTTL outlives any single stats computation by a wide margin.
const generationTTL = 24 * time.Hour

// StatsCache keeps computed progress stats in Redis. Every failure is
// logged and treated as a miss; stats are always derivable from the store.
type StatsCache struct {
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

// NewStatsCache creates a new StatsCache.
func NewStatsCache(rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *StatsCache {
	return &StatsCache{
		rdb: rdb,
		ttl: ttl,
		log: log.With().Str("component", "stats_cache").Logger(),
	}
}

func (c *StatsCache) Get(ctx context.Context, userID string) (*model.ProgressStats, bool) {
	raw, err := c.rdb.Get(ctx, config.CacheKey.UserStatsKey(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Str("user_id", userID).Msg("Stats cache read failed")
		}
		return nil, false
	}
	var stats model.ProgressStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		c.log.Warn().Err(err).Str("user_id", userID).Msg("Discarding corrupt stats cache entry")
		return nil, false
	}
	return &stats, true
}

// Generation returns the user's current stats generation. A missing counter
// is generation 0.
func (c *StatsCache) Generation(ctx context.Context, userID string) (int64, bool) {
	gen, err := c.rdb.Get(ctx, config.CacheKey.UserStatsGenerationKey(userID)).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, true
	case err != nil:
		c.log.Warn().Err(err).Str("user_id", userID).Msg("Stats generation read failed")
		return 0, false
	}
	return gen, true
}

// Set stores stats computed at generation gen. The write is dropped when an
// Invalidate has bumped the generation since.
func (c *StatsCache) Set(ctx context.Context, userID string, gen int64, stats *model.ProgressStats) {
	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	genKey := config.CacheKey.UserStatsGenerationKey(userID)

	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleStats
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, config.CacheKey.UserStatsKey(userID), raw, c.ttl)
			return nil
		})
		return err
	}, genKey)

	switch {
	case err == nil:
	case errors.Is(err, errStaleStats), errors.Is(err, redis.TxFailedErr):
		c.log.Debug().Str("user_id", userID).Int64("generation", gen).Msg("Skipping stale stats cache write")
	default:
		c.log.Warn().Err(err).Str("user_id", userID).Msg("Stats cache write failed")
	}
}

func (c *StatsCache) Invalidate(ctx context.Context, userID string) {
	genKey := config.CacheKey.UserStatsGenerationKey(userID)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		pipe.Del(ctx, config.CacheKey.UserStatsKey(userID))
		return nil
	})
	if err != nil {
		c.log.Warn().Err(err).Str("user_id", userID).Msg("Stats cache invalidation failed")
	}
}
