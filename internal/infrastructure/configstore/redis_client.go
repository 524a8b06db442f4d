package configstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPingTimeout bounds a single Ping.
const RedisPingTimeout = 500 * time.Millisecond

// RedisClient is the go-redis client used by RedisStore, sized for two keys
// read once per encoder start and written on operator saves.
type RedisClient struct {
	*redis.Client
	log *zap.Logger
}

// NewRedisClient configures a client for addr/db. No connection is made until
// the first command; call Ping to fail fast at startup.
func NewRedisClient(log *zap.Logger, addr string, db int) *RedisClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisClient{
		Client: redis.NewClient(&redis.Options{
			Addr:         addr,
			DB:           db,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
			PoolSize:     4,
			MinIdleConns: 1,
			MaxRetries:   2,
		}),
		log: log.Named("redis").With(zap.String("addr", addr), zap.Int("db", db)),
	}
}

// Ping checks connectivity and logs the round trip.
func (c *RedisClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, RedisPingTimeout)
	defer cancel()

	start := time.Now()
	err := c.Client.Ping(ctx).Err()
	rtt := time.Since(start)
	if err != nil {
		c.log.Warn("redis unreachable", zap.Duration("ping_rtt", rtt), zap.Error(err))
		return err
	}
	c.log.Info("redis connected", zap.Duration("ping_rtt", rtt))
	return nil
}
