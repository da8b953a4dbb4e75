package sink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/crypto-price-stream/pkg/contracts/events"
	ctopics "github.com/radieske/crypto-price-stream/pkg/contracts/topics"
)

// RedisSink grava o último snapshot com TTL e publica no canal de broadcast
// Client: cliente Redis
// TTL: expiração do snapshot (some sozinho se o serviço parar)
type RedisSink struct {
	Client  *redis.Client
	Key     string
	Channel string
	TTL     time.Duration
}

func NewRedisSink(c *redis.Client, channel string, ttl time.Duration) *RedisSink {
	if channel == "" {
		channel = ctopics.PricesBroadcast
	}
	return &RedisSink{Client: c, Key: ctopics.PricesSnapshotKey, Channel: channel, TTL: ttl}
}

func (r *RedisSink) Name() string { return "redis" }

// Publish usa um pipeline: SET + PUBLISH numa única ida ao servidor
func (r *RedisSink) Publish(ctx context.Context, update events.PriceUpdate) error {
	b, err := json.Marshal(update)
	if err != nil {
		return err
	}

	pipe := r.Client.Pipeline()
	pipe.Set(ctx, r.Key, b, r.TTL)
	pipe.Publish(ctx, r.Channel, b)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisSink) Close() error { return r.Client.Close() }
