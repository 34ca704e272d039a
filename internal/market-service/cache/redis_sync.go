package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/prediction-market-poc/pkg/contracts/events"
)

// RedisSync replica o estado dos mercados: snapshot em cache com TTL
// e evento MarketSynced no canal Pub/Sub a cada mutação aceita
type RedisSync struct {
	Client  *redis.Client
	TTL     time.Duration
	Channel string
	now     func() time.Time
}

func NewRedisSync(c *redis.Client, channel string, ttl time.Duration) *RedisSync {
	return &RedisSync{Client: c, TTL: ttl, Channel: channel, now: time.Now}
}

func key(marketID string) string { return "market:snapshot:" + marketID }

// Get lê o snapshot em cache; ok=false em cache miss
func (r *RedisSync) Get(ctx context.Context, marketID string) (events.MarketSnapshot, bool, error) {
	var snap events.MarketSnapshot
	b, err := r.Client.Get(ctx, key(marketID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, err
	}
	if err := json.Unmarshal(b, &snap); err != nil {
		return snap, false, err
	}
	return snap, true, nil
}

// Sync grava o snapshot e publica o MarketSynced em um único pipeline
func (r *RedisSync) Sync(ctx context.Context, reason string, snap events.MarketSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	ev, err := json.Marshal(events.MarketSynced{Market: snap, Reason: reason, Ts: r.now().UTC()})
	if err != nil {
		return err
	}
	_, err = r.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key(snap.ID), b, r.TTL)
		p.Publish(ctx, r.Channel, ev)
		return nil
	})
	return err
}

// Put grava o snapshot sem publicar (preenchimento após cache miss)
func (r *RedisSync) Put(ctx context.Context, snap events.MarketSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, key(snap.ID), b, r.TTL).Err()
}
