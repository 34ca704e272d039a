package ws

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/prediction-market-poc/pkg/contracts/events"
)

// RunRedisSubscriber escuta o canal de MarketSynced e repassa cada snapshot ao Hub.
// Bloqueia até o contexto ser cancelado.
func RunRedisSubscriber(ctx context.Context, r *redis.Client, channel string, hub *Hub, log *zap.Logger) error {
	sub := r.Subscribe(ctx, channel)
	defer sub.Close()
	ch := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev events.MarketSynced
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn("ws subscriber unmarshal", zap.Error(err))
				continue
			}
			hub.Broadcast(ev)
		}
	}
}
