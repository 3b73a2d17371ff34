package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/northlane/livechat-server/internal/metrics"
	redisclient "github.com/northlane/livechat-server/internal/redis"
)

// RedisRelay fans deliveries out across server instances over one Redis
// pub/sub channel. Every instance, the publisher included, delivers to its
// own connections from the subscription.
type RedisRelay struct {
	client  *redisclient.Client
	channel string
	target  Deliverer
}

func NewRedisRelay(client *redisclient.Client, target Deliverer) *RedisRelay {
	return &RedisRelay{
		client:  client,
		channel: redisclient.FanoutChannel(),
		target:  target,
	}
}

func (r *RedisRelay) Publish(ctx context.Context, d Delivery) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("publish delivery: %w", err)
	}
	return nil
}

// Subscribe blocks until the subscription is confirmed, then delivers in the
// background until ctx is cancelled.
func (r *RedisRelay) Subscribe(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	log.Info().Str("channel", r.channel).Msg("redis fan-out subscribed")

	go r.run(ctx, pubsub)
	return nil
}

func (r *RedisRelay) run(ctx context.Context, pubsub *redis.PubSub) {
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var d Delivery
			if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
				metrics.RelayErrors.WithLabelValues("decode").Inc()
				log.Error().Err(err).Msg("failed to unmarshal delivery")
				continue
			}

			r.target.Deliver(d)
		}
	}
}
