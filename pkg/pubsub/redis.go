package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPubSub carries room broadcasts over Redis PUBLISH/PSUBSCRIBE.
type RedisPubSub struct {
	client *redis.Client

	mu   sync.Mutex
	subs []*redis.PubSub
}

func NewRedisPubSub(cfg RedisConfig) (*RedisPubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisPubSub{client: client}, nil
}

func (r *RedisPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := encodeEvent(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// SubscribePattern returns once Redis has confirmed the subscription, so
// nothing published afterwards is missed.
func (r *RedisPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	sub := r.client.PSubscribe(ctx, pattern)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
	}

	r.mu.Lock()
	r.subs = append(r.subs, sub)
	r.mu.Unlock()

	out := make(chan *Event, subscriptionBuffer)
	go r.consume(ctx, sub, out)
	return out, nil
}

func (r *RedisPubSub) consume(ctx context.Context, sub *redis.PubSub, out chan<- *Event) {
	defer close(out)
	defer sub.Close()

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			event, err := decodeEvent([]byte(msg.Payload))
			if err != nil {
				l := logger()
				l.Warn().Err(err).Str("channel", msg.Channel).Msg("redis: invalid event")
				continue
			}
			if !forward(ctx, out, event, DriverRedis) {
				return
			}
		}
	}
}

func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	for _, sub := range r.subs {
		sub.Close()
	}
	r.subs = nil
	r.mu.Unlock()

	return r.client.Close()
}
