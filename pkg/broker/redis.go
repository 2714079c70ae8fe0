package broker

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSubscriber subscribes to one Redis Pub/Sub channel.
type RedisSubscriber struct {
	Addr     string
	Channel  string
	Password string
	DB       int
	TLS      *tls.Config

	logger *slog.Logger
}

// Name returns "redis".
func (s *RedisSubscriber) Name() string { return KindRedis }

// Subscribe blocks until ctx is done. go-redis re-establishes the
// subscription after connection loss.
func (s *RedisSubscriber) Subscribe(ctx context.Context, deliver func([]byte)) error {
	logger := s.logger
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:        s.Addr,
		Password:    s.Password,
		DB:          s.DB,
		TLSConfig:   s.TLS,
		DialTimeout: 5 * time.Second,
	})
	defer client.Close()

	pubsub := client.Subscribe(ctx, s.Channel)
	defer pubsub.Close()

	// Wait for the subscription confirmation so connection errors surface here.
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe to redis channel %s at %s: %w", s.Channel, s.Addr, err)
	}
	logger.Info("subscribed", "addr", s.Addr, "channel", s.Channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			logger.Info("redis subscriber stopped", "channel", s.Channel)
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis subscription on %s closed", s.Channel)
			}
			deliver([]byte(msg.Payload))
		}
	}
}
