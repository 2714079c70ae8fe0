// Package broker connects the subscription ingestion path to a message broker.
//
// A Subscriber listens on one fixed topic of one broker and hands each raw
// payload to a delivery function. Deliveries go through a bounded Queue so the
// broker client's callback goroutine never waits on the store.
//
// Available subscribers:
//   - mqtt:  Eclipse Paho MQTT client
//   - redis: Redis Pub/Sub channel
//   - nats:  NATS subject
//   - none:  subscription path disabled
package broker

import (
	"context"
)

// Subscriber delivers raw payloads from one broker topic.
type Subscriber interface {
	// Subscribe connects, subscribes and blocks until ctx is done, calling
	// deliver for every payload received. deliver must not block.
	// It returns nil when ctx is canceled.
	Subscribe(ctx context.Context, deliver func([]byte)) error

	// Name returns the broker kind, e.g. "mqtt". It is used as the
	// snapshot source for readings received through this subscriber.
	Name() string
}

// disabled is the "none" subscriber.
type disabled struct{}

func (disabled) Subscribe(ctx context.Context, _ func([]byte)) error {
	<-ctx.Done()
	return nil
}

func (disabled) Name() string { return KindNone }
