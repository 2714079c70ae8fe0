package broker

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSSubscriber subscribes to one NATS subject.
type NATSSubscriber struct {
	URL      string
	Subject  string
	Username string
	Password string
	TLS      *tls.Config

	logger *slog.Logger
}

// Name returns "nats".
func (s *NATSSubscriber) Name() string { return KindNATS }

// Subscribe connects and blocks until ctx is done.
func (s *NATSSubscriber) Subscribe(ctx context.Context, deliver func([]byte)) error {
	logger := s.logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := []nats.Option{
		nats.Name("envmon"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}
	if s.Username != "" {
		opts = append(opts, nats.UserInfo(s.Username, s.Password))
	}
	if s.TLS != nil {
		opts = append(opts, nats.Secure(s.TLS))
	}

	nc, err := nats.Connect(s.URL, opts...)
	if err != nil {
		return fmt.Errorf("connect to nats at %s: %w", s.URL, err)
	}
	defer nc.Close()

	sub, err := nc.Subscribe(s.Subject, func(msg *nats.Msg) {
		deliver(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe to nats subject %s: %w", s.Subject, err)
	}
	logger.Info("subscribed", "url", s.URL, "subject", s.Subject)

	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil {
		logger.Warn("nats unsubscribe failed", "error", err)
	}
	logger.Info("nats subscriber stopped", "subject", s.Subject)
	return nil
}
