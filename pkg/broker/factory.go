package broker

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"strconv"
)

// Broker kinds accepted by New.
const (
	KindMQTT  = "mqtt"
	KindRedis = "redis"
	KindNATS  = "nats"
	KindNone  = "none"
)

// New creates a subscriber based on kind and a generic configuration map.
//
// Recognised keys: addr, topic, username, password, clientId, qos (mqtt),
// db (redis). tlsConfig may be nil.
//
// Returns error if kind is unknown or a value cannot be parsed.
func New(kind string, config map[string]string, tlsConfig *tls.Config, logger *slog.Logger) (Subscriber, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch kind {
	case KindMQTT:
		return newMQTT(config, tlsConfig, logger)
	case KindRedis:
		return newRedis(config, tlsConfig, logger)
	case KindNATS:
		return newNATS(config, tlsConfig, logger)
	case KindNone, "":
		return disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown broker kind: %s (must be mqtt, redis, nats, or none)", kind)
	}
}

func newMQTT(config map[string]string, tlsConfig *tls.Config, logger *slog.Logger) (Subscriber, error) {
	addr := config["addr"]
	if addr == "" {
		addr = DefaultMQTTAddr
	}
	topic := config["topic"]
	if topic == "" {
		topic = DefaultMQTTTopic
	}

	qos := 0
	if v := config["qos"]; v != "" {
		q, err := strconv.Atoi(v)
		if err != nil || q < 0 || q > 2 {
			return nil, fmt.Errorf("mqtt qos must be 0, 1, or 2, got %q", v)
		}
		qos = q
	}

	return &MQTTSubscriber{
		Addr:     addr,
		Topic:    topic,
		Username: config["username"],
		Password: config["password"],
		ClientID: config["clientId"],
		QoS:      byte(qos),
		TLS:      tlsConfig,
		logger:   logger.With("broker", KindMQTT),
	}, nil
}

func newRedis(config map[string]string, tlsConfig *tls.Config, logger *slog.Logger) (Subscriber, error) {
	addr := config["addr"]
	if addr == "" {
		addr = "localhost:6379"
	}
	channel := config["topic"]
	if channel == "" {
		return nil, fmt.Errorf("redis broker requires 'topic' config")
	}

	db := 0
	if v := config["db"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("redis db must be a non-negative integer, got %q", v)
		}
		db = n
	}

	return &RedisSubscriber{
		Addr:     addr,
		Channel:  channel,
		Password: config["password"],
		DB:       db,
		TLS:      tlsConfig,
		logger:   logger.With("broker", KindRedis),
	}, nil
}

func newNATS(config map[string]string, tlsConfig *tls.Config, logger *slog.Logger) (Subscriber, error) {
	url := config["addr"]
	if url == "" {
		url = "nats://localhost:4222"
	}
	subject := config["topic"]
	if subject == "" {
		return nil, fmt.Errorf("nats broker requires 'topic' config")
	}

	return &NATSSubscriber{
		URL:      url,
		Subject:  subject,
		Username: config["username"],
		Password: config["password"],
		TLS:      tlsConfig,
		logger:   logger.With("broker", KindNATS),
	}, nil
}
