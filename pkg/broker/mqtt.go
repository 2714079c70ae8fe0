package broker

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Defaults match the public broker the STM32 board publishes to.
const (
	DefaultMQTTAddr  = "test.mosquitto.org:1883"
	DefaultMQTTTopic = "stm32/sensor_data"
)

// MQTTSubscriber subscribes to one MQTT topic.
//
// Reconnection is left to the Paho client; the subscription is re-established
// from the OnConnect handler after every (re)connect. Messages are delivered
// one at a time in arrival order, so deliver must not block.
type MQTTSubscriber struct {
	Addr     string
	Topic    string
	Username string
	Password string
	// ClientID defaults to "envmon-<uuid>".
	ClientID string
	QoS      byte
	TLS      *tls.Config

	logger *slog.Logger
}

// Name returns "mqtt".
func (s *MQTTSubscriber) Name() string { return KindMQTT }

// Subscribe connects to the broker and blocks until ctx is done.
func (s *MQTTSubscriber) Subscribe(ctx context.Context, deliver func([]byte)) error {
	logger := s.logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := s.clientOptions(deliver, logger)
	client := mqtt.NewClient(opts)

	token := client.Connect()
	select {
	case <-ctx.Done():
		client.Disconnect(0)
		return nil
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to mqtt broker %s: %w", s.Addr, err)
	}

	<-ctx.Done()
	client.Unsubscribe(s.Topic).WaitTimeout(time.Second)
	client.Disconnect(250)
	logger.Info("mqtt subscriber stopped", "topic", s.Topic)
	return nil
}

func (s *MQTTSubscriber) clientOptions(deliver func([]byte), logger *slog.Logger) *mqtt.ClientOptions {
	clientID := s.ClientID
	if clientID == "" {
		clientID = "envmon-" + uuid.NewString()
	}

	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL(s.Addr, s.TLS != nil)).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectTimeout(10 * time.Second).
		SetOrderMatters(true)

	if s.Username != "" {
		opts.SetUsername(s.Username)
		opts.SetPassword(s.Password)
	}
	if s.TLS != nil {
		opts.SetTLSConfig(s.TLS)
	}

	onMessage := func(_ mqtt.Client, msg mqtt.Message) {
		deliver(msg.Payload())
	}

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		logger.Info("connected to mqtt broker", "addr", s.Addr, "client_id", clientID)
		token := c.Subscribe(s.Topic, s.QoS, onMessage)
		go func() {
			token.Wait()
			if err := token.Error(); err != nil {
				logger.Error("mqtt subscribe failed", "topic", s.Topic, "error", err)
				return
			}
			logger.Info("subscribed", "topic", s.Topic, "qos", s.QoS)
		}()
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	})

	return opts
}

// brokerURL adds a scheme to a bare host:port address.
func brokerURL(addr string, secure bool) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	if secure {
		return "ssl://" + addr
	}
	return "tcp://" + addr
}
