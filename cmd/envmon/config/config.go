// Package config parses envmon's runtime configuration.
//
// Every setting can be given as a command-line flag or an environment
// variable; flags take precedence over environment variables, which take
// precedence over defaults.
//
// Broker-specific settings are passed through BROKER_* environment variables
// (BROKER_ADDR, BROKER_TOPIC, BROKER_USERNAME, ...) and end up in
// Config.BrokerConfig with lower camel case keys (addr, topic, username).
// The -broker-addr and -broker-topic flags override the matching keys.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/HatiCode/envmon/pkg/broker"
	"github.com/HatiCode/envmon/pkg/httpx"
	"github.com/HatiCode/envmon/pkg/schema"
	"github.com/HatiCode/envmon/pkg/tls"
)

// Config holds all envmon configuration.
type Config struct {
	Listen       string
	GRPCListen   string
	LogFormat    string
	LogLevel     string
	TLS          tls.Config
	MaxBodyBytes int64

	Schema     string
	SchemaFile string

	PollInterval time.Duration
	StaleAfter   time.Duration

	Broker       string
	BrokerConfig map[string]string
	BrokerTLS    tls.BrokerConfig
	QueueSize    int

	Mirror        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string
	RedisTTL      time.Duration
}

// ParseFlags parses command-line flags and environment variables into a
// Config and exits the process if the result is invalid.
func ParseFlags() *Config {
	cfg, err := Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// Parse registers envmon's flags on fs, parses args and validates the result.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}

	fs.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8050"), "HTTP listen address")
	fs.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", ""), "gRPC health listen address (empty disables)")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	fs.Int64Var(&cfg.MaxBodyBytes, "max-body-bytes", getEnvInt64("MAX_BODY_BYTES", httpx.DefaultMaxBodyBytes), "Maximum accepted request body size")

	fs.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", false), "Enable TLS for HTTP server")
	fs.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "TLS certificate file")
	fs.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "TLS private key file")
	fs.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", ""), "TLS CA certificate file for client verification")

	fs.StringVar(&cfg.Schema, "schema", getEnv("SCHEMA", "classic"), "Metric schema preset: "+strings.Join(schema.PresetNames(), ", "))
	fs.StringVar(&cfg.SchemaFile, "schema-file", getEnv("SCHEMA_FILE", ""), "YAML metric schema file (overrides -schema)")

	fs.DurationVar(&cfg.PollInterval, "poll-interval", getEnvDuration("POLL_INTERVAL", 2*time.Second), "Dashboard refresh interval")
	fs.DurationVar(&cfg.StaleAfter, "stale-after", getEnvDuration("STALE_AFTER", time.Minute), "Age after which the reading is reported stale (0 disables)")

	var brokerAddr, brokerTopic string
	fs.StringVar(&cfg.Broker, "broker", getEnv("BROKER", broker.KindNone), "Subscription broker: mqtt, redis, nats, or none")
	fs.StringVar(&brokerAddr, "broker-addr", "", "Broker address (overrides BROKER_ADDR)")
	fs.StringVar(&brokerTopic, "broker-topic", "", "Broker topic, channel or subject (overrides BROKER_TOPIC)")
	fs.IntVar(&cfg.QueueSize, "queue-size", getEnvInt("QUEUE_SIZE", broker.DefaultQueueSize), "Subscription queue capacity")
	fs.BoolVar(&cfg.BrokerTLS.Enabled, "broker-tls", getEnvBool("BROKER_TLS", false), "Use TLS for the broker connection")
	fs.StringVar(&cfg.BrokerTLS.CAFile, "broker-tls-ca-file", getEnv("BROKER_TLS_CA_FILE", ""), "CA file for the broker certificate")
	fs.StringVar(&cfg.BrokerTLS.CertFile, "broker-tls-cert-file", getEnv("BROKER_TLS_CERT_FILE", ""), "Client certificate for the broker")
	fs.StringVar(&cfg.BrokerTLS.KeyFile, "broker-tls-key-file", getEnv("BROKER_TLS_KEY_FILE", ""), "Client key for the broker")
	fs.BoolVar(&cfg.BrokerTLS.InsecureSkipVerify, "broker-tls-insecure", getEnvBool("BROKER_TLS_INSECURE", false), "Skip broker certificate verification")

	fs.StringVar(&cfg.Mirror, "mirror", getEnv("MIRROR", "none"), "Snapshot mirror: redis or none")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	fs.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	fs.StringVar(&cfg.RedisKey, "redis-key", getEnv("REDIS_KEY", ""), "Redis key for the mirrored snapshot")
	fs.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 5*time.Minute), "Mirrored snapshot TTL")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.BrokerConfig = parseBrokerConfig(os.Environ())
	if brokerAddr != "" {
		cfg.BrokerConfig["addr"] = brokerAddr
	}
	if brokerTopic != "" {
		cfg.BrokerConfig["topic"] = brokerTopic
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that flag parsing cannot.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address cannot be empty")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be > 0, got %v", c.PollInterval)
	}
	if c.StaleAfter < 0 {
		return fmt.Errorf("stale-after cannot be negative, got %v", c.StaleAfter)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be > 0, got %d", c.MaxBodyBytes)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue size must be > 0, got %d", c.QueueSize)
	}

	switch c.Broker {
	case broker.KindMQTT, broker.KindRedis, broker.KindNATS, broker.KindNone:
	default:
		return fmt.Errorf("invalid broker %q (must be mqtt, redis, nats, or none)", c.Broker)
	}

	switch c.Mirror {
	case "none":
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("redis mirror requires -redis-addr")
		}
	default:
		return fmt.Errorf("invalid mirror %q (must be redis or none)", c.Mirror)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (must be text or json)", c.LogFormat)
	}

	return c.TLS.Validate()
}

// LoadSchema returns the schema file if one is configured, otherwise the
// named preset. The result is validated.
func (c *Config) LoadSchema() (schema.Schema, error) {
	if c.SchemaFile != "" {
		return schema.LoadFile(c.SchemaFile)
	}
	s, err := schema.Preset(c.Schema)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("preset %q: %w", c.Schema, err)
	}
	return s, nil
}

// parseBrokerConfig collects BROKER_* variables that are not envmon flags
// into a generic map (BROKER_CLIENT_ID -> clientId).
func parseBrokerConfig(environ []string) map[string]string {
	reserved := map[string]bool{
		"BROKER_TLS":           true,
		"BROKER_TLS_CA_FILE":   true,
		"BROKER_TLS_CERT_FILE": true,
		"BROKER_TLS_KEY_FILE":  true,
		"BROKER_TLS_INSECURE":  true,
	}

	config := make(map[string]string)
	for _, env := range environ {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, "BROKER_") || reserved[key] {
			continue
		}
		config[toLowerCamelCase(strings.TrimPrefix(key, "BROKER_"))] = value
	}
	return config
}

func toLowerCamelCase(s string) string {
	parts := strings.Split(strings.ToLower(s), "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i > 0 && b.Len() > 0 {
			p = strings.ToUpper(p[:1]) + p[1:]
		}
		b.WriteString(p)
	}
	return b.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		var i int64
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
