// Command envmon aggregates environmental telemetry into a single live
// reading and serves it with threshold alerts.
//
// Readings arrive through two concurrent paths:
//   - POST /api/sensors with a JSON object holding every tracked metric
//   - a message broker subscription (MQTT, Redis Pub/Sub or NATS)
//
// Both paths replace the whole live reading atomically. A refresh loop reads
// the reading every poll interval, evaluates thresholds and publishes the
// dashboard view served at /api/dashboard.
//
// Usage:
//
//	envmon -schema=stm32 -broker=mqtt \
//	  -broker-addr=test.mosquitto.org:1883 \
//	  -broker-topic=stm32/sensor_data
//
// Environment variables:
//
//	LISTEN         - HTTP listen address (default: :8050)
//	GRPC_LISTEN    - gRPC health listen address (default: disabled)
//	SCHEMA         - Metric schema preset: classic, stm32 (default: classic)
//	SCHEMA_FILE    - YAML metric schema file
//	POLL_INTERVAL  - Dashboard refresh interval (default: 2s)
//	STALE_AFTER    - Age after which the reading is stale (default: 1m)
//	BROKER         - mqtt, redis, nats or none (default: none)
//	BROKER_*       - Broker settings, e.g. BROKER_ADDR, BROKER_TOPIC
//	MIRROR         - Snapshot mirror: redis or none (default: none)
//	REDIS_ADDR     - Redis address for the mirror
//	LOG_LEVEL      - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT     - Logging format: text, json (default: text)
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/HatiCode/envmon/cmd/envmon/config"
	"github.com/HatiCode/envmon/cmd/envmon/logger"
	"github.com/HatiCode/envmon/cmd/envmon/metrics"
	"github.com/HatiCode/envmon/cmd/envmon/router"
	"github.com/HatiCode/envmon/pkg/broker"
	"github.com/HatiCode/envmon/pkg/httpx"
	"github.com/HatiCode/envmon/pkg/ingest"
	"github.com/HatiCode/envmon/pkg/storage"
	envtls "github.com/HatiCode/envmon/pkg/tls"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	log := logger.New(cfg)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("envmon failed", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func run(cfg *config.Config, log *slog.Logger) error {
	s, err := cfg.LoadSchema()
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}

	log.Info("starting envmon",
		"version", version,
		"metrics", s.Names(),
		"broker", cfg.Broker,
		"poll_interval", cfg.PollInterval,
	)

	m := metrics.New(prometheus.DefaultRegisterer)
	store := storage.NewMemoryStore(s)
	ing := ingest.New(store, s, log)
	healthSrv := health.NewServer()

	pollerOpts := []PollerOption{WithHealth(healthSrv), WithMetrics(m)}
	if cfg.Mirror == "redis" {
		mirror, err := storage.NewRedisMirror(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKey, cfg.RedisTTL)
		if err != nil {
			return fmt.Errorf("create redis mirror: %w", err)
		}
		defer func() {
			if err := mirror.Close(); err != nil {
				log.Error("failed to close redis mirror", "error", err)
			}
		}()
		pollerOpts = append(pollerOpts, WithMirror(mirror))
		log.Info("mirroring snapshots to redis", "addr", cfg.RedisAddr)
	}
	poller := NewPoller(store, s, cfg.StaleAfter, log, pollerOpts...)

	brokerTLS, err := cfg.BrokerTLS.TLSConfig()
	if err != nil {
		return err
	}
	sub, err := broker.New(cfg.Broker, cfg.BrokerConfig, brokerTLS, log)
	if err != nil {
		return fmt.Errorf("create broker subscriber: %w", err)
	}
	handler := ingest.NewHandler(ing, sub.Name(), m, log)
	queue := broker.NewQueue(cfg.QueueSize, handler.OnMessage, log,
		broker.WithDropHook(func() { m.RecordDropped("queue_full") }))

	mux := router.SetupRoutes(router.Options{
		Ingester:     ing,
		Store:        store,
		Schema:       s,
		Views:        poller,
		Health:       poller.Check,
		Recorder:     m,
		Gatherer:     prometheus.DefaultGatherer,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Logger:       log,
	})
	handlerChain := httpx.Chain(mux,
		httpx.RequestIDMiddleware(),
		httpx.LoggingMiddleware(log),
		httpx.RecoveryMiddleware(log),
	)
	httpServer := httpx.NewServer(cfg.Listen, handlerChain, log)
	if cfg.TLS.Enabled {
		tlsConfig, err := envtls.NewServerTLSConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.CAFile)
		if err != nil {
			return fmt.Errorf("create TLS config: %w", err)
		}
		httpServer.SetTLSConfig(tlsConfig)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ignoreCanceled(poller.Run(ctx, cfg.PollInterval))
	})

	g.Go(func() error {
		return queue.Run(ctx)
	})

	g.Go(func() error {
		err := sub.Subscribe(ctx, func(payload []byte) { queue.Offer(payload) })
		if err != nil {
			// The request path keeps serving without the subscription.
			log.Error("broker subscription failed", "broker", sub.Name(), "error", err)
			m.RecordError("broker", "subscribe_failed")
		}
		return nil
	})

	g.Go(func() error {
		if cfg.TLS.Enabled {
			return httpServer.StartTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		}
		return httpServer.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		return httpServer.Stop(10 * time.Second)
	})

	if cfg.GRPCListen != "" {
		lis, err := net.Listen("tcp", cfg.GRPCListen)
		if err != nil {
			stop()
			_ = g.Wait()
			return fmt.Errorf("listen grpc on %s: %w", cfg.GRPCListen, err)
		}
		grpcServer := grpc.NewServer()
		healthpb.RegisterHealthServer(grpcServer, healthSrv)

		g.Go(func() error {
			log.Info("starting gRPC health server", "addr", cfg.GRPCListen)
			return grpcServer.Serve(lis)
		})
		g.Go(func() error {
			<-ctx.Done()
			healthSrv.Shutdown()
			grpcServer.GracefulStop()
			return nil
		})
	}

	log.Info("envmon ready", "listen", cfg.Listen, "grpc", cfg.GRPCListen, "source", sub.Name())

	<-ctx.Done()
	log.Info("shutting down")
	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
