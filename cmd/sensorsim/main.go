// Command sensorsim generates synthetic environmental readings and feeds them
// to envmon over HTTP, MQTT, or both.
//
// Usage:
//
//	sensorsim -target=http://localhost:8050 -pattern=spike
//	sensorsim -mqtt-addr=localhost:1883 -schema=stm32 -pattern=drift
//
// Patterns:
//   - steady: values stay inside every range
//   - drift: a slow wave that crosses both bounds
//   - spike: a single-step spike above max every 10th reading
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"

	"github.com/HatiCode/envmon/pkg/httpx"
	"github.com/HatiCode/envmon/pkg/schema"
	envtls "github.com/HatiCode/envmon/pkg/tls"
)

type options struct {
	target    string
	mqttAddr  string
	mqttTopic string
	schema    string
	pattern   string
	interval  time.Duration
	count     int
	device    string
	seed      uint64
	wait      bool
	tls       envtls.Config
	logLevel  string
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.target, "target", os.Getenv("TARGET_URL"), "envmon base URL for POST /api/sensors (empty disables HTTP)")
	flag.StringVar(&o.mqttAddr, "mqtt-addr", os.Getenv("MQTT_ADDR"), "MQTT broker address (empty disables MQTT)")
	flag.StringVar(&o.mqttTopic, "mqtt-topic", "stm32/sensor_data", "MQTT topic to publish to")
	flag.StringVar(&o.schema, "schema", "classic", "Schema preset: "+strings.Join(schema.PresetNames(), ", "))
	flag.StringVar(&o.pattern, "pattern", "steady", "Value pattern: "+strings.Join(PatternNames(), ", "))
	flag.DurationVar(&o.interval, "interval", 2*time.Second, "Delay between readings")
	flag.IntVar(&o.count, "count", 0, "Number of readings to send (0 = until interrupted)")
	flag.StringVar(&o.device, "device", "", "Device id added to each payload (default: random)")
	flag.Uint64Var(&o.seed, "seed", uint64(time.Now().UnixNano()), "Random seed")
	flag.BoolVar(&o.wait, "wait", true, "Wait for the target's /healthz before sending")
	flag.BoolVar(&o.tls.Enabled, "tls-enabled", false, "Use mutual TLS for HTTP")
	flag.StringVar(&o.tls.CertFile, "tls-cert-file", "", "Client certificate")
	flag.StringVar(&o.tls.KeyFile, "tls-key-file", "", "Client key")
	flag.StringVar(&o.tls.CAFile, "tls-ca-file", "", "CA certificate")
	flag.StringVar(&o.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	if o.device == "" {
		o.device = "sim-" + uuid.NewString()[:8]
	}
	return o
}

func main() {
	o := parseFlags()

	level := slog.LevelInfo
	_ = level.UnmarshalText([]byte(o.logLevel))
	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.TimeOnly}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, o, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("sensorsim failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, log *slog.Logger) error {
	s, err := schema.Preset(o.schema)
	if err != nil {
		return err
	}
	gen, err := NewGenerator(s, o.pattern, o.device, o.seed)
	if err != nil {
		return err
	}

	var sinks []Sink
	if o.target != "" {
		client, err := httpx.NewClient(o.tls, 5*time.Second)
		if err != nil {
			return err
		}
		base := strings.TrimRight(o.target, "/")
		if o.wait {
			waitForTarget(ctx, client, base, log)
		}
		sinks = append(sinks, &HTTPSink{Client: client, URL: base + "/api/sensors"})
	}
	if o.mqttAddr != "" {
		addr := o.mqttAddr
		if !strings.Contains(addr, "://") {
			addr = "tcp://" + addr
		}
		client := mqtt.NewClient(mqtt.NewClientOptions().
			AddBroker(addr).
			SetClientID(o.device).
			SetAutoReconnect(true))
		token := client.Connect()
		if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
			return fmt.Errorf("connect to mqtt broker %s: %v", o.mqttAddr, token.Error())
		}
		defer client.Disconnect(250)
		sinks = append(sinks, &MQTTSink{Client: client, Topic: o.mqttTopic})
	}
	if len(sinks) == 0 {
		return errors.New("nothing to send to: set -target and/or -mqtt-addr")
	}

	log.Info("starting sensor simulator",
		"device", o.device,
		"schema", o.schema,
		"pattern", o.pattern,
		"interval", o.interval,
		"sinks", len(sinks),
	)

	return loop(ctx, gen, sinks, o.interval, o.count, log)
}

// loop sends one reading per interval to every sink. Sinks alternate when
// more than one is configured so both ingestion paths see traffic.
func loop(ctx context.Context, gen *Generator, sinks []Sink, interval time.Duration, count int, log *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var sent, failed int
	lastLog := time.Now()

	for i := 0; count == 0 || i < count; i++ {
		payload, err := encode(gen.Next())
		if err != nil {
			return err
		}

		sink := sinks[i%len(sinks)]
		if err := sink.Send(ctx, payload); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			log.Warn("send failed", "sink", sink.Name(), "error", err)
		} else {
			sent++
			log.Debug("reading sent", "sink", sink.Name(), "payload", string(payload))
		}

		if time.Since(lastLog) >= 10*time.Second {
			log.Info("progress", "sent", sent, "failed", failed)
			lastLog = time.Now()
		}

		if count != 0 && i == count-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	log.Info("done", "sent", sent, "failed", failed)
	return nil
}

func waitForTarget(ctx context.Context, client *http.Client, base string, log *slog.Logger) {
	log.Info("waiting for target", "target", base)

	for range 60 {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/healthz", nil)
		if err != nil {
			return
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				log.Info("target is ready")
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}

	log.Warn("target not ready after 2 minutes, proceeding anyway")
}
