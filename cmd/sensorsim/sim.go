package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"sort"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/HatiCode/envmon/pkg/schema"
)

// Pattern shapes the value of one metric at a given step.
type Pattern struct {
	Name        string
	Description string
	Value       func(def schema.Definition, step int, rng *rand.Rand) float64
}

var patterns = map[string]Pattern{
	"steady": {
		Name:        "Steady",
		Description: "Values jitter around the middle of each range, never alerting",
		Value: func(def schema.Definition, _ int, rng *rand.Rand) float64 {
			mid := (def.Min + def.Max) / 2
			spread := (def.Max - def.Min) / 10
			return mid + spread*(rng.Float64()*2-1)
		},
	},
	"drift": {
		Name:        "Drift",
		Description: "Slow sine wave overshooting each range by 20%, 60 step period",
		Value: func(def schema.Definition, step int, _ *rand.Rand) float64 {
			mid := (def.Min + def.Max) / 2
			amp := (def.Max - def.Min) * 0.6
			return mid + amp*math.Sin(float64(step)*2*math.Pi/60)
		},
	},
	"spike": {
		Name:        "Spike",
		Description: "Steady values with every metric pushed past its max every 10th step",
		Value: func(def schema.Definition, step int, _ *rand.Rand) float64 {
			if step%10 == 9 {
				return def.Max + (def.Max-def.Min)*0.25
			}
			return (def.Min + def.Max) / 2
		},
	},
}

// PatternNames lists the available patterns in sorted order.
func PatternNames() []string {
	names := make([]string, 0, len(patterns))
	for name := range patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Generator produces successive readings for a schema.
type Generator struct {
	schema  schema.Schema
	pattern Pattern
	device  string
	rng     *rand.Rand
	step    int
}

// NewGenerator returns a generator for the named pattern. device is added to
// each payload under "device" when non-empty.
func NewGenerator(s schema.Schema, pattern, device string, seed uint64) (*Generator, error) {
	p, ok := patterns[pattern]
	if !ok {
		return nil, fmt.Errorf("unknown pattern %q (must be one of %s)", pattern, strings.Join(PatternNames(), ", "))
	}
	return &Generator{
		schema:  s,
		pattern: p,
		device:  device,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

// Next returns the next reading keyed by each metric's field path. Int
// metrics are rounded.
func (g *Generator) Next() map[string]any {
	payload := make(map[string]any, len(g.schema)+1)
	for _, def := range g.schema {
		v := g.pattern.Value(def, g.step, g.rng)
		if def.Kind == schema.Int {
			payload[def.FieldPath()] = int64(math.Round(v))
		} else {
			payload[def.FieldPath()] = math.Round(v*10) / 10
		}
	}
	if g.device != "" {
		payload["device"] = g.device
	}
	g.step++
	return payload
}

// Sink delivers one encoded reading.
type Sink interface {
	Send(ctx context.Context, payload []byte) error
	Name() string
}

// HTTPSink posts readings to envmon's request path.
type HTTPSink struct {
	Client *http.Client
	URL    string
}

func (s *HTTPSink) Name() string { return "http" }

func (s *HTTPSink) Send(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// MQTTSink publishes readings to a topic.
type MQTTSink struct {
	Client  mqtt.Client
	Topic   string
	QoS     byte
	Timeout time.Duration
}

func (s *MQTTSink) Name() string { return "mqtt" }

func (s *MQTTSink) Send(ctx context.Context, payload []byte) error {
	token := s.Client.Publish(s.Topic, s.QoS, false, payload)
	timeout := s.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		return token.Error()
	case <-time.After(timeout):
		return fmt.Errorf("publish to %s timed out after %v", s.Topic, timeout)
	}
}

// encode marshals a generated reading.
func encode(reading map[string]any) ([]byte, error) {
	return json.Marshal(reading)
}
