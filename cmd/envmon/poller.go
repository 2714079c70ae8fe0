package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/HatiCode/envmon/cmd/envmon/dashboard"
	"github.com/HatiCode/envmon/cmd/envmon/metrics"
	"github.com/HatiCode/envmon/pkg/schema"
	"github.com/HatiCode/envmon/pkg/storage"
)

// healthService is the service name reported through gRPC health checks.
const healthService = "envmon"

// HealthSetter receives the serving status after each refresh.
// *health.Server from google.golang.org/grpc/health satisfies it.
type HealthSetter interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}

// Poller periodically reads the store, evaluates thresholds and publishes the
// resulting dashboard view. It is the only reader of the store on a timer and
// the only writer to the mirror.
type Poller struct {
	store      storage.Store
	schema     schema.Schema
	staleAfter time.Duration
	mirror     storage.Mirror
	health     HealthSetter
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time

	view         atomic.Pointer[dashboard.View]
	lastTick     atomic.Int64
	interval     atomic.Int64
	lastMirrored uint64
	mirrored     bool
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithMirror exports each new snapshot to m.
func WithMirror(m storage.Mirror) PollerOption {
	return func(p *Poller) { p.mirror = m }
}

// WithHealth reports serving status to h after each refresh.
func WithHealth(h HealthSetter) PollerOption {
	return func(p *Poller) { p.health = h }
}

// WithMetrics records refresh gauges on m.
func WithMetrics(m *metrics.Metrics) PollerOption {
	return func(p *Poller) { p.metrics = m }
}

// WithPollerClock replaces time.Now.
func WithPollerClock(now func() time.Time) PollerOption {
	return func(p *Poller) { p.now = now }
}

// NewPoller creates a Poller over store.
func NewPoller(store storage.Store, s schema.Schema, staleAfter time.Duration, logger *slog.Logger, opts ...PollerOption) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Poller{
		store:      store,
		schema:     s,
		staleAfter: staleAfter,
		logger:     logger.With("component", "poller"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run refreshes the view immediately and then every interval.
// Blocks until context is canceled.
func (p *Poller) Run(ctx context.Context, interval time.Duration) error {
	p.logger.Info("starting dashboard refresh loop", "interval", interval, "stale_after", p.staleAfter)
	p.interval.Store(int64(interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("dashboard refresh loop stopped")
			if p.health != nil {
				p.health.SetServingStatus(healthService, healthpb.HealthCheckResponse_NOT_SERVING)
			}
			return ctx.Err()
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick performs one refresh: a single store read, one threshold evaluation,
// and publication of the view.
// Exported for testing purposes.
func (p *Poller) Tick(ctx context.Context) {
	start := time.Now()

	snap := p.store.Read()
	now := p.now()
	view := dashboard.Build(snap, p.schema, now, p.staleAfter)
	p.view.Store(&view)
	p.lastTick.Store(now.UnixNano())

	if p.metrics != nil {
		for _, m := range view.Metrics {
			p.metrics.SetReading(m.Name, m.Value, m.InRange)
		}
		p.metrics.SetActiveAlerts(len(view.Alerts))
		p.metrics.SetSnapshotAge(view.AgeSeconds)
	}

	if p.health != nil {
		status := healthpb.HealthCheckResponse_SERVING
		if view.Stale {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		p.health.SetServingStatus(healthService, status)
	}

	if err := p.pushMirror(ctx, snap); err != nil {
		p.logger.Warn("failed to mirror snapshot", "version", snap.Version, "error", err)
		if p.metrics != nil {
			p.metrics.RecordError("mirror", "put_failed")
		}
	}

	if p.metrics != nil {
		p.metrics.RecordPoll(time.Since(start).Seconds())
	}

	if len(view.Alerts) > 0 {
		p.logger.Debug("dashboard refreshed", "version", view.Version, "alerts", view.AlertMessage)
	} else {
		p.logger.Debug("dashboard refreshed", "version", view.Version)
	}
}

// pushMirror exports snap when its version has not been mirrored yet.
// Only the poller goroutine calls it.
func (p *Poller) pushMirror(ctx context.Context, snap storage.Snapshot) error {
	if p.mirror == nil || (p.mirrored && snap.Version == p.lastMirrored) {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := p.mirror.Put(ctx, snap); err != nil {
		return err
	}
	p.lastMirrored = snap.Version
	p.mirrored = true
	return nil
}

// Current returns the latest view and whether one has been built.
func (p *Poller) Current() (dashboard.View, bool) {
	v := p.view.Load()
	if v == nil {
		return dashboard.View{}, false
	}
	return *v, true
}

// Check reports an error until the first refresh, and when the refresh loop
// has fallen more than three intervals behind.
func (p *Poller) Check() error {
	last := p.lastTick.Load()
	if last == 0 {
		return errors.New("dashboard not ready")
	}
	interval := time.Duration(p.interval.Load())
	if interval <= 0 {
		return nil
	}
	if behind := p.now().Sub(time.Unix(0, last)); behind > 3*interval {
		return fmt.Errorf("dashboard refresh stalled for %v", behind.Round(time.Second))
	}
	return nil
}
