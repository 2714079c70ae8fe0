package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/HatiCode/envmon/cmd/envmon/metrics"
	"github.com/HatiCode/envmon/pkg/schema"
	"github.com/HatiCode/envmon/pkg/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeHealth struct {
	mu       sync.Mutex
	statuses []healthpb.HealthCheckResponse_ServingStatus
}

func (f *fakeHealth) SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if service == healthService {
		f.statuses = append(f.statuses, status)
	}
}

func (f *fakeHealth) last() healthpb.HealthCheckResponse_ServingStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return healthpb.HealthCheckResponse_UNKNOWN
	}
	return f.statuses[len(f.statuses)-1]
}

type fakeMirror struct {
	mu       sync.Mutex
	versions []uint64
	err      error
}

func (f *fakeMirror) Put(_ context.Context, s storage.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.versions = append(f.versions, s.Version)
	return nil
}

func (f *fakeMirror) puts() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.versions...)
}

func TestPoller_TickBuildsView(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := storage.NewMemoryStore(schema.Classic(), storage.WithClock(clock))
	p := NewPoller(store, schema.Classic(), time.Minute, testLogger(), WithPollerClock(clock))

	if _, ok := p.Current(); ok {
		t.Fatal("Current() ok = true before first tick")
	}

	p.Tick(context.Background())

	view, ok := p.Current()
	if !ok {
		t.Fatal("Current() ok = false after tick")
	}
	if len(view.Alerts) != 0 {
		t.Errorf("defaults produced alerts: %v", view.Alerts)
	}
	if len(view.Metrics) != 4 {
		t.Errorf("len(Metrics) = %d, want 4", len(view.Metrics))
	}

	_, err := store.Update(storage.SourceHTTP, map[string]any{
		"temperature": 32.0, "humidity": 65.0, "light": 750, "co2": 450,
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	p.Tick(context.Background())

	view, _ = p.Current()
	if view.Version != 1 {
		t.Errorf("Version = %d, want 1", view.Version)
	}
	if len(view.Alerts) != 1 || view.Alerts[0].Metric != "temperature" {
		t.Fatalf("Alerts = %v, want one temperature alert", view.Alerts)
	}
	if want := "⚠️ Temperature out of range: 32.0°C"; view.AlertMessage != want {
		t.Errorf("AlertMessage = %q, want %q", view.AlertMessage, want)
	}
}

func TestPoller_MirrorsOnlyNewVersions(t *testing.T) {
	store := storage.NewMemoryStore(schema.Classic())
	mirror := &fakeMirror{}
	p := NewPoller(store, schema.Classic(), 0, testLogger(), WithMirror(mirror))

	ctx := context.Background()
	p.Tick(ctx)
	p.Tick(ctx)

	if _, err := store.Update(storage.SourceHTTP, map[string]any{
		"temperature": 20.0, "humidity": 50.0, "light": 500, "co2": 400,
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	p.Tick(ctx)
	p.Tick(ctx)

	got := mirror.puts()
	if len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Errorf("mirrored versions = %v, want [0 1]", got)
	}
}

func TestPoller_MirrorFailureRetried(t *testing.T) {
	store := storage.NewMemoryStore(schema.Classic())
	mirror := &fakeMirror{err: errors.New("connection refused")}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	p := NewPoller(store, schema.Classic(), 0, testLogger(), WithMirror(mirror), WithMetrics(m))

	p.Tick(context.Background())
	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("mirror", "put_failed")); got != 1 {
		t.Errorf("mirror errors = %v, want 1", got)
	}

	mirror.mu.Lock()
	mirror.err = nil
	mirror.mu.Unlock()

	p.Tick(context.Background())
	if got := mirror.puts(); len(got) != 1 || got[0] != 0 {
		t.Errorf("mirrored versions = %v, want [0]", got)
	}
}

func TestPoller_HealthFollowsStaleness(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := start
	store := storage.NewMemoryStore(schema.Classic(), storage.WithClock(func() time.Time { return start }))
	h := &fakeHealth{}
	p := NewPoller(store, schema.Classic(), time.Minute, testLogger(),
		WithHealth(h),
		WithPollerClock(func() time.Time { return now }),
	)

	p.Tick(context.Background())
	if got := h.last(); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", got)
	}

	now = start.Add(2 * time.Minute)
	p.Tick(context.Background())
	if got := h.last(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %v, want NOT_SERVING for stale reading", got)
	}
	view, _ := p.Current()
	if !view.Stale {
		t.Error("view.Stale = false, want true")
	}
}

func TestPoller_Check(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := start
	store := storage.NewMemoryStore(schema.Classic())
	p := NewPoller(store, schema.Classic(), 0, testLogger(), WithPollerClock(func() time.Time { return now }))

	if err := p.Check(); err == nil {
		t.Error("Check() error = nil before first tick")
	}

	p.interval.Store(int64(time.Second))
	p.Tick(context.Background())
	if err := p.Check(); err != nil {
		t.Errorf("Check() error = %v after tick", err)
	}

	now = start.Add(5 * time.Second)
	if err := p.Check(); err == nil {
		t.Error("Check() error = nil for stalled refresh loop")
	}
}

func TestPoller_RunStopsOnCancel(t *testing.T) {
	store := storage.NewMemoryStore(schema.Classic())
	h := &fakeHealth{}
	p := NewPoller(store, schema.Classic(), time.Minute, testLogger(), WithHealth(h))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx, 10*time.Millisecond)
	}()

	time.Sleep(50 * time.Millisecond)
	if _, ok := p.Current(); !ok {
		t.Error("Current() ok = false while running")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if got := h.last(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status after stop = %v, want NOT_SERVING", got)
	}
}

func TestPoller_SetsGauges(t *testing.T) {
	store := storage.NewMemoryStore(schema.Classic())
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	p := NewPoller(store, schema.Classic(), 0, testLogger(), WithMetrics(m))

	if _, err := store.Update(storage.SourceHTTP, map[string]any{
		"temperature": 24.0, "humidity": 75.0, "light": 200, "co2": 450,
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	p.Tick(context.Background())

	if got := testutil.ToFloat64(m.ReadingValue.WithLabelValues("humidity")); got != 75 {
		t.Errorf("reading humidity = %v, want 75", got)
	}
	if got := testutil.ToFloat64(m.MetricOutOfRange.WithLabelValues("light")); got != 1 {
		t.Errorf("light out of range = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.MetricOutOfRange.WithLabelValues("co2")); got != 0 {
		t.Errorf("co2 out of range = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.ActiveAlerts); got != 2 {
		t.Errorf("active alerts = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(m.PollDurationSeconds); got != 1 {
		t.Errorf("poll duration series = %d, want 1", got)
	}
}
