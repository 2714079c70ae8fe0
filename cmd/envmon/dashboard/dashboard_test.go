package dashboard

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/HatiCode/envmon/pkg/schema"
	"github.com/HatiCode/envmon/pkg/storage"
)

func TestBuild_Defaults(t *testing.T) {
	s := schema.Classic()
	updated := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	snap := storage.Snapshot{Values: s.Defaults(), UpdatedAt: updated, Source: storage.SourceDefault}

	view := Build(snap, s, updated.Add(3*time.Second), time.Minute)

	wantDisplay := []string{"24.5°C", "65.0%", "750 lux", "450 ppm"}
	if len(view.Metrics) != len(wantDisplay) {
		t.Fatalf("len(Metrics) = %d, want %d", len(view.Metrics), len(wantDisplay))
	}
	for i, m := range view.Metrics {
		if m.Display != wantDisplay[i] {
			t.Errorf("Metrics[%d].Display = %q, want %q", i, m.Display, wantDisplay[i])
		}
		if !m.InRange {
			t.Errorf("Metrics[%d] out of range", i)
		}
	}
	if view.Alerts == nil || len(view.Alerts) != 0 || view.AlertMessage != "" {
		t.Errorf("alerts = %v %q, want none", view.Alerts, view.AlertMessage)
	}
	if view.AgeSeconds != 3 || view.Stale {
		t.Errorf("age = %v stale = %v", view.AgeSeconds, view.Stale)
	}
}

func TestBuild_AlertAndStale(t *testing.T) {
	s := schema.Classic()
	values := s.Defaults()
	values["temperature"] = 32.0
	updated := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	snap := storage.Snapshot{Values: values, UpdatedAt: updated, Source: storage.SourceHTTP, Version: 4}

	view := Build(snap, s, updated.Add(2*time.Minute), time.Minute)

	if view.AlertMessage != "⚠️ Temperature out of range: 32.0°C" {
		t.Errorf("AlertMessage = %q", view.AlertMessage)
	}
	if view.Metrics[0].InRange {
		t.Error("temperature reported in range")
	}
	if !view.Stale {
		t.Error("view not stale after 2m with 1m threshold")
	}
	if view.Version != 4 || view.Source != storage.SourceHTTP {
		t.Errorf("metadata = %+v", view)
	}
}

func TestBuild_StaleDisabled(t *testing.T) {
	s := schema.Classic()
	snap := storage.Snapshot{Values: s.Defaults(), UpdatedAt: time.Unix(0, 0)}
	if Build(snap, s, time.Now(), 0).Stale {
		t.Error("Stale = true with threshold disabled")
	}
}

func TestView_JSONEmptyAlerts(t *testing.T) {
	s := schema.Classic()
	view := Build(storage.Snapshot{Values: s.Defaults()}, s, time.Now(), 0)

	data, err := json.Marshal(view)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	alerts, ok := decoded["alerts"].([]any)
	if !ok || len(alerts) != 0 {
		t.Errorf("alerts = %v, want empty array", decoded["alerts"])
	}
}
