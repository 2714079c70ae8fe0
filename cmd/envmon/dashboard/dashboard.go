// Package dashboard renders a snapshot of the live reading into the view
// served at /api/dashboard: formatted values, range state and alerts.
package dashboard

import (
	"time"

	"github.com/HatiCode/envmon/pkg/alerting"
	"github.com/HatiCode/envmon/pkg/schema"
	"github.com/HatiCode/envmon/pkg/storage"
)

// Metric is one rendered metric.
type Metric struct {
	Name    string  `json:"name"`
	Label   string  `json:"label"`
	Value   float64 `json:"value"`
	Display string  `json:"display"`
	Unit    string  `json:"unit,omitempty"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	InRange bool    `json:"inRange"`
}

// View is one refresh of the dashboard.
type View struct {
	GeneratedAt time.Time        `json:"generatedAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	Source      string           `json:"source"`
	Version     uint64           `json:"version"`
	AgeSeconds  float64          `json:"ageSeconds"`
	Stale       bool             `json:"stale"`
	Metrics     []Metric         `json:"metrics"`
	Alerts      []alerting.Alert `json:"alerts"`
	// AlertMessage is the alert banner: every alert message joined with " | ".
	AlertMessage string `json:"alertMessage"`
}

// Build renders snap in schema order. The reading is stale when staleAfter
// is positive and the reading is older than staleAfter at now.
func Build(snap storage.Snapshot, s schema.Schema, now time.Time, staleAfter time.Duration) View {
	age := now.Sub(snap.UpdatedAt)
	if age < 0 {
		age = 0
	}

	metrics := make([]Metric, 0, len(s))
	for _, def := range s {
		v, ok := snap.Value(def.Name)
		if !ok {
			continue
		}
		metrics = append(metrics, Metric{
			Name:    def.Name,
			Label:   def.DisplayLabel(),
			Value:   v,
			Display: def.Format(v),
			Unit:    def.Unit,
			Min:     def.Min,
			Max:     def.Max,
			InRange: def.InRange(v),
		})
	}

	alerts := alerting.Evaluate(snap, s)

	return View{
		GeneratedAt:  now,
		UpdatedAt:    snap.UpdatedAt,
		Source:       snap.Source,
		Version:      snap.Version,
		AgeSeconds:   age.Seconds(),
		Stale:        staleAfter > 0 && age > staleAfter,
		Metrics:      metrics,
		Alerts:       alerts,
		AlertMessage: alerting.Join(alerts),
	}
}
