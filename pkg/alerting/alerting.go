// Package alerting derives threshold alerts from a snapshot of the live
// reading. Evaluation is pure: it never touches the store.
package alerting

import (
	"strings"

	"github.com/HatiCode/envmon/pkg/schema"
	"github.com/HatiCode/envmon/pkg/storage"
)

// Separator joins alert messages into the single banner line.
const Separator = " | "

// Alert reports one metric whose value lies outside its inclusive range.
type Alert struct {
	Metric  string  `json:"metric"`
	Message string  `json:"message"`
	Value   float64 `json:"value"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Unit    string  `json:"unit,omitempty"`
}

// Evaluate returns one alert per metric whose value is below Min or above Max,
// in schema order. Values exactly on a bound are in range. The result is never
// nil; an empty slice means no alerts.
//
// Metrics absent from the snapshot are skipped.
func Evaluate(snap storage.Snapshot, s schema.Schema) []Alert {
	alerts := make([]Alert, 0)
	for _, def := range s {
		v, ok := snap.Value(def.Name)
		if !ok || def.InRange(v) {
			continue
		}
		alerts = append(alerts, Alert{
			Metric:  def.Name,
			Message: Message(def, v),
			Value:   v,
			Min:     def.Min,
			Max:     def.Max,
			Unit:    def.Unit,
		})
	}
	return alerts
}

// Message renders the alert text for def at value v, e.g.
// "⚠️ Temperature out of range: 32.0°C".
func Message(def schema.Definition, v float64) string {
	return "⚠️ " + def.DisplayLabel() + " out of range: " + def.Format(v)
}

// Join concatenates alert messages with Separator. It returns "" when there
// are no alerts.
func Join(alerts []Alert) string {
	msgs := make([]string, len(alerts))
	for i, a := range alerts {
		msgs[i] = a.Message
	}
	return strings.Join(msgs, Separator)
}
