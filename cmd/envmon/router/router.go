// Package router configures envmon's HTTP API.
//
// Routes configured:
//   - POST /api/sensors - Push a complete reading (request-path ingestion)
//   - GET /api/snapshot - Current live reading
//   - GET /api/dashboard - Latest dashboard view with formatted values and alerts
//   - GET /api/schema - Tracked metrics with units and ranges
//   - GET /healthz - Health check endpoint
//   - GET /metrics - Prometheus metrics endpoint
//
// POST /api/sensors answers 200 {"status":"success"} when the reading was
// stored, 400 {"error":"Incomplete data"} when a metric is missing, 500 with
// the conversion failure text when a value cannot be converted, and 400 with
// the decode failure text when the body is not a JSON object.
package router

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/envmon/cmd/envmon/dashboard"
	"github.com/HatiCode/envmon/pkg/httpx"
	"github.com/HatiCode/envmon/pkg/ingest"
	"github.com/HatiCode/envmon/pkg/schema"
	"github.com/HatiCode/envmon/pkg/storage"
)

// PathRequest labels outcomes of the request path.
const PathRequest = "request"

// IncompleteDataMessage is the error body for a reading with missing metrics.
const IncompleteDataMessage = "Incomplete data"

// ViewSource provides the latest dashboard view.
type ViewSource interface {
	Current() (dashboard.View, bool)
}

// Options holds the dependencies of the HTTP API.
type Options struct {
	Ingester *ingest.Ingester
	Store    storage.Store
	Schema   schema.Schema
	Views    ViewSource
	// Health backs /healthz. Nil always reports healthy.
	Health func() error
	// Recorder counts request-path outcomes. May be nil.
	Recorder ingest.Recorder
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer     prometheus.Gatherer
	MaxBodyBytes int64
	Logger       *slog.Logger
}

// SetupRoutes configures HTTP endpoints for envmon.
func SetupRoutes(opts Options) *http.ServeMux {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	health := opts.Health
	if health == nil {
		health = func() error { return nil }
	}
	mux.Handle("/healthz", httpx.HealthHandlerWithCheck(health))

	mux.Handle("/api/sensors", httpx.AllowMethods(http.MethodPost)(
		handlePostSensors(opts.Ingester, opts.Recorder, opts.MaxBodyBytes, logger)))
	mux.Handle("/api/snapshot", httpx.AllowMethods(http.MethodGet)(handleGetSnapshot(opts.Store, logger)))
	mux.Handle("/api/dashboard", httpx.AllowMethods(http.MethodGet)(handleGetDashboard(opts.Views, logger)))
	mux.Handle("/api/schema", httpx.AllowMethods(http.MethodGet)(handleGetSchema(opts.Schema, logger)))

	if opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}

	return mux
}

// handlePostSensors returns a handler for POST /api/sensors.
func handlePostSensors(ing *ingest.Ingester, rec ingest.Recorder, maxBody int64, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := httpx.ReadBody(w, r, maxBody)
		if err != nil {
			record(rec, ingest.ResultMalformed)
			if errors.Is(err, httpx.ErrBodyTooLarge) {
				httpx.WriteError(w, http.StatusRequestEntityTooLarge, err)
				return
			}
			httpx.WriteError(w, http.StatusBadRequest, err)
			return
		}

		err = ing.IngestJSON(r.Context(), storage.SourceHTTP, body)
		result := ingest.Result(err)
		record(rec, result)

		var convErr *ingest.ConversionError
		switch {
		case err == nil:
			httpx.WriteStatus(w, "success")
		case errors.Is(err, ingest.ErrIncompleteData):
			logger.Debug("rejected incomplete reading", "error", err)
			httpx.WriteErrorMessage(w, http.StatusBadRequest, IncompleteDataMessage)
		case errors.As(err, &convErr):
			logger.Debug("rejected reading", "metric", convErr.Metric, "error", err)
			httpx.WriteError(w, http.StatusInternalServerError, err)
		case errors.Is(err, ingest.ErrMalformed):
			httpx.WriteError(w, http.StatusBadRequest, err)
		case result == ingest.ResultCanceled:
			httpx.WriteErrorMessage(w, http.StatusServiceUnavailable, "request canceled")
		default:
			logger.Error("failed to ingest reading", "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
		}
	}
}

// handleGetSnapshot returns a handler for GET /api/snapshot.
func handleGetSnapshot(store storage.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := httpx.WriteJSON(w, http.StatusOK, store.Read()); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleGetDashboard returns a handler for GET /api/dashboard.
func handleGetDashboard(views ViewSource, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, ok := views.Current()
		if !ok {
			httpx.WriteErrorMessage(w, http.StatusServiceUnavailable, "dashboard not ready")
			return
		}
		if view.Stale {
			w.Header().Set("X-Envmon-Stale", "true")
		}
		if err := httpx.WriteJSON(w, http.StatusOK, view); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

type schemaEntry struct {
	Name    string  `json:"name"`
	Label   string  `json:"label"`
	Kind    string  `json:"kind"`
	Unit    string  `json:"unit,omitempty"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
	Path    string  `json:"path"`
}

// handleGetSchema returns a handler for GET /api/schema.
func handleGetSchema(s schema.Schema, logger *slog.Logger) http.HandlerFunc {
	entries := make([]schemaEntry, len(s))
	for i, def := range s {
		entries[i] = schemaEntry{
			Name:    def.Name,
			Label:   def.DisplayLabel(),
			Kind:    def.Kind.String(),
			Unit:    def.Unit,
			Min:     def.Min,
			Max:     def.Max,
			Default: def.Default,
			Path:    def.FieldPath(),
		}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if err := httpx.WriteJSON(w, http.StatusOK, map[string]any{"metrics": entries}); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

func record(rec ingest.Recorder, result string) {
	if rec != nil {
		rec.RecordIngest(PathRequest, result)
	}
}
