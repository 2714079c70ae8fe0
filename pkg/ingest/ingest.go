// Package ingest turns raw readings from either ingestion path into store
// updates.
//
// The request path calls Ingester.Ingest or Ingester.IngestJSON and reports
// the typed error back to its client. The subscription path goes through
// Handler.OnMessage, which never returns an error: failed messages are logged,
// counted and dropped.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/HatiCode/envmon/pkg/schema"
	"github.com/HatiCode/envmon/pkg/storage"
)

// Ingester validates readings against the schema and writes them to the store
// as one atomic update.
type Ingester struct {
	store  storage.Store
	schema schema.Schema
	logger *slog.Logger
}

// New creates an Ingester writing to store.
func New(store storage.Store, s schema.Schema, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{
		store:  store,
		schema: s,
		logger: logger.With("component", "ingest"),
	}
}

// Ingest writes one reading. fields must carry every schema metric; keys that
// are not schema metrics are ignored.
//
// It returns *IncompleteDataError when a metric is missing and
// *ConversionError when a value cannot be converted. On error the live reading
// is unchanged. On success exactly one store update has been performed.
func (i *Ingester) Ingest(ctx context.Context, source string, fields map[string]any) error {
	var missing []string
	values := make(map[string]any, len(i.schema))
	for _, def := range i.schema {
		v, ok := fields[def.Name]
		if !ok {
			missing = append(missing, def.Name)
			continue
		}
		values[def.Name] = v
	}
	if len(missing) > 0 {
		return &IncompleteDataError{Missing: missing}
	}

	return i.update(ctx, source, values)
}

// IngestJSON extracts each metric from a JSON object using its field path and
// writes the reading. A body that is not a JSON object yields *MalformedError.
func (i *Ingester) IngestJSON(ctx context.Context, source string, body []byte) error {
	if !gjson.ValidBytes(body) {
		return &MalformedError{Err: errors.New("invalid JSON")}
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return &MalformedError{Err: fmt.Errorf("expected a JSON object, got %s", root.Type)}
	}

	var missing []string
	values := make(map[string]any, len(i.schema))
	for _, def := range i.schema {
		res := root.Get(def.FieldPath())
		if !res.Exists() {
			missing = append(missing, def.Name)
			continue
		}
		values[def.Name] = jsonValue(res)
	}
	if len(missing) > 0 {
		return &IncompleteDataError{Missing: missing}
	}

	return i.update(ctx, source, values)
}

func (i *Ingester) update(ctx context.Context, source string, values map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	snap, err := i.store.Update(source, values)
	if err != nil {
		var rejected *storage.RejectedUpdate
		if errors.As(err, &rejected) {
			switch rejected.Reason {
			case storage.ReasonTypeConversion:
				return &ConversionError{Metric: rejected.Field, Err: rejected.Err}
			case storage.ReasonMissingField:
				return &IncompleteDataError{Missing: []string{rejected.Field}}
			}
		}
		return fmt.Errorf("update store: %w", err)
	}

	i.logger.Debug("reading stored", "source", source, "version", snap.Version)
	return nil
}

// jsonValue converts a gjson result into the value handed to the store.
// Numbers keep their literal text so integer metrics are not rounded through
// float64.
func jsonValue(res gjson.Result) any {
	switch res.Type {
	case gjson.Null:
		return nil
	case gjson.Number:
		return json.Number(res.Raw)
	case gjson.String:
		return res.Str
	case gjson.True:
		return true
	case gjson.False:
		return false
	default:
		return res.Value()
	}
}
