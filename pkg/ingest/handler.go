package ingest

import (
	"context"
	"fmt"
	"log/slog"
)

// Recorder receives the outcome of every subscription message.
type Recorder interface {
	RecordIngest(path, result string)
}

// PathSubscription labels outcomes of the subscription path.
const PathSubscription = "subscription"

// Handler adapts broker messages to the Ingester. It is the only consumer of
// broker payloads and never lets a failure escape to the broker client.
type Handler struct {
	ingester *Ingester
	source   string
	recorder Recorder
	logger   *slog.Logger
}

// NewHandler creates a Handler that records readings under source. recorder
// may be nil.
func NewHandler(ingester *Ingester, source string, recorder Recorder, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		ingester: ingester,
		source:   source,
		recorder: recorder,
		logger:   logger.With("component", "subscription", "source", source),
	}
}

// OnMessage ingests one raw broker payload. Any timestamp carried by the
// payload is ignored; the store stamps the reading on write.
func (h *Handler) OnMessage(raw []byte) {
	result := ResultPanic
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic while handling message", "panic", fmt.Sprint(r), "bytes", len(raw))
		}
		if h.recorder != nil {
			h.recorder.RecordIngest(PathSubscription, result)
		}
	}()

	err := h.ingester.IngestJSON(context.Background(), h.source, raw)
	result = Result(err)
	if err != nil {
		h.logger.Warn("dropping message", "error", err, "result", result, "bytes", len(raw))
		return
	}
	h.logger.Debug("message ingested", "bytes", len(raw))
}
