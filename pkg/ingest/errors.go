package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrIncompleteData matches any *IncompleteDataError.
	ErrIncompleteData = errors.New("incomplete data")
	// ErrMalformed matches any *MalformedError.
	ErrMalformed = errors.New("malformed payload")
)

// IncompleteDataError reports a payload that lacks one or more schema metrics.
type IncompleteDataError struct {
	// Missing lists the absent metrics in schema order.
	Missing []string
}

func (e *IncompleteDataError) Error() string {
	return fmt.Sprintf("incomplete data: missing %s", strings.Join(e.Missing, ", "))
}

func (e *IncompleteDataError) Is(target error) bool { return target == ErrIncompleteData }

// ConversionError reports a metric value that could not be converted to its
// declared kind. Its message is the underlying conversion failure text.
type ConversionError struct {
	Metric string
	Err    error
}

func (e *ConversionError) Error() string { return e.Err.Error() }

func (e *ConversionError) Unwrap() error { return e.Err }

// MalformedError reports a payload that is not a JSON object.
type MalformedError struct {
	Err error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed payload: %v", e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

func (e *MalformedError) Is(target error) bool { return target == ErrMalformed }

// Ingestion results, used as metric label values.
const (
	ResultSuccess    = "success"
	ResultIncomplete = "incomplete"
	ResultConversion = "conversion"
	ResultMalformed  = "malformed"
	ResultCanceled   = "canceled"
	ResultPanic      = "panic"
	ResultError      = "error"
)

// Result classifies the outcome of an ingestion call.
func Result(err error) string {
	var convErr *ConversionError
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, ErrIncompleteData):
		return ResultIncomplete
	case errors.As(err, &convErr):
		return ResultConversion
	case errors.Is(err, ErrMalformed):
		return ResultMalformed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ResultCanceled
	default:
		return ResultError
	}
}
