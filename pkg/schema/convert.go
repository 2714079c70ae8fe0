package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	errNull        = errors.New("null value")
	errSyntax      = errors.New("invalid syntax")
	errNotFinite   = errors.New("not a finite number")
	errOutOfRange  = errors.New("value out of range")
	errUnsupported = errors.New("unsupported value type")
)

// ConvertError reports a value that could not be converted to the kind
// declared for its metric.
type ConvertError struct {
	Metric string
	Kind   Kind
	Value  any
	Err    error
}

func (e *ConvertError) Error() string {
	return fmt.Sprintf("field %q: cannot convert %s to %s: %v", e.Metric, describe(e.Value), e.Kind, e.Err)
}

func (e *ConvertError) Unwrap() error { return e.Err }

// Convert converts v to the definition's kind.
//
// Numbers, numeric strings and booleans are accepted. NaN and infinities are
// rejected for every kind. Int metrics truncate
// fractional numbers toward zero but reject fractional strings such as "7.5".
// The result is always a float64; for Int metrics it is a whole number.
func (d Definition) Convert(v any) (float64, error) {
	f, err := d.convert(v)
	if err != nil {
		return 0, &ConvertError{Metric: d.Name, Kind: d.Kind, Value: v, Err: err}
	}
	return f, nil
}

func (d Definition) convert(v any) (float64, error) {
	switch val := v.(type) {
	case nil:
		return 0, errNull
	case float64:
		return d.fromFloat(val)
	case float32:
		return d.fromFloat(float64(val))
	case int:
		return float64(val), nil
	case int8:
		return float64(val), nil
	case int16:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case uint:
		return float64(val), nil
	case uint8:
		return float64(val), nil
	case uint16:
		return float64(val), nil
	case uint32:
		return float64(val), nil
	case uint64:
		return float64(val), nil
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		return d.fromNumber(val)
	case string:
		return d.fromString(val)
	default:
		return 0, errUnsupported
	}
}

func (d Definition) fromFloat(f float64) (float64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotFinite
	}
	if d.Kind == Real {
		return f, nil
	}
	t := math.Trunc(f)
	if t > math.MaxInt64 || t < math.MinInt64 {
		return 0, errOutOfRange
	}
	return t, nil
}

// fromNumber handles JSON number literals, which behave like numbers rather
// than strings: a fractional literal truncates for Int metrics.
func (d Definition) fromNumber(n json.Number) (float64, error) {
	if d.Kind == Int {
		if i, err := n.Int64(); err == nil {
			return float64(i), nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, errOutOfRange
		}
		return 0, errSyntax
	}
	return d.fromFloat(f)
}

func (d Definition) fromString(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if d.Kind == Int {
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			if errors.Is(err, strconv.ErrRange) {
				return 0, errOutOfRange
			}
			return 0, errSyntax
		}
		return float64(i), nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, errOutOfRange
		}
		return 0, errSyntax
	}
	return d.fromFloat(f)
}

// Format renders v with the definition's kind and unit:
// "24.5°C", "65.0%", "750 lux", "150".
func (d Definition) Format(v float64) string {
	var num string
	if d.Kind == Real {
		num = strconv.FormatFloat(v, 'f', 1, 64)
	} else {
		num = strconv.FormatInt(int64(v), 10)
	}

	switch {
	case d.Unit == "":
		return num
	case attachUnit(d.Unit):
		return num + d.Unit
	default:
		return num + " " + d.Unit
	}
}

// attachUnit reports whether the unit is written without a separating space.
func attachUnit(unit string) bool {
	return unit == "%" || strings.HasPrefix(unit, "°")
}

func describe(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(val)
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%v", val)
	}
}
