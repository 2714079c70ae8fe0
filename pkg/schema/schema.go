// Package schema describes the metrics envmon tracks.
//
// A Schema is an ordered, immutable list of metric definitions. It drives
// every other component: the snapshot store uses it to decide which fields a
// reading must carry and how to convert them, the ingestion adapters use it to
// extract fields from payloads, and the threshold evaluator walks it in
// declaration order to produce alerts.
//
// Adding or removing a tracked metric is a configuration change: pick one of
// the presets ([Classic], [STM32]) or load a YAML file with [Load].
package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Kind is the value kind of a metric.
type Kind int

const (
	// Real metrics hold floating point values and render with one decimal.
	Real Kind = iota
	// Int metrics hold whole numbers.
	Int
)

// String returns the lowercase kind name used in configuration files.
func (k Kind) String() string {
	switch k {
	case Real:
		return "real"
	case Int:
		return "int"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses a kind name. Accepted spellings: real, float, int, integer.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "real", "float":
		return Real, nil
	case "int", "integer":
		return Int, nil
	default:
		return 0, fmt.Errorf("unknown metric kind %q (must be real or int)", s)
	}
}

// Definition describes a single tracked metric.
type Definition struct {
	// Name is the key used in payloads and snapshots, e.g. "temperature".
	Name string
	// Label is the human readable name used in alert messages.
	// Defaults to Name.
	Label string
	Kind  Kind
	// Unit is appended to rendered values, e.g. "°C" or "ppm". May be empty.
	Unit string
	// Min and Max bound the valid range, inclusive.
	Min float64
	Max float64
	// Default is the value the live reading starts from.
	Default float64
	// Path is the gjson path used to extract the value from a JSON payload.
	// Defaults to Name.
	Path string
}

// DisplayLabel returns Label, or Name when no label is set.
func (d Definition) DisplayLabel() string {
	if d.Label != "" {
		return d.Label
	}
	return d.Name
}

// FieldPath returns Path, or Name when no path is set.
func (d Definition) FieldPath() string {
	if d.Path != "" {
		return d.Path
	}
	return d.Name
}

// InRange reports whether v lies within [Min, Max].
func (d Definition) InRange(v float64) bool {
	return v >= d.Min && v <= d.Max
}

// Schema is an ordered list of metric definitions.
// Treat it as immutable once validated.
type Schema []Definition

var metricNameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,62}$`)

// Validate checks names, kinds and ranges.
func (s Schema) Validate() error {
	if len(s) == 0 {
		return errors.New("schema must define at least one metric")
	}

	seen := make(map[string]struct{}, len(s))
	for i, d := range s {
		if d.Name == "" {
			return fmt.Errorf("metric[%d]: name cannot be empty", i)
		}
		if !metricNameRegex.MatchString(d.Name) {
			return fmt.Errorf("metric[%d]: invalid name %q (must start with a letter, alphanumeric or underscore)", i, d.Name)
		}
		if _, dup := seen[d.Name]; dup {
			return fmt.Errorf("metric %q: defined more than once", d.Name)
		}
		seen[d.Name] = struct{}{}

		if d.Kind != Real && d.Kind != Int {
			return fmt.Errorf("metric %q: invalid kind %v", d.Name, d.Kind)
		}
		if d.Min > d.Max {
			return fmt.Errorf("metric %q: min (%v) > max (%v)", d.Name, d.Min, d.Max)
		}
		if d.Kind == Int && d.Default != float64(int64(d.Default)) {
			return fmt.Errorf("metric %q: default %v is not a whole number", d.Name, d.Default)
		}
	}

	return nil
}

// Lookup returns the definition with the given name.
func (s Schema) Lookup(name string) (Definition, bool) {
	for _, d := range s {
		if d.Name == name {
			return d, true
		}
	}
	return Definition{}, false
}

// Names returns metric names in declaration order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, d := range s {
		names[i] = d.Name
	}
	return names
}

// Defaults returns the default value of every metric.
func (s Schema) Defaults() map[string]float64 {
	values := make(map[string]float64, len(s))
	for _, d := range s {
		values[d.Name] = d.Default
	}
	return values
}
