package schema

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// file is the YAML layout of a schema file:
//
//	metrics:
//	  - name: temperature
//	    label: Temperature
//	    kind: real
//	    unit: "°C"
//	    min: 15
//	    max: 30
//	    default: 24.5
//	    path: sensors.temp   # optional gjson path
type file struct {
	Metrics []struct {
		Name    string   `yaml:"name"`
		Label   string   `yaml:"label"`
		Kind    string   `yaml:"kind"`
		Unit    string   `yaml:"unit"`
		Min     *float64 `yaml:"min"`
		Max     *float64 `yaml:"max"`
		Default *float64 `yaml:"default"`
		Path    string   `yaml:"path"`
	} `yaml:"metrics"`
}

// LoadFile reads and validates a YAML schema file.
func LoadFile(path string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	s, err := Load(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("schema file %q: %w", path, err)
	}
	return s, nil
}

// Load decodes and validates a YAML schema.
// min and max are required for every metric; default falls back to the
// midpoint of the range.
func Load(r io.Reader) (Schema, error) {
	var f file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	s := make(Schema, 0, len(f.Metrics))
	for i, m := range f.Metrics {
		kind, err := ParseKind(m.Kind)
		if err != nil {
			return nil, fmt.Errorf("metric[%d] %q: %w", i, m.Name, err)
		}
		if m.Min == nil || m.Max == nil {
			return nil, fmt.Errorf("metric[%d] %q: min and max are required", i, m.Name)
		}

		def := Definition{
			Name:  m.Name,
			Label: m.Label,
			Kind:  kind,
			Unit:  m.Unit,
			Min:   *m.Min,
			Max:   *m.Max,
			Path:  m.Path,
		}
		if m.Default != nil {
			def.Default = *m.Default
		} else {
			def.Default = (def.Min + def.Max) / 2
			if kind == Int {
				def.Default = float64(int64(def.Default))
			}
		}
		s = append(s, def)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
