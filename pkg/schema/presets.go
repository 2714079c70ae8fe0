package schema

import (
	"fmt"
	"sort"
)

// Classic is the schema of the bench deployment that pushes readings over HTTP:
// temperature, humidity, light and CO2.
func Classic() Schema {
	return Schema{
		{Name: "temperature", Label: "Temperature", Kind: Real, Unit: "°C", Min: 15, Max: 30, Default: 24.5},
		{Name: "humidity", Label: "Humidity", Kind: Real, Unit: "%", Min: 30, Max: 70, Default: 65},
		{Name: "light", Label: "Light", Kind: Int, Unit: "lux", Min: 300, Max: 1000, Default: 750},
		{Name: "co2", Label: "CO2 level", Kind: Int, Unit: "ppm", Min: 300, Max: 800, Default: 450},
	}
}

// STM32 is the schema of the STM32 board publishing over MQTT:
// temperature, humidity, luminosity, IAQ, TVOC and eCO2.
func STM32() Schema {
	return Schema{
		{Name: "temperature", Label: "Temperature", Kind: Real, Unit: "°C", Min: 15, Max: 30, Default: 24.5},
		{Name: "humidity", Label: "Humidity", Kind: Real, Unit: "%", Min: 30, Max: 70, Default: 65},
		{Name: "luminosity", Label: "Luminosity", Kind: Int, Unit: "lux", Min: 300, Max: 1000, Default: 750},
		{Name: "iaq", Label: "IAQ level", Kind: Int, Min: 0, Max: 300, Default: 150},
		{Name: "tvoc", Label: "TVOC level", Kind: Int, Unit: "ppb", Min: 0, Max: 300, Default: 100},
		{Name: "eco2", Label: "eCO2 level", Kind: Int, Unit: "ppm", Min: 300, Max: 800, Default: 400},
	}
}

var presets = map[string]func() Schema{
	"classic": Classic,
	"stm32":   STM32,
}

// Preset returns a built-in schema by name.
func Preset(name string) (Schema, error) {
	fn, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown schema preset %q (must be one of %v)", name, PresetNames())
	}
	return fn(), nil
}

// PresetNames lists the built-in schema names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
