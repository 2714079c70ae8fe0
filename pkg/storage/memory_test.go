package storage

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/HatiCode/envmon/pkg/schema"
)

func testSchema() schema.Schema {
	return schema.Schema{
		{Name: "temperature", Label: "Temperature", Kind: schema.Real, Unit: "°C", Min: 15, Max: 30, Default: 24.5},
		{Name: "humidity", Label: "Humidity", Kind: schema.Real, Unit: "%", Min: 30, Max: 70, Default: 65},
	}
}

func TestNewMemoryStore_Defaults(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore(schema.Classic(), WithClock(func() time.Time { return now }))

	snap := store.Read()
	want := map[string]float64{"temperature": 24.5, "humidity": 65, "light": 750, "co2": 450}
	if len(snap.Values) != len(want) {
		t.Fatalf("len(Values) = %d, want %d", len(snap.Values), len(want))
	}
	for name, v := range want {
		if snap.Values[name] != v {
			t.Errorf("Values[%s] = %v, want %v", name, snap.Values[name], v)
		}
	}
	if snap.Source != SourceDefault {
		t.Errorf("Source = %q, want %q", snap.Source, SourceDefault)
	}
	if snap.Version != 0 {
		t.Errorf("Version = %d, want 0", snap.Version)
	}
	if !snap.UpdatedAt.Equal(now) {
		t.Errorf("UpdatedAt = %v, want %v", snap.UpdatedAt, now)
	}
}

func TestMemoryStore_UpdateRead(t *testing.T) {
	tick := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	store := NewMemoryStore(testSchema(), WithClock(clock))

	got, err := store.Update(SourceHTTP, map[string]any{"temperature": 24.5, "humidity": 65})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.Version != 1 || got.Source != SourceHTTP {
		t.Errorf("Update() snapshot = %+v", got)
	}

	snap := store.Read()
	if snap.Values["temperature"] != 24.5 || snap.Values["humidity"] != 65 {
		t.Errorf("Read() values = %v", snap.Values)
	}
	if !snap.UpdatedAt.Equal(tick) {
		t.Errorf("UpdatedAt = %v, want %v", snap.UpdatedAt, tick)
	}
}

func TestMemoryStore_UpdateConvertsKinds(t *testing.T) {
	store := NewMemoryStore(schema.Classic())

	_, err := store.Update("mqtt", map[string]any{
		"temperature": "21.5",
		"humidity":    40,
		"light":       812.9,
		"co2":         "640",
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	snap := store.Read()
	want := map[string]float64{"temperature": 21.5, "humidity": 40, "light": 812, "co2": 640}
	for name, v := range want {
		if snap.Values[name] != v {
			t.Errorf("Values[%s] = %v, want %v", name, snap.Values[name], v)
		}
	}
}

func TestMemoryStore_UpdateRejected(t *testing.T) {
	tests := []struct {
		name       string
		values     map[string]any
		wantReason string
		wantField  string
	}{
		{
			name:       "missing field",
			values:     map[string]any{"temperature": 24.5},
			wantReason: ReasonMissingField,
			wantField:  "humidity",
		},
		{
			name:       "type conversion",
			values:     map[string]any{"temperature": 24.5, "humidity": "wet"},
			wantReason: ReasonTypeConversion,
			wantField:  "humidity",
		},
		{
			name:       "unknown field",
			values:     map[string]any{"temperature": 24.5, "humidity": 50, "pressure": 1013},
			wantReason: ReasonUnknownField,
			wantField:  "pressure",
		},
		{
			name:       "empty",
			values:     map[string]any{},
			wantReason: ReasonMissingField,
			wantField:  "temperature",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore(testSchema())
			before := store.Read()

			_, err := store.Update(SourceHTTP, tt.values)
			if err == nil {
				t.Fatal("Update() error = nil, want rejection")
			}

			var rejected *RejectedUpdate
			if !errors.As(err, &rejected) {
				t.Fatalf("Update() error type = %T, want *RejectedUpdate", err)
			}
			if rejected.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", rejected.Reason, tt.wantReason)
			}
			if rejected.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", rejected.Field, tt.wantField)
			}

			after := store.Read()
			if after.Version != before.Version {
				t.Errorf("Version changed from %d to %d on rejected update", before.Version, after.Version)
			}
			for name, v := range before.Values {
				if after.Values[name] != v {
					t.Errorf("Values[%s] changed from %v to %v", name, v, after.Values[name])
				}
			}
		})
	}
}

func TestMemoryStore_ReadIsDetached(t *testing.T) {
	store := NewMemoryStore(testSchema())

	snap := store.Read()
	snap.Values["temperature"] = -40

	if got := store.Read().Values["temperature"]; got != 24.5 {
		t.Errorf("store value = %v after mutating a snapshot, want 24.5", got)
	}

	updated, err := store.Update(SourceHTTP, map[string]any{"temperature": 20.0, "humidity": 50.0})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	updated.Values["humidity"] = 0
	if got := store.Read().Values["humidity"]; got != 50 {
		t.Errorf("store value = %v after mutating the returned snapshot, want 50", got)
	}
}

func TestMemoryStore_CallerMapNotRetained(t *testing.T) {
	store := NewMemoryStore(testSchema())
	values := map[string]any{"temperature": 20.0, "humidity": 50.0}

	if _, err := store.Update(SourceHTTP, values); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	values["temperature"] = 99.0

	if got := store.Read().Values["temperature"]; got != 20 {
		t.Errorf("store value = %v after mutating the input map, want 20", got)
	}
}

func TestMemoryStore_ConcurrentWritersNoTornReads(t *testing.T) {
	store := NewMemoryStore(testSchema())

	// Every writer publishes readings whose two fields are equal, so a reader
	// seeing different values has observed a mix of two updates.
	numWriters := 20
	numUpdates := 200
	numReaders := 20

	var wg sync.WaitGroup
	wg.Add(numWriters)
	for w := range numWriters {
		go func(id int) {
			defer wg.Done()
			for i := range numUpdates {
				v := float64(id*numUpdates + i)
				if _, err := store.Update(fmt.Sprintf("writer-%d", id), map[string]any{"temperature": v, "humidity": v}); err != nil {
					t.Errorf("Update() error = %v", err)
				}
			}
		}(w)
	}

	stop := make(chan struct{})
	var readers sync.WaitGroup
	readers.Add(numReaders)
	for range numReaders {
		go func() {
			defer readers.Done()
			var lastVersion uint64
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := store.Read()
				if snap.Version == 0 {
					continue
				}
				if snap.Values["temperature"] != snap.Values["humidity"] {
					t.Errorf("torn read: %v", snap.Values)
					return
				}
				if snap.Version < lastVersion {
					t.Errorf("version went backwards: %d after %d", snap.Version, lastVersion)
					return
				}
				lastVersion = snap.Version
			}
		}()
	}

	wg.Wait()
	close(stop)
	readers.Wait()

	final := store.Read()
	if final.Version != uint64(numWriters*numUpdates) {
		t.Errorf("Version = %d, want %d", final.Version, numWriters*numUpdates)
	}
	if final.Values["temperature"] != final.Values["humidity"] {
		t.Errorf("final snapshot mixes updates: %v", final.Values)
	}
}

func TestMemoryStore_TwoConcurrentUpdates(t *testing.T) {
	store := NewMemoryStore(testSchema())
	a := map[string]any{"temperature": 18.0, "humidity": 35.0}
	b := map[string]any{"temperature": 29.0, "humidity": 68.0}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := store.Update(SourceHTTP, a); err != nil {
			t.Errorf("Update(a) error = %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if _, err := store.Update("mqtt", b); err != nil {
			t.Errorf("Update(b) error = %v", err)
		}
	}()
	wg.Wait()

	snap := store.Read()
	isA := snap.Values["temperature"] == 18 && snap.Values["humidity"] == 35 && snap.Source == SourceHTTP
	isB := snap.Values["temperature"] == 29 && snap.Values["humidity"] == 68 && snap.Source == "mqtt"
	if !isA && !isB {
		t.Errorf("final snapshot %+v is neither reading", snap)
	}
}

func TestRejectedUpdate_Error(t *testing.T) {
	err := &RejectedUpdate{Reason: ReasonMissingField, Field: "co2"}
	if err.Error() != `update rejected: missing field "co2"` {
		t.Errorf("Error() = %q", err.Error())
	}

	inner := errors.New("invalid syntax")
	err = &RejectedUpdate{Reason: ReasonTypeConversion, Field: "co2", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("errors.Is() = false for wrapped conversion error")
	}
}

func TestSnapshot_CloneAndValue(t *testing.T) {
	s := Snapshot{Values: map[string]float64{"co2": 450}, Version: 3}
	c := s.Clone()
	c.Values["co2"] = 900

	if v, ok := s.Value("co2"); !ok || v != 450 {
		t.Errorf("Value(co2) = %v, %v; want 450, true", v, ok)
	}
	if _, ok := s.Value("tvoc"); ok {
		t.Error("Value(tvoc) found = true")
	}
	if c.Version != 3 {
		t.Errorf("Clone().Version = %d, want 3", c.Version)
	}
}

func BenchmarkMemoryStore_ConcurrentAccess(b *testing.B) {
	store := NewMemoryStore(schema.STM32())
	reading := map[string]any{
		"temperature": 22.1, "humidity": 48.0, "luminosity": 640,
		"iaq": 80, "tvoc": 120, "eco2": 520,
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if i%4 == 0 {
				if _, err := store.Update("bench", reading); err != nil {
					// Ignore errors in benchmark
					_ = err
				}
			} else {
				_ = store.Read()
			}
			i++
		}
	})
}
