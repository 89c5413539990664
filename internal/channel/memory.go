package channel

import (
	"context"
	"fmt"
	"maps"
	"sync"
)

// DeriveFunc computes a channel value from a snapshot of all stored values.
type DeriveFunc func(values map[string]float64) float64

// WriteRecord is one write observed by a Memory backend.
type WriteRecord struct {
	Name  string
	Value float64
}

// Memory is an in-process channel backend for simulation and tests.
//
// Writes to a linked setpoint also update its readback. Derived channels are
// computed on every read, which lets a simulated sensor depend on motor
// positions. Faults make reads and writes of a channel fail.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Memory struct {
	mu      sync.Mutex
	values  map[string]float64
	links   map[string]string
	derived map[string]DeriveFunc
	faults  map[string]error
	writes  []WriteRecord
}

// NewMemory creates a Memory backend seeded with initial values. links maps a
// setpoint channel to the readback channel that follows it.
func NewMemory(initial map[string]float64, links map[string]string) *Memory {
	m := &Memory{
		values:  make(map[string]float64, len(initial)),
		links:   make(map[string]string, len(links)),
		derived: make(map[string]DeriveFunc),
		faults:  make(map[string]error),
	}
	maps.Copy(m.values, initial)
	maps.Copy(m.links, links)
	for sp, rb := range links {
		if v, ok := m.values[sp]; ok {
			if _, seeded := m.values[rb]; !seeded {
				m.values[rb] = v
			}
		}
	}
	return m
}

// Read returns the stored or derived value of a channel.
func (m *Memory) Read(ctx context.Context, name string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrUnavailable, name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.faults[name]; err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrUnavailable, name, err)
	}
	if fn, ok := m.derived[name]; ok {
		return fn(maps.Clone(m.values)), nil
	}
	v, ok := m.values[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s has no value", ErrUnavailable, name)
	}
	return v, nil
}

// Write stores a value and propagates it to a linked readback.
func (m *Memory) Write(ctx context.Context, name string, value float64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.faults[name]; err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, name, err)
	}
	m.values[name] = value
	if rb, ok := m.links[name]; ok {
		m.values[rb] = value
	}
	m.writes = append(m.writes, WriteRecord{Name: name, Value: value})
	return nil
}

// Set stores a value without recording it as a write.
func (m *Memory) Set(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
}

// Link makes readback follow writes to setpoint.
func (m *Memory) Link(setpoint, readback string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[setpoint] = readback
}

// Derive makes reads of name return fn applied to the current values.
func (m *Memory) Derive(name string, fn DeriveFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.derived[name] = fn
}

// Fail makes every read and write of name return err until Recover is called.
func (m *Memory) Fail(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[name] = err
}

// Recover clears a fault set with Fail.
func (m *Memory) Recover(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.faults, name)
}

// Writes returns every write observed so far, oldest first.
func (m *Memory) Writes() []WriteRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]WriteRecord, len(m.writes))
	copy(out, m.writes)
	return out
}

// WriteCount returns how many writes targeted name.
func (m *Memory) WriteCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, w := range m.writes {
		if w.Name == name {
			n++
		}
	}
	return n
}
