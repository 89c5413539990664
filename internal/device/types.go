package device

import (
	"context"
	"iter"
	"time"

	"github.com/ssrltools/beamcore/internal/asset"
	"github.com/ssrltools/beamcore/internal/status"
)

// DatumRef is the datum id standing in for an externally stored payload.
type DatumRef string

// Reading is the last value captured by a device.
type Reading struct {
	Value     DatumRef  `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// DTypeArray is the dtype reported for array-valued readings.
const DTypeArray = "array"

// Descriptor describes the data key produced by a device.
type Descriptor struct {
	Source   string `json:"source"`
	Shape    []int  `json:"shape"`
	DType    string `json:"dtype"`
	External bool   `json:"external"`
}

// Record is one collected frame. Values are datum references, so Filled is
// false for every key until a consumer resolves them.
type Record struct {
	Data       map[string]DatumRef `json:"data"`
	Timestamps map[string]float64  `json:"timestamps"`
	Time       float64             `json:"time"`
	Filled     map[string]bool     `json:"filled"`
}

// Stageable devices prepare for and release from acquisition.
type Stageable interface {
	Stage(ctx context.Context) error
	Unstage(ctx context.Context) error
}

// Triggerable devices start one capture per call.
type Triggerable interface {
	Trigger(ctx context.Context) (*status.Future, error)
}

// Readable devices expose their last captured value.
type Readable interface {
	Read() (Reading, error)
	Describe() Descriptor
}

// AssetEmitting devices hand out resource and datum documents.
type AssetEmitting interface {
	CollectAssetDocs() []asset.Document
}

// ExternallyAddressed devices return references into storage of Spec
// instead of inline values.
type ExternallyAddressed interface {
	Spec() asset.Spec
}

// Flyable devices finalize multi-frame captures and yield per-frame records.
type Flyable interface {
	Complete(ctx context.Context) (*status.Future, error)
	Collect() iter.Seq[Record]
}

// CaptureRecorder receives one telemetry sample per persisted frame.
// *influxdb.Client satisfies it.
type CaptureRecorder interface {
	WriteCapture(device, resourceID string, frame int, elapsed time.Duration)
}

// Logger defines the logging interface used by devices.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// unixSeconds renders t the way record timestamps are stored.
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// newRecord builds a single-key record for ref captured at ts.
func newRecord(key string, ref DatumRef, ts time.Time) Record {
	sec := unixSeconds(ts)
	return Record{
		Data:       map[string]DatumRef{key: ref},
		Timestamps: map[string]float64{key: sec},
		Time:       sec,
		Filled:     map[string]bool{key: false},
	}
}

// records lazily converts items to records. Each item is yielded at most
// once across all iterations of the returned sequence.
func records[T any](items []T, toRecord func(T) Record) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for len(items) > 0 {
			item := items[0]
			items = items[1:]
			if !yield(toRecord(item)) {
				return
			}
		}
	}
}
