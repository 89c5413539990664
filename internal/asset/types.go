package asset

import (
	"fmt"
	"strconv"
)

// Spec names the storage format of a Resource. Values match the handler
// names used by downstream readers.
type Spec string

const (
	// SpecNPY is a series of NumPy .npy files.
	SpecNPY Spec = "npy"

	// SpecTIFF is a series of TIFF files, one per frame.
	SpecTIFF Spec = "AD_TIFF"

	// SpecXSP3 is an HDF5 file written by an Xspress3 fluorescence detector.
	SpecXSP3 Spec = "XSP3"
)

// Kind distinguishes the two document types.
type Kind string

const (
	KindResource Kind = "resource"
	KindDatum    Kind = "datum"
)

// Resource describes where externally stored payloads live. It is immutable
// once registered.
type Resource struct {
	ID           string            `json:"uid"`
	Spec         Spec              `json:"spec"`
	Root         string            `json:"root"`
	ResourcePath string            `json:"resource_path"`
	Kwargs       map[string]string `json:"resource_kwargs"`
}

// Datum references one array within a Resource.
type Datum struct {
	ID         string         `json:"datum_id"`
	ResourceID string         `json:"resource"`
	Kwargs     map[string]any `json:"datum_kwargs"`
}

// Document is one drained registry entry. Exactly one of Resource and Datum is set.
type Document struct {
	Kind     Kind      `json:"kind"`
	Resource *Resource `json:"resource,omitempty"`
	Datum    *Datum    `json:"datum,omitempty"`
}

// ID returns the uid of the resource or datum carried by the document.
func (d Document) ID() string {
	switch {
	case d.Resource != nil:
		return d.Resource.ID
	case d.Datum != nil:
		return d.Datum.ID
	default:
		return ""
	}
}

// Array is a dense row-major float64 array.
type Array struct {
	Shape []int
	Data  []float64
}

// Validate checks that Shape accounts for every element of Data.
func (a Array) Validate() error {
	n := 1
	for _, d := range a.Shape {
		if d < 0 {
			return fmt.Errorf("%w: negative dimension in shape %v", ErrInvalidArray, a.Shape)
		}
		n *= d
	}
	if n != len(a.Data) {
		return fmt.Errorf("%w: shape %v holds %d elements, data has %d", ErrInvalidArray, a.Shape, n, len(a.Data))
	}
	return nil
}

// intKwarg reads an integer datum kwarg regardless of how it was decoded
// (native int, JSON float64, CBOR uint64, or string).
func intKwarg(kwargs map[string]any, key string) (int64, bool) {
	switch v := kwargs[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case uint64:
		return int64(v), true //nolint:gosec // frame counters are far below 2^63
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
