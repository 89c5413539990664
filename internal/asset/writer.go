package asset

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/image/tiff"
)

const (
	dirPermissions  = 0o750
	filePermissions = 0o640
)

// Writer persists arrays for one storage spec.
type Writer interface {
	// Spec is the spec of resources created for this writer.
	Spec() Spec

	// Root is the directory resources are created under.
	Root() string

	// Layout returns the resource path and kwargs for a new resource.
	Layout(now time.Time) (resourcePath string, kwargs map[string]string)

	// Persist writes arr to path, creating parent directories.
	Persist(path string, arr Array) error
}

// NPYWriter stores each frame as a NumPy .npy file.
type NPYWriter struct {
	root string
}

// NewNPYWriter creates a writer storing under root.
func NewNPYWriter(root string) *NPYWriter {
	return &NPYWriter{root: root}
}

func (w *NPYWriter) Spec() Spec   { return SpecNPY }
func (w *NPYWriter) Root() string { return w.root }

// Layout returns a dated npy file series.
func (w *NPYWriter) Layout(now time.Time) (string, map[string]string) {
	return SeriesLayout(now, "npy")
}

// Persist writes arr as .npy.
func (w *NPYWriter) Persist(path string, arr Array) error {
	if err := arr.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}
	return writeFile(path, func(f *os.File) error {
		return EncodeNPY(f, arr)
	})
}

// TIFFWriter stores each frame as a 16-bit grayscale TIFF. Values are
// rounded and clamped to [0, 65535].
type TIFFWriter struct {
	root string
}

// NewTIFFWriter creates a writer storing under root.
func NewTIFFWriter(root string) *TIFFWriter {
	return &TIFFWriter{root: root}
}

func (w *TIFFWriter) Spec() Spec   { return SpecTIFF }
func (w *TIFFWriter) Root() string { return w.root }

// Layout returns a dated tiff file series.
func (w *TIFFWriter) Layout(now time.Time) (string, map[string]string) {
	return SeriesLayout(now, "tiff")
}

// Persist writes arr as a TIFF image. One-dimensional arrays become a single row.
func (w *TIFFWriter) Persist(path string, arr Array) error {
	img, err := grayImage(arr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}
	return writeFile(path, func(f *os.File) error {
		return tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate})
	})
}

// ReadTIFF loads a TIFF written by TIFFWriter back into an array.
func ReadTIFF(path string) (Array, error) {
	f, err := os.Open(path)
	if err != nil {
		return Array{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	img, err := tiff.Decode(f)
	if err != nil {
		return Array{}, fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}

	b := img.Bounds()
	arr := Array{Shape: []int{b.Dy(), b.Dx()}, Data: make([]float64, 0, b.Dx()*b.Dy())}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16)
			arr.Data = append(arr.Data, float64(g.Y))
		}
	}
	return arr, nil
}

// NewWriter returns the writer for spec.
func NewWriter(spec Spec, root string) (Writer, error) {
	switch spec {
	case SpecNPY:
		return NewNPYWriter(root), nil
	case SpecTIFF:
		return NewTIFFWriter(root), nil
	default:
		return nil, fmt.Errorf("%w: no writer for spec %q", ErrUnsupportedFormat, spec)
	}
}

func grayImage(arr Array) (*image.Gray16, error) {
	if err := arr.Validate(); err != nil {
		return nil, err
	}

	var h, w int
	switch len(arr.Shape) {
	case 0:
		h, w = 1, 1
	case 1:
		h, w = 1, arr.Shape[0]
	case 2:
		h, w = arr.Shape[0], arr.Shape[1]
	default:
		return nil, fmt.Errorf("%w: tiff needs at most 2 dimensions, got %v", ErrInvalidArray, arr.Shape)
	}

	img := image.NewGray16(image.Rect(0, 0, w, h))
	for i, v := range arr.Data {
		img.SetGray16(i%w, i/w, color.Gray16{Y: clampUint16(v)})
	}
	return img, nil
}

func clampUint16(v float64) uint16 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= math.MaxUint16:
		return math.MaxUint16
	default:
		return uint16(math.Round(v))
	}
}

// writeFile creates path (and its directory) and runs encode on it. Partial
// files are removed on failure.
func writeFile(path string, encode func(*os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return fmt.Errorf("%w: creating %s: %w", ErrStorageWrite, filepath.Dir(path), err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePermissions)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}

	if err := encode(f); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("%w: encoding %s: %w", ErrStorageWrite, path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("%w: closing %s: %w", ErrStorageWrite, path, err)
	}
	return nil
}
