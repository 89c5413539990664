package asset

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// NumPy format version 1.0.
var npyMagic = []byte("\x93NUMPY")

const (
	npyMajor      = 1
	npyMinor      = 0
	npyPreamble   = 10 // magic + version + header length
	npyAlignment  = 64
	npyDescrFloat = "<f8"

	// maxNPYElements bounds the allocation DecodeNPY makes for a stream of
	// unknown length (1 GiB of float64).
	maxNPYElements = 1 << 27
)

// EncodeNPY writes arr as a little-endian float64 .npy stream.
func EncodeNPY(w io.Writer, arr Array) error {
	if err := arr.Validate(); err != nil {
		return err
	}

	header := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': %s, }", npyDescrFloat, npyShape(arr.Shape))
	// Pad so data starts on an aligned offset; the header ends with '\n'.
	total := npyPreamble + len(header) + 1
	if rem := total % npyAlignment; rem != 0 {
		header += strings.Repeat(" ", npyAlignment-rem)
	}
	header += "\n"

	bw := bufio.NewWriter(w)
	bw.Write(npyMagic)
	bw.Write([]byte{npyMajor, npyMinor})
	binary.Write(bw, binary.LittleEndian, uint16(len(header))) //nolint:gosec // header is far below 64 KiB
	bw.WriteString(header)

	buf := make([]byte, 8)
	for _, v := range arr.Data {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
		bw.Write(buf)
	}
	return bw.Flush()
}

// DecodeNPY reads a version 1.0 .npy stream of little-endian float64 values
// in C order.
func DecodeNPY(r io.Reader) (Array, error) {
	return decodeNPY(r, maxNPYElements)
}

// decodeNPY is DecodeNPY refusing headers that claim more than limit
// elements.
func decodeNPY(r io.Reader, limit int) (Array, error) {
	br := bufio.NewReader(r)

	pre := make([]byte, npyPreamble)
	if _, err := io.ReadFull(br, pre); err != nil {
		return Array{}, fmt.Errorf("%w: reading npy preamble: %w", ErrUnsupportedFormat, err)
	}
	if !bytes.Equal(pre[:6], npyMagic) || pre[6] != npyMajor {
		return Array{}, fmt.Errorf("%w: not an npy v1 file", ErrUnsupportedFormat)
	}

	header := make([]byte, binary.LittleEndian.Uint16(pre[8:10]))
	if _, err := io.ReadFull(br, header); err != nil {
		return Array{}, fmt.Errorf("%w: reading npy header: %w", ErrUnsupportedFormat, err)
	}
	descr, fortran, shape, err := parseNPYHeader(string(header))
	if err != nil {
		return Array{}, err
	}
	if descr != npyDescrFloat || fortran {
		return Array{}, fmt.Errorf("%w: descr %s fortran_order %v", ErrUnsupportedFormat, descr, fortran)
	}

	n := 1
	for _, d := range shape {
		if d < 0 {
			return Array{}, fmt.Errorf("%w: negative dimension in npy shape %v", ErrUnsupportedFormat, shape)
		}
		if d > 0 && n > limit/d {
			return Array{}, fmt.Errorf("%w: npy shape %v exceeds %d elements", ErrUnsupportedFormat, shape, limit)
		}
		n *= d
	}
	data := make([]float64, n)
	if err := binary.Read(br, binary.LittleEndian, data); err != nil {
		return Array{}, fmt.Errorf("%w: reading npy data: %w", ErrUnsupportedFormat, err)
	}
	return Array{Shape: shape, Data: data}, nil
}

// ReadNPY loads an array written by NPYWriter. The header may not claim
// more elements than the file can hold.
func ReadNPY(path string) (Array, error) {
	f, err := os.Open(path)
	if err != nil {
		return Array{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Array{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return decodeNPY(f, int(min(info.Size()/8, maxNPYElements)))
}

func npyShape(shape []int) string {
	switch len(shape) {
	case 0:
		return "()"
	case 1:
		return fmt.Sprintf("(%d,)", shape[0])
	}
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// parseNPYHeader extracts the three keys of a .npy header dictionary.
func parseNPYHeader(h string) (descr string, fortran bool, shape []int, err error) {
	h = strings.TrimSpace(h)

	field := func(key string) (string, bool) {
		_, after, found := strings.Cut(h, "'"+key+"':")
		return strings.TrimSpace(after), found
	}

	v, ok := field("descr")
	if !ok {
		return "", false, nil, fmt.Errorf("%w: npy header without descr", ErrUnsupportedFormat)
	}
	v = strings.TrimPrefix(v, "'")
	descr, _, _ = strings.Cut(v, "'")

	v, ok = field("fortran_order")
	if !ok {
		return "", false, nil, fmt.Errorf("%w: npy header without fortran_order", ErrUnsupportedFormat)
	}
	fortran = strings.HasPrefix(v, "True")

	v, ok = field("shape")
	if !ok || !strings.HasPrefix(v, "(") {
		return "", false, nil, fmt.Errorf("%w: npy header without shape", ErrUnsupportedFormat)
	}
	inner, _, _ := strings.Cut(v[1:], ")")
	for _, p := range strings.Split(inner, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		d, convErr := strconv.Atoi(p)
		if convErr != nil {
			return "", false, nil, fmt.Errorf("%w: npy shape %q", ErrUnsupportedFormat, inner)
		}
		shape = append(shape, d)
	}
	if shape == nil {
		shape = []int{}
	}
	return descr, fortran, shape, nil
}
