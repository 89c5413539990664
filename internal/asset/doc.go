// Package asset keeps track of array payloads that are stored outside the
// event stream.
//
// A Resource describes where payloads live (a spec naming the file format,
// a root, a resource path and format-specific kwargs). A Datum references a
// single logical array inside a Resource. Devices register both with a
// Registry as they capture; the pending documents are drained once per
// collection cycle and handed to a Sink (CBOR journal, SQLite index, MQTT).
//
// Writers persist the arrays themselves: NPYWriter writes NumPy .npy files
// and TIFFWriter writes one 16-bit TIFF per frame. Payloads of the XSP3 spec
// are written by the detector and only described here.
package asset
