// Package scan builds coordinate sweeps and decides which points of a sweep
// are visited.
//
// Filters are pure predicates over a Point. CircleFromOrigin and
// CircleFromCenter admit points inside a disc; PinAxis snaps a grid so a
// chosen coordinate is always a node. Runner drives a sequential sweep:
// it moves motors, triggers detectors, reads them and hands the resulting
// asset documents to an asset.Sink.
package scan
