// Package device implements the acquisition lifecycle shared by detectors.
//
// A device moves through Idle, Staged, Triggered and back to Idle:
//
//	Idle --Stage--> Staged --Trigger--> Triggered --Unstage--> Idle
//
// Trigger may be repeated while staged. Lifecycle guards the transitions and
// is embedded by the concrete devices in this package:
//
//   - ArrayChannel: an array-valued readable whose frames are written to disk
//     and referenced through asset documents instead of being inlined.
//   - FrameDetector: a multi-channel detector that writes its own HDF5 file;
//     Complete turns the frames it captured into datum references.
//
// Capabilities are expressed as small interfaces (Stageable, Triggerable,
// Readable, AssetEmitting, ExternallyAddressed, Flyable) so scan drivers can
// type-assert for what they need.
//
// # Thread Safety
//
// Lifecycle methods assume a single control goroutine per device. Captures
// run on a worker.Pool and only touch the device through its mutex and the
// asset.Registry, which is safe for concurrent use.
package device
