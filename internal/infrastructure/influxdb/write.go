package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by beamcore.
const (
	MeasurementLeveling = "leveling_step"
	MeasurementShutter  = "shutter_transition"
	MeasurementCapture  = "detector_capture"
)

// WriteLevelingStep records one iteration of the sample-plate leveling loop.
//
// Example:
//
//	client.WriteLevelingStep("x", 3, 0.412, 0.405, 0.007, -0.0025)
func (c *Client) WriteLevelingStep(axis string, iteration int, v1, v2, diff, move float64) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(levelingPoint(axis, iteration, v1, v2, diff, move, time.Now()))
}

// WriteShutterTransition records a completed (or failed) shutter motion.
func (c *Client) WriteShutterTransition(name, target string, success bool, elapsed time.Duration) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(shutterPoint(name, target, success, elapsed, time.Now()))
}

// WriteCapture records a detector frame capture.
func (c *Client) WriteCapture(device, resourceID string, frame int, elapsed time.Duration) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(capturePoint(device, resourceID, frame, elapsed, time.Now()))
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Example:
//
//	client.WritePoint("scan",
//	    map[string]string{"pattern": "mesh"},
//	    map[string]interface{}{"points": 177})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}

func levelingPoint(axis string, iteration int, v1, v2, diff, move float64, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementLeveling,
		map[string]string{"axis": axis},
		map[string]interface{}{
			"iteration": iteration,
			"v1":        v1,
			"v2":        v2,
			"diff":      diff,
			"move":      move,
		},
		ts,
	)
}

func shutterPoint(name, target string, success bool, elapsed time.Duration, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementShutter,
		map[string]string{"shutter": name, "target": target},
		map[string]interface{}{
			"success":    success,
			"elapsed_ms": elapsed.Milliseconds(),
		},
		ts,
	)
}

func capturePoint(device, resourceID string, frame int, elapsed time.Duration, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementCapture,
		map[string]string{"device": device},
		map[string]interface{}{
			"resource":   resourceID,
			"frame":      frame,
			"elapsed_ms": elapsed.Milliseconds(),
		},
		ts,
	)
}
