package influxdb

import (
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

func pointTags(p *write.Point) map[string]string {
	tags := make(map[string]string)
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	return tags
}

func pointFields(p *write.Point) map[string]interface{} {
	fields := make(map[string]interface{})
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	return fields
}

func TestLevelingPoint(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := levelingPoint("x", 4, 0.5, 0.25, 0.25, -0.01, ts)

	if p.Name() != MeasurementLeveling {
		t.Errorf("Name() = %q", p.Name())
	}
	if !p.Time().Equal(ts) {
		t.Errorf("Time() = %v", p.Time())
	}
	if got := pointTags(p)["axis"]; got != "x" {
		t.Errorf("axis tag = %q", got)
	}

	fields := pointFields(p)
	if fields["iteration"] != int64(4) {
		t.Errorf("iteration = %v (%T)", fields["iteration"], fields["iteration"])
	}
	if fields["diff"] != 0.25 || fields["move"] != -0.01 {
		t.Errorf("fields = %v", fields)
	}
}

func TestShutterPoint(t *testing.T) {
	p := shutterPoint("BL15:SHUTTER", "close", false, 1500*time.Millisecond, time.Now())

	tags := pointTags(p)
	if tags["shutter"] != "BL15:SHUTTER" || tags["target"] != "close" {
		t.Errorf("tags = %v", tags)
	}
	fields := pointFields(p)
	if fields["success"] != false || fields["elapsed_ms"] != int64(1500) {
		t.Errorf("fields = %v", fields)
	}
}

func TestCapturePoint(t *testing.T) {
	p := capturePoint("marccd", "abc", 2, 40*time.Millisecond, time.Now())

	if p.Name() != MeasurementCapture {
		t.Errorf("Name() = %q", p.Name())
	}
	if pointTags(p)["device"] != "marccd" {
		t.Errorf("device tag missing")
	}
	fields := pointFields(p)
	if fields["resource"] != "abc" || fields["frame"] != int64(2) || fields["elapsed_ms"] != int64(40) {
		t.Errorf("fields = %v", fields)
	}
}
