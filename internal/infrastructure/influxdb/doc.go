// Package influxdb provides InfluxDB connectivity for beamcore telemetry.
//
// It wraps the official influxdb-client-go v2 library and records:
//   - leveling iterations (sensor readings, differences and corrective moves)
//   - shutter transitions with their duration and outcome
//   - detector captures per frame
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteShutterTransition("BL15:SHUTTER", "open", true, 1500*time.Millisecond)
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Asynchronous write failures are delivered to the callback
// set with SetOnError.
package influxdb
