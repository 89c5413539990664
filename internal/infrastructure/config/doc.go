// Package config handles loading and validating beamcore configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// The defaults describe the simulated BL 1-5 HiTp setup: a memory channel
// backend, a single binary shutter, the five HiTp stage axes and the laser
// range finder used for plate leveling.
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Beamline.Name)
package config
