// Package logging provides structured logging for beamcore.
//
// It wraps log/slog so every component logs with the same handler, level and
// default fields (service, version, beamline).
//
// Configuration (config.yaml):
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version).With("beamline", cfg.Beamline.ID)
//	logger.Info("shutter moved", "target", "open")
//
// Components accept a small Logger interface (Debug/Info/Warn/Error), which
// *Logger satisfies, so packages never import this one directly.
package logging
