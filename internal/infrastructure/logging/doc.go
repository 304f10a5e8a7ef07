// Package logging provides structured logging for the farm gateway.
//
// It wraps log/slog so every component logs with the same handler, level
// filtering and default fields (service, version).
//
// Logging is configured in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("gateway started", "port", 8080)
//	logger.Error("dispatch failed", "device_id", id, "error", err)
//
// Never log JWT tokens or broker passwords.
package logging
