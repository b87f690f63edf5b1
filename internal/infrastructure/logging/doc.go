// Package logging provides structured logging for the device server.
//
// It wraps log/slog so every component logs through the same handler with
// the same default fields (service, version).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, cfg.Service.Name, version)
//	logger.Info("starting service", "topic", cfg.MQTT.Topics.Inbound)
//
// Never log broker credentials, DSNs or InfluxDB tokens.
package logging
