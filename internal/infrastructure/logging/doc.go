// Package logging provides structured logging for regsync.
//
// It wraps log/slog with JSON output for deployed nodes, text output for a
// bench terminal, and the default fields service and version on every entry.
// The role (primary or secondary) is added by the caller with With.
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// Never log the JWT secret, the Secondary token or MQTT credentials.
package logging
