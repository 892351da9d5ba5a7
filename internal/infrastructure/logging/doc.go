// Package logging provides structured logging for the WESMUN core service.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log passwords, raw session tokens or WebSocket tickets.
package logging
