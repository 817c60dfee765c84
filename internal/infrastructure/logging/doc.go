// Package logging provides structured logging for StableLink Core.
//
// It wraps log/slog with the config-driven setup every component
// shares: JSON output for production, text for development, level
// filtering, and service/version default fields on every record.
//
// Components derive their own logger with a component field:
//
//	log := logger.With("component", "feeding")
//	log.Info("feeding created", "feeding_id", f.ID)
//
// Never log secrets: JWT secrets, broker credentials, or stream
// tokens (a token is a live viewer URL).
package logging
