package modloader

// Logger defines the interface for structured logging used throughout the
// loading session. All orchestrator operations (ordering, load attempts,
// retries, health evaluation) are logged through this interface, so the host
// application controls how orchestrator logs appear.
//
// The interface uses variadic arguments in key-value pairs:
//
//	logger.Info("Module loaded", "module", "inventory", "durationMs", 42)
//
// This shape is compatible with popular structured logging libraries such as
// slog, logrus and zap. A minimal adapter over log/slog:
//
//	type SlogLogger struct{ logger *slog.Logger }
//
//	func (l *SlogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
//	func (l *SlogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
//	func (l *SlogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
//	func (l *SlogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
type Logger interface {
	// Info logs an informational message with optional key-value pairs.
	Info(msg string, args ...any)

	// Error logs an error message with optional key-value pairs.
	Error(msg string, args ...any)

	// Warn logs a warning message with optional key-value pairs.
	Warn(msg string, args ...any)

	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, args ...any)
}

// noopLogger discards all log output. Used when the orchestrator is
// constructed with a nil logger so call sites never need nil checks.
type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Debug(string, ...any) {}
