package modhost

// Logger defines the interface for runtime logging.
// The loader and base module log through this interface with key-value pairs,
// so hosts decide how discovery, dependency and lifecycle logs appear:
//
//	logger.Info("Module initialized", "module", "audit", "version", "1.2.0")
//
// The interface is compatible with slog, zerolog (see the zerologger package)
// and most other structured logging libraries.
type Logger interface {
	// Info logs successful discovery, startup and shutdown of modules.
	Info(msg string, args ...any)

	// Error logs required-dependency violations and lifecycle failures.
	Error(msg string, args ...any)

	// Warn logs optional-dependency gaps and skipped discovery candidates.
	Warn(msg string, args ...any)

	// Debug logs dependency declarations and other diagnostics.
	Debug(msg string, args ...any)
}

// NopLogger discards everything. It is used when no logger is supplied.
type NopLogger struct{}

func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Debug(string, ...any) {}

func loggerOrNop(l Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	return l
}
