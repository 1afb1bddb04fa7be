package logger

// NoopLogger is a logger that discards all output. Useful in tests.
type NoopLogger struct{}

// NewNoop returns a logger that does nothing.
func NewNoop() Interface {
	return &NoopLogger{}
}

// Debug does nothing.
func (*NoopLogger) Debug(string, ...any) {}

// Info does nothing.
func (*NoopLogger) Info(string, ...any) {}

// Warn does nothing.
func (*NoopLogger) Warn(string, ...any) {}

// Error does nothing.
func (*NoopLogger) Error(string, ...any) {}

// With returns the same noop logger.
func (l *NoopLogger) With(...any) Interface { return l }

// WithComponent returns the same noop logger.
func (l *NoopLogger) WithComponent(string) Interface { return l }
