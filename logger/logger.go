package logger

// Logger is the structured logger every engine component writes to.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
	// With returns a logger that adds fields to every entry.
	With(fields map[string]any) Logger
}

// Critical logs at error level tagged severity=critical. Used for
// conditions an operator must act on, such as an ephemeral master seed.
func Critical(l Logger, msg string, fields map[string]any) {
	merged := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		merged[k] = v
	}
	merged["severity"] = "critical"
	l.Error(msg, merged)
}

// Component tags a logger with the component name.
func Component(l Logger, name string) Logger {
	if l == nil {
		return NoopLogger{}
	}
	return l.With(map[string]any{"component": name})
}

type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]any) {}
func (NoopLogger) Info(string, map[string]any)  {}
func (NoopLogger) Warn(string, map[string]any)  {}
func (NoopLogger) Error(string, map[string]any) {}

func (n NoopLogger) With(map[string]any) Logger { return n }
