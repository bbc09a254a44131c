package types

// Logger is the structured logger every component writes to.
//
// Messages are short lower-case phrases. Context travels as alternating
// key-value pairs ("partition_id", "owner", "continuation", "error").
// internal/logging adapts log/slog to it; internal/logger has a nop and a
// testing.TB implementation.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)

	// Fatal logs and exits the process. Library code never calls it.
	Fatal(msg string, keysAndValues ...any)
}
