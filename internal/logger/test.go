package logger

import (
	"fmt"
	"strings"
	"testing"

	"github.com/arloliu/changefeed/types"
)

// TestLogger writes log lines through testing.TB so they show up next to the
// failing test and only with -v.
type TestLogger struct {
	t testing.TB
}

var _ types.Logger = (*TestLogger)(nil)

// NewTest creates a logger bound to t.
//
// Example:
//
//	mgr, _ := lease.NewManager(cfg, lease.WithLogger(logger.NewTest(t)))
func NewTest(t testing.TB) *TestLogger {
	return &TestLogger{t: t}
}

func (l *TestLogger) Debug(msg string, keysAndValues ...any) {
	l.t.Helper()
	l.t.Log(line("DEBUG", msg, keysAndValues))
}

func (l *TestLogger) Info(msg string, keysAndValues ...any) {
	l.t.Helper()
	l.t.Log(line("INFO", msg, keysAndValues))
}

func (l *TestLogger) Warn(msg string, keysAndValues ...any) {
	l.t.Helper()
	l.t.Log(line("WARN", msg, keysAndValues))
}

func (l *TestLogger) Error(msg string, keysAndValues ...any) {
	l.t.Helper()
	l.t.Log(line("ERROR", msg, keysAndValues))
}

// Fatal fails the test immediately.
func (l *TestLogger) Fatal(msg string, keysAndValues ...any) {
	l.t.Helper()
	l.t.Fatal(line("FATAL", msg, keysAndValues))
}

// line renders "LEVEL msg k=v ..." with string values quoted when they
// contain spaces. An odd trailing key is rendered as key=?.
func line(level, msg string, kv []any) string {
	var sb strings.Builder
	sb.WriteString(level)
	sb.WriteByte(' ')
	sb.WriteString(msg)

	for i := 0; i < len(kv); i += 2 {
		sb.WriteByte(' ')
		fmt.Fprint(&sb, kv[i])
		sb.WriteByte('=')
		if i+1 >= len(kv) {
			sb.WriteByte('?')
			continue
		}
		if s, ok := kv[i+1].(string); ok && strings.ContainsAny(s, " \t") {
			fmt.Fprintf(&sb, "%q", s)
		} else {
			fmt.Fprint(&sb, kv[i+1])
		}
	}

	return sb.String()
}
