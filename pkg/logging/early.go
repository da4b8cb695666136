package logging

import (
	"fmt"
	"os"
)

// EarlyLog writes to stderr before the structured logger exists, i.e. while
// configuration is still being loaded.
type EarlyLog struct {
	prefix string
}

func NewEarlyLog() *EarlyLog {
	return &EarlyLog{prefix: "triage"}
}

func (l *EarlyLog) write(level, msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s %s: %s\n", l.prefix, level, fmt.Sprintf(msg, args...))
}

func (l *EarlyLog) Warn(msg string, args ...interface{}) {
	l.write("WARN", msg, args...)
}

func (l *EarlyLog) Info(msg string, args ...interface{}) {
	l.write("INFO", msg, args...)
}

func (l *EarlyLog) Error(msg string, args ...interface{}) {
	l.write("ERROR", msg, args...)
}
