// Package transcript provides the session log sinks a driver writes every
// transmitted and received message to. Sinks are append-only: construction
// opens the sink, Write appends one tagged line, Close releases it.
//
// Tags follow the `<kind>:<target>` convention used throughout the module:
// TX for transmitted payloads, RX for received units, ER for transport
// failures and `--` for lifecycle notes.
package transcript

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger is the transcript sink contract. Write appends one message under a
// tag; implementations serialize concurrent writers internally so lines never
// interleave. Close is idempotent and best-effort.
type Logger interface {
	Write(message, tag string)
	Close() error
}

// normalize guarantees every stored message is line-terminated: an empty
// message becomes a bare newline, anything else keeps its own terminator or
// gets LF appended.
func normalize(message string) string {
	if len(message) == 0 {
		return "\n"
	}
	if !strings.ContainsRune("\r\n", rune(message[len(message)-1])) {
		return message + "\n"
	}

	return message
}

// stamp renders the canonical transcript line: <unix-ns>:<tag>:<message>.
func stamp(message, tag string) string {
	return fmt.Sprintf("%d:%s:%s", time.Now().UnixNano(), tag, normalize(message))
}

// ConsoleLogger writes messages to standard output with no timestamp, tag or
// persistence. It is the default sink for a driver constructed without one.
type ConsoleLogger struct {
	mu sync.Mutex
}

func Console() *ConsoleLogger { return &ConsoleLogger{} }

func (l *ConsoleLogger) Write(message, _ string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(os.Stdout, normalize(message))
}

func (l *ConsoleLogger) Close() error { return nil }

// NopLogger discards everything. It stands in for "no transcript wanted" so
// callers never test for a missing sink.
type NopLogger struct{}

func Nop() *NopLogger { return &NopLogger{} }

func (*NopLogger) Write(string, string) {}

func (*NopLogger) Close() error { return nil }

// MultiLogger fans every write out to all sinks and closes them in order,
// returning the first close error.
type MultiLogger struct {
	sinks []Logger
}

func Multi(sinks ...Logger) *MultiLogger {
	filtered := make([]Logger, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}

	return &MultiLogger{sinks: filtered}
}

func (l *MultiLogger) Write(message, tag string) {
	for _, s := range l.sinks {
		s.Write(message, tag)
	}
}

func (l *MultiLogger) Close() error {
	var firstErr error
	for _, s := range l.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
