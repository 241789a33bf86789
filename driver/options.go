package driver

import (
	"log/slog"

	"github.com/skobkin/testtarget/bus"
)

// Option configures a Target at construction time.
type Option func(*Target)

// WithSplitLines enables line splitting from the start.
func WithSplitLines() Option {
	return func(t *Target) {
		t.splitLines = true
	}
}

// WithFlushBeforeWait enables buffer flushing at the start of each wait call.
func WithFlushBeforeWait() Option {
	return func(t *Target) {
		t.flushBeforeWait = true
	}
}

// WithBus routes status, traffic and match events to b.
func WithBus(b bus.MessageBus) Option {
	return func(t *Target) {
		if b != nil {
			t.bus = b
		}
	}
}

// WithLogger replaces the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Target) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// SetSplitLines switches the receive loop between buffering whole chunks and
// buffering individual lines. Takes effect from the next received chunk.
func (t *Target) SetSplitLines(on bool) {
	t.mu.Lock()
	t.splitLines = on
	t.mu.Unlock()
}

// SetFlushBeforeWait controls whether wait calls clear the buffer before
// scanning and arming, so only data arriving after the call can satisfy them.
func (t *Target) SetFlushBeforeWait(on bool) {
	t.mu.Lock()
	t.flushBeforeWait = on
	t.mu.Unlock()
}
