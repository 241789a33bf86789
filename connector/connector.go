// Package connector provides the transport implementations a test target
// drives: a TCP client, a serial port, a wrapper for pre-established
// net.Conn values and a null transport for running without a live peer.
//
// ReceiveChunk returns an error as the end-of-stream marker. An empty
// string with a nil error is a valid empty chunk, not end of stream.
package connector

import (
	"context"
	"errors"
	"log/slog"

	"github.com/skobkin/testtarget/transcript"
)

// recvUnit is the upper bound for a single receive call.
const recvUnit = 4096

// ErrClosed is the end-of-stream marker reported after Close.
var ErrClosed = errors.New("connector is closed")

type Connector interface {
	Name() string
	Open(ctx context.Context) error
	Close() error
	ReceiveChunk() (string, error)
	SendText(text string) error
	SendBytes(payload []byte) error
}

// TranscriptAware is implemented by connectors that report their own
// transport failures to a transcript sink (tagged "ER:<name>"). A connector
// without a sink uses the no-op sink, never a nil check.
type TranscriptAware interface {
	SetTranscript(t transcript.Logger)
}

func connectorLogger(name string, attrs ...any) *slog.Logger {
	logger := slog.With("component", "connector", "connector", name)
	if len(attrs) == 0 {
		return logger
	}

	return logger.With(attrs...)
}
