package connector

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/skobkin/testtarget/transcript"
)

// NetConnConnector drives an already established net.Conn. It covers
// transports the TCP connector cannot dial itself, such as TLS sessions,
// proxied tunnels or in-memory pipes in tests.
type NetConnConnector struct {
	mu         sync.Mutex
	conn       net.Conn
	closed     bool
	transcript transcript.Logger

	writeMu sync.Mutex
}

func NewNetConn(conn net.Conn) *NetConnConnector {
	return &NetConnConnector{conn: conn, transcript: transcript.Nop()}
}

func (c *NetConnConnector) Name() string {
	return "conn"
}

func (c *NetConnConnector) SetTranscript(t transcript.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t == nil {
		t = transcript.Nop()
	}
	c.transcript = t
}

// Open reports success when the wrapped connection is still usable. The
// connection itself was established by the caller.
func (c *NetConnConnector) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.closed || c.conn == nil {
		return ErrClosed
	}

	return nil
}

func (c *NetConnConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if err != nil {
		connectorLogger("conn").Warn("close failed", "error", err)

		return err
	}
	connectorLogger("conn").Info("closed")

	return nil
}

func (c *NetConnConnector) ReceiveChunk() (string, error) {
	conn, err := c.currentConn()
	if err != nil {
		return "", err
	}

	buf := make([]byte, recvUnit)
	n, err := conn.Read(buf)
	if n > 0 {
		return string(buf[:n]), nil
	}
	if err == nil {
		return "", nil
	}

	c.mu.Lock()
	closed := c.closed
	sink := c.transcript
	c.mu.Unlock()
	if closed {
		connectorLogger("conn").Debug("receive ended", "error", err)
	} else {
		connectorLogger("conn").Warn("receive failed", "error", err)
		sink.Write(err.Error(), "ER:conn")
	}

	return "", err
}

func (c *NetConnConnector) SendText(text string) error {
	return c.SendBytes([]byte(text))
}

func (c *NetConnConnector) SendBytes(payload []byte) error {
	conn, err := c.currentConn()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := conn.Write(payload); err != nil {
		c.mu.Lock()
		closed := c.closed
		sink := c.transcript
		c.mu.Unlock()
		if !closed {
			connectorLogger("conn").Warn("send failed", "payload_len", len(payload), "error", err)
			sink.Write(err.Error(), "ER:conn")
		}

		return fmt.Errorf("send: %w", err)
	}

	return nil
}

func (c *NetConnConnector) currentConn() (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrClosed
	}

	return c.conn, nil
}

var _ Connector = (*NetConnConnector)(nil)
var _ TranscriptAware = (*NetConnConnector)(nil)
