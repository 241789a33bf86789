package connector

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/skobkin/testtarget/transcript"
)

const (
	defaultTCPHost = "127.0.0.1"
	defaultTCPPort = 8080

	dialTimeout = 6 * time.Second
)

// TCPConnector dials a stream service and exchanges raw chunks with it.
type TCPConnector struct {
	host string
	port int

	mu         sync.Mutex
	conn       net.Conn
	closed     bool
	transcript transcript.Logger

	writeMu sync.Mutex
}

func NewTCP(host string, port int) *TCPConnector {
	if host == "" {
		host = defaultTCPHost
	}
	if port == 0 {
		port = defaultTCPPort
	}

	return &TCPConnector{host: host, port: port, transcript: transcript.Nop()}
}

func (c *TCPConnector) Name() string {
	return "tcp"
}

func (c *TCPConnector) SetTranscript(t transcript.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t == nil {
		t = transcript.Nop()
	}
	c.transcript = t
}

func (c *TCPConnector) Target() string {
	return net.JoinHostPort(c.host, fmt.Sprintf("%d", c.port))
}

func (c *TCPConnector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn != nil
}

func (c *TCPConnector) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	logger := connectorLogger("tcp", "target", c.Target())

	if c.conn != nil {
		logger.Debug("open skipped: already connected")

		return nil
	}
	if c.closed {
		logger.Debug("open refused: connector is closed")

		return ErrClosed
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	logger.Info("connecting")
	conn, err := dialer.DialContext(ctx, "tcp", c.Target())
	if err != nil {
		logger.Warn("connect failed", "error", err)
		c.transcript.Write(err.Error(), "ER:tcp")

		return fmt.Errorf("dial tcp: %w", err)
	}
	c.conn = conn
	logger.Info("connected", "remote", conn.RemoteAddr().String())

	return nil
}

func (c *TCPConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	logger := connectorLogger("tcp", "target", c.Target())

	c.closed = true
	if c.conn == nil {
		logger.Debug("close skipped: not connected")

		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if err != nil {
		logger.Warn("close failed", "error", err)

		return err
	}
	logger.Info("closed")

	return nil
}

// ReceiveChunk blocks until up to recvUnit bytes arrive, the peer closes, or
// Close interrupts the read.
func (c *TCPConnector) ReceiveChunk() (string, error) {
	conn, err := c.currentConn()
	if err != nil {
		return "", err
	}

	buf := make([]byte, recvUnit)
	n, err := conn.Read(buf)
	if n > 0 {
		// Deliver the data first; a pending error resurfaces on the
		// next read.
		return string(buf[:n]), nil
	}
	if err == nil {
		return "", nil
	}
	c.logReceiveError(err)

	return "", err
}

func (c *TCPConnector) SendText(text string) error {
	return c.SendBytes([]byte(text))
}

func (c *TCPConnector) SendBytes(payload []byte) error {
	conn, err := c.currentConn()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := conn.Write(payload); err != nil {
		c.logSendError(err, len(payload))

		return fmt.Errorf("send: %w", err)
	}

	return nil
}

func (c *TCPConnector) currentConn() (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrClosed
	}

	return c.conn, nil
}

func (c *TCPConnector) logReceiveError(err error) {
	c.mu.Lock()
	closed := c.closed
	sink := c.transcript
	c.mu.Unlock()
	if closed {
		connectorLogger("tcp").Debug("receive ended", "error", err)

		return
	}
	connectorLogger("tcp").Warn("receive failed", "error", err)
	sink.Write(err.Error(), "ER:tcp")
}

func (c *TCPConnector) logSendError(err error, payloadLen int) {
	c.mu.Lock()
	closed := c.closed
	sink := c.transcript
	c.mu.Unlock()
	if closed {
		connectorLogger("tcp").Debug("send after close", "error", err)

		return
	}
	connectorLogger("tcp").Warn("send failed", "payload_len", payloadLen, "error", err)
	sink.Write(err.Error(), "ER:tcp")
}

var _ Connector = (*TCPConnector)(nil)
var _ TranscriptAware = (*TCPConnector)(nil)
