package connector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/skobkin/testtarget/transcript"
)

// serialReadTimeout bounds a single port read so a blocked ReceiveChunk
// observes Close within one poll interval.
const serialReadTimeout = 300 * time.Millisecond

// SerialConnector exchanges raw chunks with a device behind a serial port.
type SerialConnector struct {
	portName string
	baudRate int

	mu         sync.Mutex
	port       serial.Port
	closed     bool
	transcript transcript.Logger

	writeMu sync.Mutex
}

func NewSerial(portName string, baudRate int) *SerialConnector {
	return &SerialConnector{
		portName:   portName,
		baudRate:   baudRate,
		transcript: transcript.Nop(),
	}
}

func (c *SerialConnector) Name() string {
	return "serial"
}

func (c *SerialConnector) SetTranscript(t transcript.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t == nil {
		t = transcript.Nop()
	}
	c.transcript = t
}

func (c *SerialConnector) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port != nil {
		return nil
	}
	if c.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.portName == "" {
		return errors.New("serial port is empty")
	}
	if c.baudRate <= 0 {
		return fmt.Errorf("invalid serial baud rate: %d", c.baudRate)
	}

	port, err := serial.Open(c.portName, &serial.Mode{BaudRate: c.baudRate})
	if err != nil {
		c.transcript.Write(err.Error(), "ER:serial")

		return fmt.Errorf("open serial port %q: %w", c.portName, err)
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		_ = port.Close()

		return fmt.Errorf("set serial read timeout: %w", err)
	}
	c.port = port
	connectorLogger("serial", "port", c.portName).Info("opened", "baud", c.baudRate)

	return nil
}

func (c *SerialConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.port = nil
	if err != nil {
		return err
	}
	connectorLogger("serial", "port", c.portName).Info("closed")

	return nil
}

// ReceiveChunk polls the port until data arrives or Close is observed. A
// zero-byte read is the port's read timeout, not data.
func (c *SerialConnector) ReceiveChunk() (string, error) {
	buf := make([]byte, recvUnit)
	for {
		port, err := c.currentPort()
		if err != nil {
			return "", err
		}

		n, err := port.Read(buf)
		if n > 0 {
			return string(buf[:n]), nil
		}
		if err != nil {
			c.logError("receive failed", err)

			return "", err
		}
	}
}

func (c *SerialConnector) SendText(text string) error {
	return c.SendBytes([]byte(text))
}

func (c *SerialConnector) SendBytes(payload []byte) error {
	port, err := c.currentPort()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	written := 0
	for written < len(payload) {
		n, err := port.Write(payload[written:])
		if err != nil {
			c.logError("send failed", err)

			return fmt.Errorf("send: %w", err)
		}
		if n == 0 {
			continue
		}
		written += n
	}

	return nil
}

func (c *SerialConnector) currentPort() (serial.Port, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port == nil {
		return nil, ErrClosed
	}

	return c.port, nil
}

func (c *SerialConnector) logError(message string, err error) {
	c.mu.Lock()
	closed := c.closed
	sink := c.transcript
	c.mu.Unlock()
	if closed {
		connectorLogger("serial", "port", c.portName).Debug(message, "error", err)

		return
	}
	connectorLogger("serial", "port", c.portName).Warn(message, "error", err)
	sink.Write(err.Error(), "ER:serial")
}

var _ Connector = (*SerialConnector)(nil)
var _ TranscriptAware = (*SerialConnector)(nil)
