package connector

import (
	"context"
	"sync"
)

// NullConnector runs the engine without a live peer: Open always succeeds,
// sends are discarded and ReceiveChunk blocks until Close.
type NullConnector struct {
	done      chan struct{}
	closeOnce sync.Once
}

func NewNull() *NullConnector {
	return &NullConnector{done: make(chan struct{})}
}

func (c *NullConnector) Name() string {
	return "null"
}

func (c *NullConnector) Open(ctx context.Context) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	return ctx.Err()
}

func (c *NullConnector) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})

	return nil
}

func (c *NullConnector) ReceiveChunk() (string, error) {
	<-c.done

	return "", ErrClosed
}

func (c *NullConnector) SendText(text string) error {
	return c.SendBytes([]byte(text))
}

func (c *NullConnector) SendBytes(payload []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	return nil
}

var _ Connector = (*NullConnector)(nil)
