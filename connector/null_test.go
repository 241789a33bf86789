package connector

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNullConnectorOpenAndSend(t *testing.T) {
	c := NewNull()
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := c.SendText("discarded"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if err := c.SendBytes([]byte{0x00}); err != nil {
		t.Fatalf("SendBytes: %v", err)
	}
}

func TestNullConnectorReceiveBlocksUntilClose(t *testing.T) {
	c := NewNull()
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	got := make(chan error, 1)
	go func() {
		_, err := c.ReceiveChunk()
		got <- err
	}()

	select {
	case err := <-got:
		t.Fatalf("ReceiveChunk returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case err := <-got:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("ReceiveChunk error = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ReceiveChunk still blocked after Close")
	}
}

func TestNullConnectorClosedBehaviour(t *testing.T) {
	c := NewNull()
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := c.Open(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Open after Close = %v, want ErrClosed", err)
	}
	if err := c.SendText("late"); !errors.Is(err, ErrClosed) {
		t.Fatalf("SendText after Close = %v, want ErrClosed", err)
	}
}
