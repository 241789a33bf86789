package connector

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSerialConnectorRejectsEmptyPort(t *testing.T) {
	c := NewSerial("", 115200)
	err := c.Open(context.Background())
	if err == nil {
		t.Fatal("Open with empty port succeeded")
	}
	if !strings.Contains(err.Error(), "serial port is empty") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSerialConnectorRejectsInvalidBaud(t *testing.T) {
	c := NewSerial("/dev/ttyUSB0", 0)
	err := c.Open(context.Background())
	if err == nil {
		t.Fatal("Open with zero baud succeeded")
	}
	if !strings.Contains(err.Error(), "baud rate") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSerialConnectorClosedBehaviour(t *testing.T) {
	c := NewSerial("/dev/ttyUSB0", 115200)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Open(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Open after Close = %v, want ErrClosed", err)
	}
	if _, err := c.ReceiveChunk(); !errors.Is(err, ErrClosed) {
		t.Fatalf("ReceiveChunk without port = %v, want ErrClosed", err)
	}
	if err := c.SendText("noop"); !errors.Is(err, ErrClosed) {
		t.Fatalf("SendText without port = %v, want ErrClosed", err)
	}
}
