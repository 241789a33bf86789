package connector

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu      sync.Mutex
	entries []string
}

func (s *captureSink) Write(message, tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, tag+"|"+message)
}

func (s *captureSink) Close() error {
	return nil
}

func (s *captureSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.entries...)
}

func listen(t *testing.T) (net.Listener, int) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })

	return l, l.Addr().(*net.TCPAddr).Port
}

func TestTCPConnectorRoundTrip(t *testing.T) {
	l, port := listen(t)

	server := make(chan net.Conn, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		server <- conn
	}()

	c := NewTCP("127.0.0.1", port)
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = c.Close() }()

	peer := <-server
	defer func() { _ = peer.Close() }()

	if _, err := peer.Write([]byte("hello")); err != nil {
		t.Fatalf("peer write: %v", err)
	}
	chunk, err := c.ReceiveChunk()
	if err != nil {
		t.Fatalf("ReceiveChunk: %v", err)
	}
	if chunk != "hello" {
		t.Fatalf("chunk = %q, want %q", chunk, "hello")
	}

	if err := c.SendText("ping"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	buf := make([]byte, 16)
	n, err := peer.Read(buf)
	if err != nil {
		t.Fatalf("peer read: %v", err)
	}
	if got := string(buf[:n]); got != "ping" {
		t.Fatalf("peer got %q, want %q", got, "ping")
	}
}

func TestTCPConnectorCloseUnblocksReceive(t *testing.T) {
	l, port := listen(t)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		// Hold the connection open without sending anything.
		defer func() { _ = conn.Close() }()
		time.Sleep(5 * time.Second)
	}()

	c := NewTCP("127.0.0.1", port)
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	got := make(chan error, 1)
	go func() {
		_, err := c.ReceiveChunk()
		got <- err
	}()

	time.Sleep(50 * time.Millisecond)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-got:
		if err == nil {
			t.Fatal("ReceiveChunk returned nil error after Close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ReceiveChunk still blocked after Close")
	}
}

func TestTCPConnectorPeerCloseIsSentinel(t *testing.T) {
	l, port := listen(t)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		_ = conn.Close()
	}()

	c := NewTCP("127.0.0.1", port)
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = c.Close() }()

	if _, err := c.ReceiveChunk(); err == nil {
		t.Fatal("ReceiveChunk after peer close returned nil error")
	}
}

func TestTCPConnectorOpenFailureLogsTranscript(t *testing.T) {
	l, port := listen(t)
	_ = l.Close()

	sink := &captureSink{}
	c := NewTCP("127.0.0.1", port)
	c.SetTranscript(sink)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Open(ctx); err == nil {
		t.Fatal("Open to a dead port succeeded")
	}

	entries := sink.snapshot()
	if len(entries) == 0 {
		t.Fatal("no transcript entry for the failed open")
	}
	if !strings.HasPrefix(entries[0], "ER:tcp|") {
		t.Fatalf("entry %q lacks ER:tcp tag", entries[0])
	}
}

func TestTCPConnectorSendAfterCloseIsSilent(t *testing.T) {
	l, port := listen(t)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		time.Sleep(time.Second)
	}()

	sink := &captureSink{}
	c := NewTCP("127.0.0.1", port)
	c.SetTranscript(sink)
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := c.SendText("late"); err == nil {
		t.Fatal("SendText after Close succeeded")
	}
	if entries := sink.snapshot(); len(entries) != 0 {
		t.Fatalf("send after close reached transcript: %v", entries)
	}
}
