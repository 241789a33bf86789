// Package driver implements the concurrent receive/wait engine for scripted
// protocol testing. A Target owns one connector and one transcript sink, runs
// a single background receive loop that drains the transport into an ordered
// buffer, and lets the controlling goroutine block until chosen substrings
// show up in the received stream.
//
// Wait calls are meant to be issued sequentially from one controlling
// goroutine while the receive loop runs concurrently. The engine publishes
// status, traffic and match events to an optional message bus.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/skobkin/testtarget/bus"
	"github.com/skobkin/testtarget/connector"
	"github.com/skobkin/testtarget/events"
	"github.com/skobkin/testtarget/transcript"
)

var (
	ErrAlreadyStarted = errors.New("target is already started")
	ErrStopped        = errors.New("target is stopped")
)

type state int

const (
	stateInactive state = iota
	stateStarting
	stateActive
	stateStopped
)

// waitRequest is the target set a blocked wait call has armed. The receive
// loop increments matched once per buffered unit that satisfies the set.
type waitRequest struct {
	targets []string
	any     bool
	matched int
}

// Target drives one service under test.
type Target struct {
	name       string
	connector  connector.Connector
	transcript transcript.Logger
	logger     *slog.Logger
	bus        bus.MessageBus

	// mu guards state, rxBuffer, waitReq and the found-match record. The
	// receive loop appends, matches and signals inside one mu scope so an
	// arming waiter can never observe a half-applied unit.
	mu              sync.Mutex
	state           state
	rxBuffer        []string
	waitReq         *waitRequest
	found           string
	hasFound        bool
	splitLines      bool
	flushBeforeWait bool

	// signal carries wakeups from the receive loop to the blocked wait
	// call; capacity 1, released non-blocking, drained before arming.
	signal chan struct{}
	done   chan struct{}
}

// New builds a Target around the given connector and transcript sink. A nil
// connector gets a fresh null connector, a nil sink the no-op sink. The sink
// is shared with the connector so transport failures land in the same
// transcript.
func New(name string, c connector.Connector, sink transcript.Logger, opts ...Option) *Target {
	if c == nil {
		c = connector.NewNull()
	}
	if sink == nil {
		sink = transcript.Nop()
	}

	t := &Target{
		name:       name,
		connector:  c,
		transcript: sink,
		logger:     slog.With("component", "driver", "target", name),
		bus:        bus.Nop(),
		signal:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(t)
	}

	if aware, ok := c.(connector.TranscriptAware); ok {
		aware.SetTranscript(sink)
	}

	return t
}

func (t *Target) Name() string {
	return t.name
}

// Log writes an operator-supplied message to the transcript.
func (t *Target) Log(message, tag string) {
	t.transcript.Write(message, tag)
}

// Start opens the connector and launches the receive loop. On open failure
// the target stays inactive and may be started again.
func (t *Target) Start(ctx context.Context) error {
	t.mu.Lock()
	switch t.state {
	case stateStopped:
		t.mu.Unlock()

		return ErrStopped
	case stateStarting, stateActive:
		t.mu.Unlock()

		return ErrAlreadyStarted
	}
	t.state = stateStarting
	t.mu.Unlock()

	t.Log("start receiver", "--:"+t.name)
	t.publishStatus(events.StateStarting, nil)

	if err := t.connector.Open(ctx); err != nil {
		t.Log("failed to connect", "ER:"+t.name)
		t.logger.Warn("connect failed", "error", err)
		t.publishStatus(events.StateConnectFailed, err)
		t.mu.Lock()
		t.state = stateInactive
		t.mu.Unlock()

		return fmt.Errorf("open connector: %w", err)
	}

	t.mu.Lock()
	t.state = stateActive
	t.done = make(chan struct{})
	t.mu.Unlock()

	go t.receiver()
	t.logger.Info("receiver started", "connector", t.connector.Name())
	t.publishStatus(events.StateActive, nil)

	return nil
}

// Stop terminates the receive loop, closes the connector and clears the
// buffer. It releases any blocked wait call, which then resolves false.
// Stopping is terminal and idempotent.
func (t *Target) Stop() {
	t.mu.Lock()
	if t.state != stateActive {
		t.mu.Unlock()

		return
	}
	t.state = stateStopped
	done := t.done
	t.releaseSignalLocked()
	t.mu.Unlock()

	// Closing the connector unblocks the pending ReceiveChunk, so the
	// receive loop observes the sentinel and exits.
	_ = t.connector.Close()
	<-done

	t.mu.Lock()
	t.rxBuffer = nil
	t.mu.Unlock()

	t.logger.Info("stopped")
	t.publishStatus(events.StateStopped, nil)
}

// Send logs the payload with a transmit tag and forwards it. Transport
// failures are logged and swallowed; they surface through later waits.
func (t *Target) Send(payload []byte) {
	t.Log(string(payload), "TX:"+t.name)
	t.publishTx(string(payload))
	if err := t.connector.SendBytes(payload); err != nil {
		t.logger.Warn("send failed", "payload_len", len(payload), "error", err)
	}
}

// SendText logs the text with a transmit tag and forwards it.
func (t *Target) SendText(text string) {
	t.Log(text, "TX:"+t.name)
	t.publishTx(text)
	if err := t.connector.SendText(text); err != nil {
		t.logger.Warn("send failed", "payload_len", len(text), "error", err)
	}
}

func (t *Target) receiver() {
	defer close(t.done)

	for {
		t.mu.Lock()
		active := t.state == stateActive
		t.mu.Unlock()
		if !active {
			break
		}

		chunk, err := t.connector.ReceiveChunk()
		if err != nil {
			t.mu.Lock()
			active := t.state == stateActive
			t.mu.Unlock()
			if active {
				t.Log("failed to receive", "ER:"+t.name)
				t.logger.Warn("receive failed", "error", err)
				t.publishStatus(events.StateReceiveFailed, err)
			}

			break
		}

		t.mu.Lock()
		split := t.splitLines
		t.mu.Unlock()

		units := []string{chunk}
		if split {
			units = splitChunkLines(chunk)
		}
		for _, unit := range units {
			t.Log(unit, "RX:"+t.name)

			t.mu.Lock()
			t.rxBuffer = append(t.rxBuffer, unit)
			pattern, matched := "", false
			if req := t.waitReq; req != nil {
				if pattern, matched = matchUnit(unit, req); matched {
					t.found = unit
					t.hasFound = true
					req.matched++
					t.releaseSignalLocked()
				}
			}
			t.mu.Unlock()

			t.publishRx(unit)
			if matched {
				t.publishMatch(pattern, unit)
			}
		}
	}

	t.Log("receiver stopped", "--:"+t.name)
	t.logger.Debug("receiver exited")
}

// WaitAny blocks until any new unit arrives or the timeout elapses. A
// non-empty buffer satisfies the wait immediately with its first entry as the
// found-match. timeout <= 0 waits until Stop.
func (t *Target) WaitAny(timeout time.Duration) bool {
	t.mu.Lock()
	if t.flushBeforeWait {
		t.rxBuffer = nil
	}
	if len(t.rxBuffer) > 0 {
		t.found = t.rxBuffer[0]
		t.hasFound = true
		t.mu.Unlock()

		return true
	}
	req := t.armLocked(&waitRequest{any: true})
	t.mu.Unlock()
	if req == nil {
		return false
	}
	defer t.disarm(req)

	return t.await(req, 1, timeout)
}

// WaitStr blocks until count units containing target have been observed,
// counting matches already buffered. Each outstanding occurrence gets its own
// timeout window; the first window to elapse resolves the wait false.
// count <= 0 is already satisfied. timeout <= 0 waits until Stop.
func (t *Target) WaitStr(target string, count int, timeout time.Duration) bool {
	t.mu.Lock()
	if t.flushBeforeWait {
		t.rxBuffer = nil
	}
	remaining := t.scanLocked(target, count)
	if remaining <= 0 {
		t.mu.Unlock()

		return true
	}
	req := t.armLocked(&waitRequest{targets: []string{target}})
	t.mu.Unlock()
	if req == nil {
		return false
	}
	defer t.disarm(req)

	return t.await(req, remaining, timeout)
}

// WaitMultiStr blocks until one unit contains any of targets or the timeout
// elapses. A buffered match (first in arrival order) satisfies the wait
// immediately. timeout <= 0 waits until Stop.
func (t *Target) WaitMultiStr(targets []string, timeout time.Duration) bool {
	t.mu.Lock()
	if t.flushBeforeWait {
		t.rxBuffer = nil
	}
	if t.findMultiLocked(targets) {
		t.mu.Unlock()

		return true
	}
	req := t.armLocked(&waitRequest{targets: append([]string(nil), targets...)})
	t.mu.Unlock()
	if req == nil {
		return false
	}
	defer t.disarm(req)

	return t.await(req, 1, timeout)
}

// armLocked drains a stale signal and installs the wait request. It returns
// nil when the target is not active, in which case the wait resolves false
// without blocking.
func (t *Target) armLocked(req *waitRequest) *waitRequest {
	if t.state != stateActive {
		return nil
	}
	select {
	case <-t.signal:
	default:
	}
	t.waitReq = req

	return req
}

func (t *Target) disarm(req *waitRequest) {
	t.mu.Lock()
	if t.waitReq == req {
		t.waitReq = nil
	}
	t.mu.Unlock()
}

// await blocks until the armed request accumulates needed matches. Every
// wakeup re-reads the match counter, so coalesced signals cannot lose
// occurrences.
func (t *Target) await(req *waitRequest, needed int, timeout time.Duration) bool {
	for {
		signaled := t.awaitSignal(timeout)

		t.mu.Lock()
		matched := req.matched
		active := t.state == stateActive
		t.mu.Unlock()

		if matched >= needed {
			return true
		}
		if !signaled || !active {
			return false
		}
	}
}

func (t *Target) awaitSignal(timeout time.Duration) bool {
	if timeout <= 0 {
		<-t.signal

		return true
	}
	select {
	case <-t.signal:
		return true
	case <-time.After(timeout):
		return false
	}
}

// releaseSignalLocked wakes the blocked wait call without ever blocking the
// caller. A pending release coalesces with this one.
func (t *Target) releaseSignalLocked() {
	select {
	case t.signal <- struct{}{}:
	default:
	}
}

// FindStr scans the buffer for count units containing target. It returns the
// number of occurrences still missing and whether the count was reached; on
// success the found-match is the unit that completed the count.
func (t *Target) FindStr(target string, count int) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	remaining := t.scanLocked(target, count)

	return remaining, remaining <= 0
}

// FindMultiStr reports whether any buffered unit contains any of targets,
// recording the first such unit as the found-match.
func (t *Target) FindMultiStr(targets []string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.findMultiLocked(targets)
}

// scanLocked clears the found-match and walks the buffer counting units that
// contain target. When the count is reached the completing unit becomes the
// found-match and 0 is returned; otherwise the shortfall is returned.
func (t *Target) scanLocked(target string, count int) int {
	t.found = ""
	t.hasFound = false
	if count <= 0 {
		return 0
	}
	for _, unit := range t.rxBuffer {
		if !strings.Contains(unit, target) {
			continue
		}
		count--
		if count == 0 {
			t.found = unit
			t.hasFound = true

			break
		}
	}

	return count
}

func (t *Target) findMultiLocked(targets []string) bool {
	t.found = ""
	t.hasFound = false
	for _, unit := range t.rxBuffer {
		for _, target := range targets {
			if strings.Contains(unit, target) {
				t.found = unit
				t.hasFound = true

				return true
			}
		}
	}

	return false
}

// FoundMatch returns the most recent unit that satisfied a wait or find, and
// whether one exists.
func (t *Target) FoundMatch() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.found, t.hasFound
}

// FlushRx discards every buffered unit.
func (t *Target) FlushRx() {
	t.mu.Lock()
	t.rxBuffer = nil
	t.mu.Unlock()
}

// BufferLen returns the number of buffered units.
func (t *Target) BufferLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.rxBuffer)
}

// Buffer returns a copy of the buffered units in arrival order.
func (t *Target) Buffer() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]string(nil), t.rxBuffer...)
}

func matchUnit(unit string, req *waitRequest) (string, bool) {
	if req.any {
		return "", true
	}
	for _, target := range req.targets {
		if strings.Contains(unit, target) {
			return target, true
		}
	}

	return "", false
}

// splitChunkLines mirrors line splitting of the interactive transcripts:
// CR, LF and CRLF all terminate a line, terminators are dropped and a
// trailing terminator does not produce an empty final line.
func splitChunkLines(chunk string) []string {
	if chunk == "" {
		return nil
	}
	normalized := strings.ReplaceAll(chunk, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	lines := strings.Split(normalized, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	return lines
}

func (t *Target) publishStatus(s events.State, err error) {
	msg := events.Status{Target: t.name, State: s, At: time.Now()}
	if err != nil {
		msg.Err = err.Error()
	}
	t.bus.Publish(events.TopicStatus, msg)
}

func (t *Target) publishRx(text string) {
	t.bus.Publish(events.TopicRx, events.Unit{Target: t.name, Text: text, At: time.Now()})
}

func (t *Target) publishTx(text string) {
	t.bus.Publish(events.TopicTx, events.Unit{Target: t.name, Text: text, At: time.Now()})
}

func (t *Target) publishMatch(pattern, unit string) {
	t.bus.Publish(events.TopicMatch, events.Match{Target: t.name, Pattern: pattern, Unit: unit, At: time.Now()})
}
