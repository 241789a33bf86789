// Package events defines the bus topics and payload types published by a
// running target driver. Subscribers receive snapshots; none of the types
// share memory with driver internals.
package events

import "time"

const (
	TopicStatus = "target.status"
	TopicRx     = "target.rx"
	TopicTx     = "target.tx"
	TopicMatch  = "target.match"
)

// State describes the driver lifecycle state carried by status events.
type State string

const (
	StateStarting      State = "starting"
	StateConnectFailed State = "connect-failed"
	StateActive        State = "active"
	StateReceiveFailed State = "receive-failed"
	StateStopped       State = "stopped"
)

// Status is a bus event snapshot of the driver lifecycle.
type Status struct {
	Target string
	State  State
	Err    string
	At     time.Time
}

// Unit carries one captured or transmitted text unit.
type Unit struct {
	Target string
	Text   string
	At     time.Time
}

// Match reports a buffered unit that satisfied an armed wait request.
type Match struct {
	Target  string
	Pattern string
	Unit    string
	At      time.Time
}
