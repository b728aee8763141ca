// Package status holds the session status record shared between the
// dispatch loop (writer) and the HTTP layer (readers).
package status

import (
	"sync/atomic"
	"time"
)

type State string

const (
	StateInitializing State = "initializing"
	StateQR           State = "qr"
	StateReady        State = "ready"
	StateDisconnected State = "disconnected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

// Record is the session status. Every field is an independent atomic, so
// readers may observe a mix of old and new values across fields.
type Record struct {
	state      atomic.Value // State
	ready      atomic.Bool
	qr         atomic.Value // string
	botNumber  atomic.Value // string
	reason     atomic.Value // string
	since      atomic.Int64 // unix nanos of last state change
	reconnects atomic.Int64
}

// New returns a record in the initializing state.
func New() *Record {
	r := &Record{}
	r.qr.Store("")
	r.botNumber.Store("")
	r.reason.Store("")
	r.setState(StateInitializing)
	return r
}

func (r *Record) setState(s State) {
	r.state.Store(s)
	r.since.Store(time.Now().UnixNano())
}

// SetQR stores a pending login QR (as a PNG data URL) and clears readiness.
func (r *Record) SetQR(dataURL string) {
	r.ready.Store(false)
	r.qr.Store(dataURL)
	r.setState(StateQR)
}

// SetReady marks the session authenticated and drops the QR.
func (r *Record) SetReady(botNumber string) {
	r.qr.Store("")
	r.botNumber.Store(botNumber)
	r.reason.Store("")
	r.reconnects.Store(0)
	r.ready.Store(true)
	r.setState(StateReady)
}

func (r *Record) SetDisconnected(reason string) {
	r.ready.Store(false)
	r.reason.Store(reason)
	r.setState(StateDisconnected)
}

// SetReconnecting records reconnect attempt n.
func (r *Record) SetReconnecting(attempt int) {
	r.ready.Store(false)
	r.reconnects.Store(int64(attempt))
	r.setState(StateReconnecting)
}

func (r *Record) SetFailed(reason string) {
	r.ready.Store(false)
	r.reason.Store(reason)
	r.setState(StateFailed)
}

func (r *Record) Ready() bool       { return r.ready.Load() }
func (r *Record) QR() string        { return r.qr.Load().(string) }
func (r *Record) BotNumber() string { return r.botNumber.Load().(string) }
func (r *Record) State() State      { return r.state.Load().(State) }

// Snapshot is a point-in-time copy for JSON output.
type Snapshot struct {
	State      State     `json:"state"`
	Ready      bool      `json:"isReady"`
	BotNumber  string    `json:"botNumber,omitempty"`
	HasQR      bool      `json:"hasQr"`
	Reason     string    `json:"reason,omitempty"`
	Since      time.Time `json:"since"`
	Reconnects int       `json:"reconnects"`
}

func (r *Record) Snapshot() Snapshot {
	return Snapshot{
		State:      r.State(),
		Ready:      r.Ready(),
		BotNumber:  r.BotNumber(),
		HasQR:      r.QR() != "",
		Reason:     r.reason.Load().(string),
		Since:      time.Unix(0, r.since.Load()),
		Reconnects: int(r.reconnects.Load()),
	}
}
