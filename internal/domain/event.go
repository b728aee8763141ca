package domain

import "time"

type EventType string

const (
	EventQR           EventType = "qr"
	EventReady        EventType = "ready"
	EventDisconnected EventType = "disconnected"
	EventLoggedOut    EventType = "logged_out"
	EventMessage      EventType = "message"
)

// Event is emitted by the transport and consumed by the dispatch loop.
type Event struct {
	Type      EventType
	QRCode    string // EventQR
	BotNumber string // EventReady
	Reason    string // EventDisconnected, EventLoggedOut
	Message   *InboundMessage
	At        time.Time
}
