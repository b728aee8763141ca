package domain

import (
	"context"
	"errors"
)

var (
	// ErrNotReady is returned when the transport has no authenticated session.
	ErrNotReady = errors.New("transport not ready")
	// ErrNotRegistered is returned when a number has no WhatsApp account.
	ErrNotRegistered = errors.New("number not registered on whatsapp")
)

// Transport is the messaging session: connect, send, react and look up chats.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect()
	SendText(ctx context.Context, to, text string) (string, error)
	SendMedia(ctx context.Context, to string, media Media) (string, error)
	React(ctx context.Context, msg InboundMessage, emoji string) error
	Lookup(ctx context.Context, number string) (jid string, registered bool, err error)
	Groups(ctx context.Context) ([]Group, error)
}

// EventPublisher accepts transport events.
type EventPublisher interface {
	Publish(ev Event)
}
