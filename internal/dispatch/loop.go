package dispatch

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"wagate/internal/domain"
	"wagate/internal/metrics"
	"wagate/internal/status"
)

const defaultConcurrency = 4

// EventSource is the receive side of the event bus.
type EventSource interface {
	Subscribe() <-chan domain.Event
}

// MessageHandler handles one inbound message.
type MessageHandler interface {
	Handle(ctx context.Context, msg domain.InboundMessage) Outcome
}

// Reconnector is told about lifecycle changes.
type Reconnector interface {
	Trigger()
	Reset()
}

type LoopConfig struct {
	Events      EventSource
	Status      *status.Record
	Handler     MessageHandler
	Reconnect   Reconnector // optional
	Metrics     *metrics.Metrics
	QRTerminal  io.Writer // optional: also print login QR codes here
	Concurrency int       // max messages in flight (default 4)
	Logger      *slog.Logger
}

// Loop is the single consumer of transport events. Lifecycle events are
// applied to the status record in order; messages are handed to the
// handler on bounded goroutines so ingestion never waits on a reply.
type Loop struct {
	events      EventSource
	status      *status.Record
	handler     MessageHandler
	reconnect   Reconnector
	metrics     *metrics.Metrics
	qrTerminal  io.Writer
	concurrency int
	logger      *slog.Logger
	wg          sync.WaitGroup
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Loop{
		events:      cfg.Events,
		status:      cfg.Status,
		handler:     cfg.Handler,
		reconnect:   cfg.Reconnect,
		metrics:     cfg.Metrics,
		qrTerminal:  cfg.QRTerminal,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}
}

// Run consumes events until ctx is done or the source is closed, then waits
// for in-flight messages.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("dispatch loop started", "concurrency", l.concurrency)
	defer l.wg.Wait()

	sem := make(chan struct{}, l.concurrency)
	events := l.events.Subscribe()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("dispatch loop stopping")
			return
		case ev, ok := <-events:
			if !ok {
				l.logger.Info("event channel closed, dispatch loop stopping")
				return
			}
			if ev.Type != domain.EventMessage {
				l.lifecycle(ev)
				continue
			}
			if ev.Message == nil {
				continue
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			l.wg.Add(1)
			go func(m domain.InboundMessage) {
				defer l.wg.Done()
				defer func() { <-sem }()
				l.handler.Handle(ctx, m)
			}(*ev.Message)
		}
	}
}

func (l *Loop) lifecycle(ev domain.Event) {
	switch ev.Type {
	case domain.EventQR:
		url, err := status.QRDataURL(ev.QRCode)
		if err != nil {
			l.logger.Error("qr render failed", "err", err)
			return
		}
		l.status.SetQR(url)
		l.logger.Info("login QR code available at /qrcode")
		if l.qrTerminal != nil {
			status.PrintQR(l.qrTerminal, ev.QRCode)
		}

	case domain.EventReady:
		l.status.SetReady(ev.BotNumber)
		l.metrics.SessionReady(true)
		if l.reconnect != nil {
			l.reconnect.Reset()
		}
		l.logger.Info("session ready", "bot_number", ev.BotNumber)

	case domain.EventDisconnected, domain.EventLoggedOut:
		reason := ev.Reason
		if ev.Type == domain.EventLoggedOut && reason == "" {
			reason = "logged out"
		}
		l.status.SetDisconnected(reason)
		l.metrics.SessionReady(false)
		l.logger.Warn("session disconnected", "type", ev.Type, "reason", reason)
		if l.reconnect != nil {
			l.reconnect.Trigger()
		}

	default:
		l.logger.Debug("unhandled event", "type", ev.Type)
	}
}
