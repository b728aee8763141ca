package bus

import (
	"log/slog"
	"sync"
	"time"

	"wagate/internal/domain"
)

const publishTimeout = 10 * time.Second

// Bus carries transport events to the single dispatch consumer.
type Bus struct {
	events  chan domain.Event
	mu      sync.RWMutex
	closed  bool
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Bus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		events:  make(chan domain.Event, bufferSize),
		timeout: publishTimeout,
		logger:  logger,
	}
}

// Publish enqueues ev. Blocks up to 10 seconds if the bus is full, then drops.
func (b *Bus) Publish(ev domain.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus", "type", ev.Type)
		return
	}

	select {
	case b.events <- ev:
	default:
		b.logger.Warn("event bus full, waiting...", "type", ev.Type)
		timer := time.NewTimer(b.timeout)
		defer timer.Stop()
		select {
		case b.events <- ev:
			b.logger.Info("event delivered after wait", "type", ev.Type)
		case <-timer.C:
			b.logger.Error("event dropped: bus full", "type", ev.Type, "waited", b.timeout)
		}
	}
}

func (b *Bus) Subscribe() <-chan domain.Event {
	return b.events
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.events)
	}
}
