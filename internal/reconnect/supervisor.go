// Package reconnect turns transport disconnects into a bounded series of
// reconnect attempts with exponential backoff.
package reconnect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"
)

// ErrExhausted is returned by Run when every attempt failed. It is terminal.
var ErrExhausted = errors.New("reconnect attempts exhausted")

const (
	defaultBase        = 2 * time.Second
	defaultMax         = 2 * time.Minute
	defaultMaxAttempts = 10
	jitterFraction     = 0.2
)

// Config configures a Supervisor. Connect is required.
type Config struct {
	Connect     func(ctx context.Context) error
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int

	// OnAttempt runs before each attempt is scheduled.
	OnAttempt func(attempt int, delay time.Duration)
	// OnGiveUp runs once when the attempts are exhausted.
	OnGiveUp func(err error)

	Logger *slog.Logger
}

// Supervisor waits for Trigger and then reconnects.
type Supervisor struct {
	connect     func(ctx context.Context) error
	base        time.Duration
	max         time.Duration
	maxAttempts int
	onAttempt   func(int, time.Duration)
	onGiveUp    func(error)
	logger      *slog.Logger

	trigger chan struct{}
	sleep   func(ctx context.Context, d time.Duration) error

	// attempts counts connects since the session was last ready. A socket
	// that opens and then fails login does not start a new series.
	attempts atomic.Int64
}

func New(cfg Config) *Supervisor {
	if cfg.Base <= 0 {
		cfg.Base = defaultBase
	}
	if cfg.Max < cfg.Base {
		cfg.Max = max(defaultMax, cfg.Base)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	return &Supervisor{
		connect:     cfg.Connect,
		base:        cfg.Base,
		max:         cfg.Max,
		maxAttempts: cfg.MaxAttempts,
		onAttempt:   cfg.OnAttempt,
		onGiveUp:    cfg.OnGiveUp,
		logger:      cfg.Logger,
		trigger:     make(chan struct{}, 1),
		sleep:       sleepCtx,
	}
}

// Trigger requests a reconnect. Triggers that arrive while one is pending
// or in progress coalesce into it.
func (s *Supervisor) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Reset is called once the session is ready: it zeroes the attempt count
// and drops a pending trigger.
func (s *Supervisor) Reset() {
	s.attempts.Store(0)
	select {
	case <-s.trigger:
	default:
	}
}

// Run handles triggers until ctx is done (returns nil) or a reconnect
// series is exhausted (returns an error wrapping ErrExhausted).
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.trigger:
			if err := s.reconnect(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

func (s *Supervisor) reconnect(ctx context.Context) error {
	var lastErr error
	for {
		attempt := int(s.attempts.Add(1))
		if attempt > s.maxAttempts {
			break
		}
		delay := s.jittered(Delay(s.base, s.max, attempt))
		s.logger.Info("reconnect scheduled", "attempt", attempt, "max_attempts", s.maxAttempts, "delay", delay)
		if s.onAttempt != nil {
			s.onAttempt(attempt, delay)
		}
		if err := s.sleep(ctx, delay); err != nil {
			return err
		}

		err := s.connect(ctx)
		if err == nil {
			// Not ready yet: only Reset, on the ready event, ends the series.
			s.logger.Info("reconnect socket open, waiting for login", "attempt", attempt)
			return nil
		}
		lastErr = err
		s.logger.Warn("reconnect attempt failed", "attempt", attempt, "err", err)
	}

	if lastErr == nil {
		lastErr = errors.New("session never became ready")
	}
	err := fmt.Errorf("%w after %d attempts: %v", ErrExhausted, s.maxAttempts, lastErr)
	s.logger.Error("giving up on reconnect", "err", err)
	if s.onGiveUp != nil {
		s.onGiveUp(err)
	}
	return err
}

// Delay returns min(base·2^(attempt-1), max) for attempt >= 1.
func Delay(base, maxDelay time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxDelay || d <= 0 {
			return maxDelay
		}
	}
	return min(d, maxDelay)
}

// jittered adds up to 20% random delay.
func (s *Supervisor) jittered(d time.Duration) time.Duration {
	spread := int64(float64(d) * jitterFraction)
	if spread <= 0 {
		return d
	}
	return d + time.Duration(rand.Int64N(spread+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
