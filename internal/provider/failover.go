package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"wagate/internal/domain"
)

// failoverCooldown is how long a provider that just failed is skipped.
// Chat messages wait on the classifier, so a dead primary must not cost a
// full timeout on every message.
const failoverCooldown = 30 * time.Second

// FailoverProvider walks an ordered chain of providers. A provider that
// fails is benched for a cooldown; if every provider is benched the chain
// is tried anyway, in order.
type FailoverProvider struct {
	chain    []domain.Provider
	cooldown time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	benched map[string]time.Time // provider name -> bench expiry
}

func NewFailoverProvider(providers []domain.Provider, logger *slog.Logger) *FailoverProvider {
	return &FailoverProvider{
		chain:    providers,
		cooldown: failoverCooldown,
		logger:   logger,
		now:      time.Now,
		benched:  make(map[string]time.Time),
	}
}

func (fp *FailoverProvider) Name() string {
	names := make([]string, 0, len(fp.chain))
	for _, p := range fp.chain {
		names = append(names, p.Name())
	}
	return "failover(" + strings.Join(names, "→") + ")"
}

func (fp *FailoverProvider) Healthy(ctx context.Context) error {
	var errs []error
	for _, p := range fp.chain {
		err := p.Healthy(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return fmt.Errorf("no healthy provider in chain: %w", errors.Join(errs...))
}

func (fp *FailoverProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	var lastErr error
	for i, p := range fp.order() {
		resp, err := p.Chat(ctx, req)
		if err == nil {
			fp.restore(p.Name())
			if i > 0 {
				fp.logger.Info("answered by fallback provider", "provider", p.Name(), "position", i+1)
			}
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		fp.bench(p.Name())
		fp.logger.Warn("provider failed, benching", "provider", p.Name(), "cooldown", fp.cooldown, "err", err)
	}
	if lastErr == nil {
		return nil, errors.New("failover chain is empty")
	}
	return nil, fmt.Errorf("every provider failed: %w", lastErr)
}

// order returns the chain with benched providers moved to the end.
func (fp *FailoverProvider) order() []domain.Provider {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	now := fp.now()
	ready := make([]domain.Provider, 0, len(fp.chain))
	var resting []domain.Provider
	for _, p := range fp.chain {
		if until, ok := fp.benched[p.Name()]; ok && now.Before(until) {
			resting = append(resting, p)
			continue
		}
		ready = append(ready, p)
	}
	return append(ready, resting...)
}

func (fp *FailoverProvider) bench(name string) {
	fp.mu.Lock()
	fp.benched[name] = fp.now().Add(fp.cooldown)
	fp.mu.Unlock()
}

func (fp *FailoverProvider) restore(name string) {
	fp.mu.Lock()
	delete(fp.benched, name)
	fp.mu.Unlock()
}
