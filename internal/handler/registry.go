// Package handler implements one handler per intent. Each handler is
// stateless and makes at most one external call.
package handler

import (
	"context"
	"log/slog"
	"sync"

	"wagate/internal/domain"
)

// Handler fulfils one intent.
type Handler interface {
	Intent() domain.Intent
	Handle(ctx context.Context, payload string) (domain.Reply, error)
}

// Registry maps intents to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.Intent]Handler
	logger   *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		handlers: make(map[domain.Intent]Handler),
		logger:   logger,
	}
}

func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Intent()] = h
	r.logger.Debug("registered handler", "intent", h.Intent())
}

func (r *Registry) Get(intent domain.Intent) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[intent]
}

// Lookup returns the handler for intent, falling back to help. It returns nil
// only when help itself is not registered.
func (r *Registry) Lookup(intent domain.Intent) Handler {
	if h := r.Get(intent); h != nil {
		return h
	}
	return r.Get(domain.IntentHelp)
}

// Intents lists the registered intents in display order.
func (r *Registry) Intents() []domain.Intent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Intent, 0, len(r.handlers))
	for _, in := range domain.Intents {
		if _, ok := r.handlers[in]; ok {
			out = append(out, in)
		}
	}
	return out
}

// Deps are the external capabilities the built-in handlers call. Nil
// media backends leave the matching handler unregistered, so those
// intents fall back to help.
type Deps struct {
	Provider  domain.Provider
	Sticker   domain.StickerRenderer
	Image     domain.ImageGenerator
	Speech    domain.SpeechSynthesizer
	BotName   string
	MaxTokens int
	Logger    *slog.Logger
}

// NewDefaultRegistry registers every handler whose dependency is present.
func NewDefaultRegistry(d Deps) *Registry {
	r := NewRegistry(d.Logger)
	r.Register(NewHelp(d.BotName))
	if d.Sticker != nil {
		r.Register(NewSticker(d.Sticker, d.Logger))
	}
	if d.Image != nil {
		r.Register(NewImage(d.Image, d.Logger))
	}
	if d.Speech != nil {
		r.Register(NewAudio(d.Speech, d.Logger))
	}
	if d.Provider != nil {
		r.Register(NewJoke(d.Provider, d.MaxTokens))
		r.Register(NewChat(d.Provider, d.MaxTokens, d.Logger))
	}
	return r
}
