package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"wagate/internal/config"
	"wagate/internal/domain"
)

// ProviderConstructor is a function that creates a provider from a config entry.
type ProviderConstructor func(pc config.ProviderConfig, logger *slog.Logger) domain.Provider

// Factory creates and caches completion providers and media backends from config.
type Factory struct {
	cfg          *config.Config
	logger       *slog.Logger
	constructors map[string]ProviderConstructor
	cache        map[string]domain.Provider
	mu           sync.RWMutex
}

// NewFactory creates a provider factory with the built-in constructors registered.
func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	f := &Factory{
		cfg:          cfg,
		logger:       logger,
		constructors: make(map[string]ProviderConstructor),
		cache:        make(map[string]domain.Provider),
	}
	f.registerDefaults()
	return f
}

func (f *Factory) registerDefaults() {
	f.constructors["ollama"] = func(pc config.ProviderConfig, logger *slog.Logger) domain.Provider {
		return NewOllama(OllamaConfig{APIBase: pc.APIBase, DefaultModel: pc.DefaultModel, Logger: logger})
	}
	f.constructors["openai"] = func(pc config.ProviderConfig, logger *slog.Logger) domain.Provider {
		return NewOpenAI(OpenAIConfig{APIKey: pc.APIKey, APIBase: pc.APIBase, Model: pc.DefaultModel, Logger: logger})
	}
	f.constructors["claude"] = func(pc config.ProviderConfig, logger *slog.Logger) domain.Provider {
		return NewClaude(ClaudeConfig{APIKey: pc.APIKey, APIBase: pc.APIBase, Model: pc.DefaultModel, Logger: logger})
	}
	f.constructors["gemini"] = func(pc config.ProviderConfig, logger *slog.Logger) domain.Provider {
		return NewGemini(GeminiConfig{APIKey: pc.APIKey, APIBase: pc.APIBase, Model: pc.DefaultModel, Logger: logger})
	}
}

// Get returns the provider with the given name, or the configured default if
// name is empty. Created providers are cached.
func (f *Factory) Get(name string) (domain.Provider, error) {
	if name == "" {
		name = f.cfg.AI.Provider
	}

	f.mu.RLock()
	if cached, ok := f.cache[name]; ok {
		f.mu.RUnlock()
		return cached, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	if cached, ok := f.cache[name]; ok {
		return cached, nil
	}

	pc, ok := f.cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	if !pc.Enabled {
		return nil, fmt.Errorf("provider %s is disabled", name)
	}

	ctor, found := f.constructors[name]

	var p domain.Provider
	if found {
		p = ctor(pc, f.logger)
	} else if pc.APIBase != "" && pc.APIKey != "" {
		// Unknown names are treated as OpenAI-compatible endpoints.
		p = NewOpenAI(OpenAIConfig{APIKey: pc.APIKey, APIBase: pc.APIBase, Model: pc.DefaultModel, Logger: f.logger})
	} else {
		return nil, fmt.Errorf("provider %s: no constructor registered and no API base/key configured", name)
	}

	f.cache[name] = p
	return p, nil
}

// DefaultProvider returns the configured provider, wrapped in a failover
// chain when ai.failoverChain lists more entries. Chain members that cannot
// be built are skipped with a warning.
func (f *Factory) DefaultProvider() (domain.Provider, error) {
	primary, err := f.Get("")
	if err != nil {
		return nil, err
	}
	if len(f.cfg.AI.FailoverChain) == 0 {
		return primary, nil
	}

	chain := []domain.Provider{primary}
	for _, name := range f.cfg.AI.FailoverChain {
		if name == f.cfg.AI.Provider {
			continue
		}
		p, err := f.Get(name)
		if err != nil {
			f.logger.Warn("failover provider unavailable", "provider", name, "err", err)
			continue
		}
		chain = append(chain, p)
	}
	if len(chain) == 1 {
		return primary, nil
	}
	return NewFailoverProvider(chain, f.logger), nil
}

// HealthyProvider returns the first enabled provider that passes a health check, or nil.
func (f *Factory) HealthyProvider(ctx context.Context) domain.Provider {
	for name, pc := range f.cfg.Providers {
		if !pc.Enabled {
			continue
		}
		if _, ok := f.constructors[name]; !ok {
			continue
		}
		p, err := f.Get(name)
		if err != nil {
			continue
		}
		if p.Healthy(ctx) == nil {
			return p
		}
	}
	return nil
}

// ImageGenerator builds the backend selected by media.image.backend.
func (f *Factory) ImageGenerator() (domain.ImageGenerator, error) {
	mc := f.cfg.Media.Image
	pc, err := f.enabled(mc.Backend)
	if err != nil {
		return nil, fmt.Errorf("image backend: %w", err)
	}
	model := mc.Model
	if model == "" && mc.Backend == "huggingface" {
		model = pc.DefaultModel
	}
	switch mc.Backend {
	case "huggingface":
		return NewHuggingFaceImage(HuggingFaceImageConfig{
			APIBase: pc.APIBase,
			APIKey:  pc.APIKey,
			Model:   model,
			Logger:  f.logger,
		}), nil
	case "openai":
		return NewOpenAIImage(OpenAIImageConfig{
			APIKey:  pc.APIKey,
			APIBase: pc.APIBase,
			Model:   model,
			Logger:  f.logger,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported image backend: %s", mc.Backend)
	}
}

// SpeechSynthesizer builds the backend selected by media.tts.backend.
func (f *Factory) SpeechSynthesizer() (domain.SpeechSynthesizer, error) {
	mc := f.cfg.Media.TTS
	pc, err := f.enabled(mc.Backend)
	if err != nil {
		return nil, fmt.Errorf("tts backend: %w", err)
	}
	apiBase := pc.APIBase
	if mc.Backend == "openai" && apiBase == "" {
		apiBase = openaiDefaultBase
	}
	return NewTTSProvider(TTSConfig{
		Provider: mc.Backend,
		APIBase:  apiBase,
		APIKey:   pc.APIKey,
		Model:    mc.Model,
		Voice:    mc.Voice,
		Logger:   f.logger,
	}), nil
}

// Transcriber builds the voice-note transcriber, or returns nil when
// transcription is disabled.
func (f *Factory) Transcriber() (*WhisperProvider, error) {
	tc := f.cfg.Media.Transcription
	if !tc.Enabled {
		return nil, nil
	}
	pc, err := f.enabled(tc.Provider)
	if err != nil {
		return nil, fmt.Errorf("transcription: %w", err)
	}
	return NewWhisperProvider(WhisperConfig{
		APIBase:  pc.APIBase,
		APIKey:   pc.APIKey,
		Model:    tc.Model,
		Language: tc.Language,
		Logger:   f.logger,
	}), nil
}

func (f *Factory) enabled(name string) (config.ProviderConfig, error) {
	pc, ok := f.cfg.Providers[name]
	if !ok {
		return pc, fmt.Errorf("unknown provider: %s", name)
	}
	if !pc.Enabled {
		return pc, fmt.Errorf("provider %s is disabled", name)
	}
	return pc, nil
}
