package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Env holds the variables the gateway reads from the process environment.
// Non-empty values override the config file.
type Env struct {
	APIKey         string `env:"API_KEY"`
	Port           int    `env:"PORT"`
	BotName        string `env:"BOT_NAME"`
	LogLevel       string `env:"LOG_LEVEL"`
	WebhookURL     string `env:"WEBHOOK_URL"`
	WebhookToken   string `env:"WEBHOOK_TOKEN"`
	WebhookSecret  string `env:"WEBHOOK_SECRET"`
	AIProvider     string `env:"AI_PROVIDER"`
	OpenAIKey      string `env:"OPENAI_API_KEY"`
	AnthropicKey   string `env:"ANTHROPIC_API_KEY"`
	GeminiKey      string `env:"GEMINI_API_KEY"`
	HuggingFaceKey string `env:"HUGGINGFACE_API_KEY"`
	ElevenLabsKey  string `env:"ELEVENLABS_API_KEY"`
	SessionDB      string `env:"WAGATE_SESSION_DB"`
	StickerBackend string `env:"STICKER_BACKEND"`
	ImageBackend   string `env:"IMAGE_BACKEND"`
	TTSBackend     string `env:"TTS_BACKEND"`
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overlays the process environment onto cfg.
func ApplyEnv(cfg *Config) error {
	var e Env
	if err := env.Parse(&e); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	e.apply(cfg)
	return nil
}

func (e Env) apply(cfg *Config) {
	setString(&cfg.Server.APIKey, e.APIKey)
	if e.Port != 0 {
		cfg.Server.Port = e.Port
	}
	setString(&cfg.General.BotName, e.BotName)
	setString(&cfg.General.LogLevel, e.LogLevel)
	setString(&cfg.Webhook.URL, e.WebhookURL)
	setString(&cfg.Webhook.Token, e.WebhookToken)
	setString(&cfg.Webhook.Secret, e.WebhookSecret)
	setString(&cfg.AI.Provider, e.AIProvider)
	setString(&cfg.WhatsApp.DBPath, e.SessionDB)
	setString(&cfg.Media.Sticker.Backend, e.StickerBackend)
	setString(&cfg.Media.Image.Backend, e.ImageBackend)
	setString(&cfg.Media.TTS.Backend, e.TTSBackend)

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	setProviderKey(cfg, "openai", e.OpenAIKey)
	setProviderKey(cfg, "claude", e.AnthropicKey)
	setProviderKey(cfg, "gemini", e.GeminiKey)
	setProviderKey(cfg, "huggingface", e.HuggingFaceKey)
	setProviderKey(cfg, "elevenlabs", e.ElevenLabsKey)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// setProviderKey sets the key and enables the provider, since a key in the
// environment is an explicit opt-in.
func setProviderKey(cfg *Config, name, key string) {
	if key == "" {
		return
	}
	pc := cfg.Providers[name]
	pc.APIKey = key
	pc.Enabled = true
	cfg.Providers[name] = pc
}
