package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the gateway.
type Config struct {
	General   GeneralConfig             `json:"general" yaml:"general"`
	Server    ServerConfig              `json:"server" yaml:"server"`
	WhatsApp  WhatsAppConfig            `json:"whatsapp" yaml:"whatsapp"`
	Dispatch  DispatchConfig            `json:"dispatch" yaml:"dispatch"`
	AI        AIConfig                  `json:"ai" yaml:"ai"`
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Media     MediaConfig               `json:"media" yaml:"media"`
	Webhook   WebhookConfig             `json:"webhook" yaml:"webhook"`
	Metrics   MetricsConfig             `json:"metrics" yaml:"metrics"`
}

type GeneralConfig struct {
	BotName   string `json:"botName" yaml:"botName"`
	LogLevel  string `json:"logLevel" yaml:"logLevel"`   // debug | info | warn | error
	LogFormat string `json:"logFormat" yaml:"logFormat"` // text | json
	Timezone  string `json:"timezone" yaml:"timezone"`
}

type ServerConfig struct {
	Host             string `json:"host" yaml:"host"`
	Port             int    `json:"port" yaml:"port"`
	APIKey           string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	BulkDelayMillis  int    `json:"bulkDelayMillis" yaml:"bulkDelayMillis"`
	BulkMaxNumbers   int    `json:"bulkMaxNumbers" yaml:"bulkMaxNumbers"`
	QRRefreshSeconds int    `json:"qrRefreshSeconds" yaml:"qrRefreshSeconds"`
}

type WhatsAppConfig struct {
	DBPath               string `json:"dbPath" yaml:"dbPath"`
	PrintQR              bool   `json:"printQr" yaml:"printQr"`
	ReconnectBaseSeconds int    `json:"reconnectBaseSeconds" yaml:"reconnectBaseSeconds"`
	ReconnectMaxSeconds  int    `json:"reconnectMaxSeconds" yaml:"reconnectMaxSeconds"`
	ReconnectMaxAttempts int    `json:"reconnectMaxAttempts" yaml:"reconnectMaxAttempts"`
}

type DispatchConfig struct {
	Concurrency           int  `json:"concurrency" yaml:"concurrency"`
	HandlerTimeoutSeconds int  `json:"handlerTimeoutSeconds" yaml:"handlerTimeoutSeconds"`
	ReactOnReceive        bool `json:"reactOnReceive" yaml:"reactOnReceive"`
	RespondInGroups       bool `json:"respondInGroups" yaml:"respondInGroups"` // only when mentioned
	RateBurst             int  `json:"rateBurst" yaml:"rateBurst"`
	RatePerMinute         int  `json:"ratePerMinute" yaml:"ratePerMinute"`
}

// AIConfig selects the completion provider used by the classifier and the
// text handlers.
type AIConfig struct {
	Provider      string   `json:"provider" yaml:"provider"`
	FailoverChain []string `json:"failoverChain,omitempty" yaml:"failoverChain,omitempty"`
	MaxTokens     int      `json:"maxTokens" yaml:"maxTokens"`
}

type ProviderConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	APIBase      string `json:"apiBase,omitempty" yaml:"apiBase,omitempty"`
	APIKey       string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	DefaultModel string `json:"defaultModel,omitempty" yaml:"defaultModel,omitempty"`
}

type MediaConfig struct {
	Sticker       StickerConfig       `json:"sticker" yaml:"sticker"`
	Image         ImageConfig         `json:"image" yaml:"image"`
	TTS           TTSConfig           `json:"tts" yaml:"tts"`
	Transcription TranscriptionConfig `json:"transcription" yaml:"transcription"`
}

type StickerConfig struct {
	Backend       string `json:"backend" yaml:"backend"` // local | chrome | quickchart
	Size          int    `json:"size" yaml:"size"`
	QuickChartURL string `json:"quickChartUrl,omitempty" yaml:"quickChartUrl,omitempty"`
	ChromeProfile string `json:"chromeProfile,omitempty" yaml:"chromeProfile,omitempty"`
}

type ImageConfig struct {
	Backend string `json:"backend" yaml:"backend"` // huggingface | openai
	Model   string `json:"model,omitempty" yaml:"model,omitempty"`
}

type TTSConfig struct {
	Backend string `json:"backend" yaml:"backend"` // openai | elevenlabs | huggingface
	Model   string `json:"model,omitempty" yaml:"model,omitempty"`
	Voice   string `json:"voice,omitempty" yaml:"voice,omitempty"`
}

// TranscriptionConfig turns inbound voice notes into text before
// classification. Provider names an entry in Providers with an
// OpenAI-compatible /audio/transcriptions endpoint.
type TranscriptionConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model    string `json:"model,omitempty" yaml:"model,omitempty"`
	Language string `json:"language,omitempty" yaml:"language,omitempty"`
}

// WebhookConfig configures the approval notifier. Empty URL disables it.
type WebhookConfig struct {
	URL            string `json:"url,omitempty" yaml:"url,omitempty"`
	Token          string `json:"token,omitempty" yaml:"token,omitempty"`
	Secret         string `json:"secret,omitempty" yaml:"secret,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds" yaml:"timeoutSeconds"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

// DefaultConfigDir returns the default config directory (~/.wagate).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wagate"
	}
	return filepath.Join(home, ".wagate")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads the config file at path, applies the environment overlay and
// validates the result.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	return finish(cfg)
}

// LoadOrDefaults behaves like Load but falls back to defaults plus the
// environment when the file does not exist.
func LoadOrDefaults(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, true, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}
	cfg, err = finish(Defaults())
	return cfg, false, err
}

func finish(cfg *Config) (*Config, error) {
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.WhatsApp.DBPath = ExpandPath(cfg.WhatsApp.DBPath)
	cfg.Media.Sticker.ChromeProfile = ExpandPath(cfg.Media.Sticker.ChromeProfile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

// Save writes cfg as YAML or JSON depending on the file extension.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if cfg.Server.BulkDelayMillis < 0 {
		errs = append(errs, "server.bulkDelayMillis must be >= 0")
	}
	if cfg.Server.BulkMaxNumbers < 1 {
		errs = append(errs, "server.bulkMaxNumbers must be >= 1")
	}
	if cfg.Dispatch.Concurrency < 1 || cfg.Dispatch.Concurrency > 100 {
		errs = append(errs, "dispatch.concurrency must be between 1 and 100")
	}
	if cfg.Dispatch.HandlerTimeoutSeconds < 0 {
		errs = append(errs, "dispatch.handlerTimeoutSeconds must be >= 0")
	}
	if cfg.WhatsApp.ReconnectMaxAttempts < 1 {
		errs = append(errs, "whatsapp.reconnectMaxAttempts must be >= 1")
	}
	if cfg.WhatsApp.ReconnectBaseSeconds < 1 {
		errs = append(errs, "whatsapp.reconnectBaseSeconds must be >= 1")
	}
	if cfg.WhatsApp.ReconnectMaxSeconds < cfg.WhatsApp.ReconnectBaseSeconds {
		errs = append(errs, "whatsapp.reconnectMaxSeconds must be >= reconnectBaseSeconds")
	}
	if cfg.WhatsApp.DBPath == "" {
		errs = append(errs, "whatsapp.dbPath is required")
	}

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}

	switch cfg.Media.Sticker.Backend {
	case "local", "chrome", "quickchart":
	default:
		errs = append(errs, "media.sticker.backend must be one of: local, chrome, quickchart")
	}
	switch cfg.Media.Image.Backend {
	case "huggingface", "openai":
	default:
		errs = append(errs, "media.image.backend must be one of: huggingface, openai")
	}
	switch cfg.Media.TTS.Backend {
	case "openai", "elevenlabs", "huggingface":
	default:
		errs = append(errs, "media.tts.backend must be one of: openai, elevenlabs, huggingface")
	}

	for _, provName := range cfg.AI.FailoverChain {
		if _, ok := cfg.Providers[provName]; !ok {
			errs = append(errs, fmt.Sprintf("ai.failoverChain references unknown provider: %s", provName))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Warnings lists missing settings that degrade the gateway without stopping it.
func Warnings(cfg *Config) []string {
	var warns []string
	if cfg.Server.APIKey == "" || cfg.Server.APIKey == DefaultAPIKey {
		warns = append(warns, "API_KEY not set: using the built-in default key")
	}
	if cfg.Webhook.URL == "" {
		warns = append(warns, "WEBHOOK_URL not set: approval replies will not be forwarded")
	} else if cfg.Webhook.Token == "" {
		warns = append(warns, "WEBHOOK_TOKEN not set: approval webhook calls are unauthenticated")
	}
	if p, ok := cfg.Providers[cfg.AI.Provider]; !ok || !p.Enabled {
		warns = append(warns, fmt.Sprintf("provider %q not enabled: inbound messages get the help text", cfg.AI.Provider))
	} else if p.APIKey == "" && cfg.AI.Provider != "ollama" {
		warns = append(warns, fmt.Sprintf("provider %q has no API key", cfg.AI.Provider))
	}
	return warns
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
