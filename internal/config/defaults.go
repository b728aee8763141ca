package config

// DefaultAPIKey is used when no key is configured. Startup warns about it.
const DefaultAPIKey = "minha-chave-secreta-123"

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			BotName:   "WhatsApp Bot",
			LogLevel:  "info",
			LogFormat: "text",
			Timezone:  "America/Sao_Paulo",
		},
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             4002,
			APIKey:           DefaultAPIKey,
			BulkDelayMillis:  2000,
			BulkMaxNumbers:   100,
			QRRefreshSeconds: 3,
		},
		WhatsApp: WhatsAppConfig{
			DBPath:               "~/.wagate/session.db",
			PrintQR:              false,
			ReconnectBaseSeconds: 2,
			ReconnectMaxSeconds:  120,
			ReconnectMaxAttempts: 10,
		},
		Dispatch: DispatchConfig{
			Concurrency:           4,
			HandlerTimeoutSeconds: 120,
			ReactOnReceive:        true,
			RespondInGroups:       true,
			RateBurst:             5,
			RatePerMinute:         30,
		},
		AI: AIConfig{
			Provider:  "openai",
			MaxTokens: 512,
		},
		Providers: map[string]ProviderConfig{
			"openai": {
				Enabled:      false,
				APIBase:      "https://api.openai.com/v1",
				DefaultModel: "gpt-4o-mini",
			},
			"claude": {
				Enabled:      false,
				DefaultModel: "claude-3-5-haiku-latest",
			},
			"gemini": {
				Enabled:      false,
				DefaultModel: "gemini-2.0-flash",
			},
			"ollama": {
				Enabled:      false,
				APIBase:      "http://localhost:11434",
				DefaultModel: "llama3.1:8b",
			},
			"huggingface": {
				Enabled:      false,
				APIBase:      "https://api-inference.huggingface.co",
				DefaultModel: "stabilityai/stable-diffusion-xl-base-1.0",
			},
			"elevenlabs": {
				Enabled: false,
				APIBase: "https://api.elevenlabs.io/v1",
			},
		},
		Media: MediaConfig{
			Sticker: StickerConfig{
				Backend:       "local",
				Size:          512,
				QuickChartURL: "https://quickchart.io",
				ChromeProfile: "~/.wagate/chrome-profile",
			},
			Image: ImageConfig{
				Backend: "huggingface",
			},
			TTS: TTSConfig{
				Backend: "openai",
				Model:   "tts-1",
				Voice:   "alloy",
			},
			Transcription: TranscriptionConfig{
				Enabled:  false,
				Provider: "openai",
				Model:    "whisper-1",
				Language: "pt",
			},
		},
		Webhook: WebhookConfig{
			TimeoutSeconds: 10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
