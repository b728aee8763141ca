package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"wagate/internal/domain"
)

const maxAudioBytes = 16 << 20

// TTSConfig configures the text-to-speech provider.
type TTSConfig struct {
	Provider   string // "openai" | "elevenlabs" | "huggingface"
	APIBase    string
	APIKey     string
	Model      string // "tts-1" (OpenAI), model id (ElevenLabs, Hugging Face)
	Voice      string // "alloy"... (OpenAI) or voice ID (ElevenLabs)
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// TTSProvider implements domain.SpeechSynthesizer.
type TTSProvider struct {
	provider string
	apiBase  string
	apiKey   string
	model    string
	voice    string
	client   *http.Client
	logger   *slog.Logger
}

// NewTTSProvider creates a new text-to-speech provider.
func NewTTSProvider(cfg TTSConfig) *TTSProvider {
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	switch cfg.Provider {
	case "openai":
		if cfg.APIBase == "" {
			cfg.APIBase = openaiDefaultBase
		}
		if cfg.Model == "" {
			cfg.Model = "tts-1"
		}
		if cfg.Voice == "" {
			cfg.Voice = "alloy"
		}
	case "elevenlabs":
		if cfg.APIBase == "" {
			cfg.APIBase = "https://api.elevenlabs.io/v1"
		}
		if cfg.Model == "" {
			cfg.Model = "eleven_multilingual_v2"
		}
		if cfg.Voice == "" {
			cfg.Voice = "21m00Tcm4TlvDq8ikWAM"
		}
	case "huggingface":
		if cfg.APIBase == "" {
			cfg.APIBase = huggingFaceDefaultBase
		}
		if cfg.Model == "" {
			cfg.Model = "facebook/mms-tts-por"
		}
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = SharedHTTPClient(defaultHTTPTimeout)
	}
	return &TTSProvider{
		provider: cfg.Provider,
		apiBase:  strings.TrimRight(cfg.APIBase, "/"),
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		voice:    cfg.Voice,
		client:   cfg.HTTPClient,
		logger:   cfg.Logger,
	}
}

// Synthesize converts text to speech audio.
func (t *TTSProvider) Synthesize(ctx context.Context, text string) (domain.Media, error) {
	switch t.provider {
	case "openai":
		return t.synthesizeOpenAI(ctx, text)
	case "elevenlabs":
		return t.synthesizeElevenLabs(ctx, text)
	case "huggingface":
		return t.synthesizeHuggingFace(ctx, text)
	default:
		return domain.Media{}, fmt.Errorf("unsupported TTS provider: %s", t.provider)
	}
}

func (t *TTSProvider) synthesizeOpenAI(ctx context.Context, text string) (domain.Media, error) {
	body, _ := json.Marshal(map[string]string{
		"model":           t.model,
		"input":           text,
		"voice":           t.voice,
		"response_format": "mp3",
	})
	return t.post(ctx, "OpenAI TTS", t.apiBase+"/audio/speech", body, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+t.apiKey)
	}, "audio/mpeg")
}

func (t *TTSProvider) synthesizeElevenLabs(ctx context.Context, text string) (domain.Media, error) {
	body, _ := json.Marshal(map[string]string{
		"text":     text,
		"model_id": t.model,
	})
	url := fmt.Sprintf("%s/text-to-speech/%s", t.apiBase, t.voice)
	return t.post(ctx, "ElevenLabs", url, body, func(r *http.Request) {
		r.Header.Set("xi-api-key", t.apiKey)
		r.Header.Set("Accept", "audio/mpeg")
	}, "audio/mpeg")
}

func (t *TTSProvider) synthesizeHuggingFace(ctx context.Context, text string) (domain.Media, error) {
	body, _ := json.Marshal(map[string]string{"inputs": text})
	url := fmt.Sprintf("%s/models/%s", t.apiBase, t.model)
	return t.post(ctx, "Hugging Face TTS", url, body, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+t.apiKey)
		r.Header.Set("Accept", "audio/*")
	}, "audio/flac")
}

func (t *TTSProvider) post(ctx context.Context, service, url string, body []byte, auth func(*http.Request), fallbackMIME string) (domain.Media, error) {
	resp, err := doWithRetry(ctx, t.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		auth(req)
		return req, nil
	}, t.logger)
	if err != nil {
		return domain.Media{}, fmt.Errorf("%s request: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Media{}, readError(service, resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return domain.Media{}, fmt.Errorf("%s read: %w", service, err)
	}
	if len(data) == 0 {
		return domain.Media{}, fmt.Errorf("%s returned empty audio", service)
	}

	mime := mediaType(resp.Header.Get("Content-Type"), fallbackMIME)
	if !strings.HasPrefix(mime, "audio/") {
		return domain.Media{}, fmt.Errorf("%s returned %s, not audio", service, mime)
	}
	return domain.Media{
		Data:     data,
		MIMEType: mime,
		FileName: "audio" + extensionFor(mime),
	}, nil
}
