package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"wagate/internal/domain"
)

const (
	huggingFaceDefaultBase  = "https://api-inference.huggingface.co"
	huggingFaceDefaultModel = "stabilityai/stable-diffusion-xl-base-1.0"
	maxImageBytes           = 16 << 20
)

// HuggingFaceImageConfig configures text-to-image through the Hugging Face
// inference API.
type HuggingFaceImageConfig struct {
	APIBase    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// HuggingFaceImage implements domain.ImageGenerator.
type HuggingFaceImage struct {
	apiBase string
	apiKey  string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

func NewHuggingFaceImage(cfg HuggingFaceImageConfig) *HuggingFaceImage {
	if cfg.APIBase == "" {
		cfg.APIBase = huggingFaceDefaultBase
	}
	if cfg.Model == "" {
		cfg.Model = huggingFaceDefaultModel
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = SharedHTTPClient(defaultHTTPTimeout)
	}
	return &HuggingFaceImage{
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  cfg.HTTPClient,
		logger:  cfg.Logger,
	}
}

func (h *HuggingFaceImage) Generate(ctx context.Context, prompt string) (domain.Media, error) {
	body, _ := json.Marshal(map[string]string{"inputs": prompt})
	url := fmt.Sprintf("%s/models/%s", h.apiBase, h.model)

	resp, err := doWithRetry(ctx, h.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "image/png")
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
		return req, nil
	}, h.logger)
	if err != nil {
		return domain.Media{}, fmt.Errorf("hugging face request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Media{}, readError("hugging face", resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return domain.Media{}, fmt.Errorf("hugging face read: %w", err)
	}
	mimeType := mediaType(resp.Header.Get("Content-Type"), http.DetectContentType(data))
	if !strings.HasPrefix(mimeType, "image/") {
		return domain.Media{}, fmt.Errorf("hugging face returned %s, not an image", mimeType)
	}

	h.logger.Debug("image generated", "model", h.model, "bytes", len(data))
	return domain.Media{Data: data, MIMEType: mimeType, FileName: "imagem" + extensionFor(mimeType)}, nil
}

// OpenAIImageConfig configures the OpenAI images endpoint.
type OpenAIImageConfig struct {
	APIKey     string
	APIBase    string
	Model      string // "dall-e-3", "dall-e-2", "gpt-image-1"
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// OpenAIImage implements domain.ImageGenerator.
type OpenAIImage struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

func NewOpenAIImage(cfg OpenAIImageConfig) *OpenAIImage {
	if cfg.APIBase == "" {
		cfg.APIBase = openaiDefaultBase
	}
	if cfg.Model == "" {
		cfg.Model = "dall-e-3"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = SharedHTTPClient(defaultHTTPTimeout)
	}
	return &OpenAIImage{
		client: openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(cfg.APIBase),
			option.WithHTTPClient(cfg.HTTPClient),
		),
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

func (o *OpenAIImage) Generate(ctx context.Context, prompt string) (domain.Media, error) {
	resp, err := o.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(o.model),
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize1024x1024,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	})
	if err != nil {
		return domain.Media{}, fmt.Errorf("openai images: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return domain.Media{}, fmt.Errorf("openai images: empty response")
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return domain.Media{}, fmt.Errorf("openai images: decode: %w", err)
	}
	return domain.Media{Data: data, MIMEType: "image/png", FileName: "imagem.png"}, nil
}

// mediaType returns the bare media type of header, or fallback when empty.
func mediaType(header, fallback string) string {
	if header == "" {
		return fallback
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil || mt == "application/octet-stream" {
		return fallback
	}
	return mt
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "audio/mpeg":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	case "audio/flac":
		return ".flac"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	}
	if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
		return exts[0]
	}
	return ""
}
