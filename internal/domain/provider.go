package domain

import "context"

// Provider is the interface all completion providers implement.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Name() string
	Healthy(ctx context.Context) error
}

type ChatRequest struct {
	System      string
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float64
	JSON        bool // ask for a single JSON object
}

type ChatResponse struct {
	Content      string
	FinishReason string
	Usage        Usage
	LatencyMs    int64
}

type Message struct {
	Role    string `json:"role"` // system | user | assistant
	Content string `json:"content"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ImageGenerator turns a prompt into an image.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (Media, error)
}

// SpeechSynthesizer turns text into audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) (Media, error)
}

// StickerRenderer rasterizes short text into a sticker image.
type StickerRenderer interface {
	Render(ctx context.Context, text string) (Media, error)
}
