package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/genai"

	"wagate/internal/domain"
)

const geminiDefaultModel = "gemini-2.0-flash"

// Gemini implements domain.Provider for the Gemini API.
type Gemini struct {
	apiKey  string
	apiBase string
	model   string
	logger  *slog.Logger

	once      sync.Once
	client    *genai.Client
	clientErr error
}

type GeminiConfig struct {
	APIKey  string
	APIBase string
	Model   string
	Logger  *slog.Logger
}

func NewGemini(cfg GeminiConfig) *Gemini {
	if cfg.Model == "" {
		cfg.Model = geminiDefaultModel
	}
	return &Gemini{
		apiKey:  cfg.APIKey,
		apiBase: cfg.APIBase,
		model:   cfg.Model,
		logger:  cfg.Logger,
	}
}

func (g *Gemini) Name() string { return "gemini" }

// genaiClient builds the client lazily since genai.NewClient needs a context.
func (g *Gemini) genaiClient(ctx context.Context) (*genai.Client, error) {
	g.once.Do(func() {
		cc := &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		}
		if g.apiBase != "" {
			cc.HTTPOptions = genai.HTTPOptions{BaseURL: g.apiBase}
		}
		g.client, g.clientErr = genai.NewClient(ctx, cc)
	})
	if g.clientErr != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", g.clientErr)
	}
	return g.client, nil
}

func (g *Gemini) Healthy(ctx context.Context) error {
	client, err := g.genaiClient(ctx)
	if err != nil {
		return err
	}
	if _, err := client.Models.Get(ctx, g.model, nil); err != nil {
		return fmt.Errorf("gemini not reachable: %w", err)
	}
	return nil
}

func (g *Gemini) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	client, err := g.genaiClient(ctx)
	if err != nil {
		return nil, err
	}
	model := req.Model
	if model == "" {
		model = g.model
	}

	cfg := &genai.GenerateContentConfig{}
	system := req.System
	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system += "\n" + m.Content
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		cfg.Temperature = &t
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	start := time.Now()
	resp, err := client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}

	out := &domain.ChatResponse{
		Content:   resp.Text(),
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if len(resp.Candidates) > 0 {
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = domain.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}
