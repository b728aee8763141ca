package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"wagate/internal/domain"
)

const chatFailed = "😕 Desculpe, não consegui responder agora. Tente novamente em instantes."

const jokeSystem = `Você é um humorista brasileiro. Conte UMA piada curta, leve e sem
ofensas, em português do Brasil. Responda só com a piada.`

const chatSystem = `Você é um assistente de WhatsApp simpático e objetivo. Responda em
português do Brasil, em no máximo três parágrafos curtos, sem markdown além de *negrito*.`

// Joke propagates provider errors; the dispatcher owns the failure reply.
type Joke struct {
	provider  domain.Provider
	maxTokens int
}

func NewJoke(p domain.Provider, maxTokens int) *Joke {
	return &Joke{provider: p, maxTokens: maxTokens}
}

func (j *Joke) Intent() domain.Intent { return domain.IntentJoke }

func (j *Joke) Handle(ctx context.Context, payload string) (domain.Reply, error) {
	prompt := "Conte uma piada."
	if topic := strings.TrimSpace(payload); topic != "" {
		prompt = "Conte uma piada sobre: " + topic
	}
	resp, err := j.provider.Chat(ctx, domain.ChatRequest{
		System:      jokeSystem,
		Messages:    []domain.Message{{Role: "user", Content: prompt}},
		MaxTokens:   j.maxTokens,
		Temperature: 0.9,
	})
	if err != nil {
		return domain.Reply{}, fmt.Errorf("joke: %w", err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return domain.Reply{}, fmt.Errorf("joke: empty completion")
	}
	return domain.TextReply("😂 " + text), nil
}

type Chat struct {
	provider  domain.Provider
	maxTokens int
	logger    *slog.Logger
}

func NewChat(p domain.Provider, maxTokens int, logger *slog.Logger) *Chat {
	return &Chat{provider: p, maxTokens: maxTokens, logger: logger}
}

func (c *Chat) Intent() domain.Intent { return domain.IntentChat }

func (c *Chat) Handle(ctx context.Context, payload string) (domain.Reply, error) {
	resp, err := c.provider.Chat(ctx, domain.ChatRequest{
		System:      chatSystem,
		Messages:    []domain.Message{{Role: "user", Content: strings.TrimSpace(payload)}},
		MaxTokens:   c.maxTokens,
		Temperature: 0.7,
	})
	if err != nil {
		c.logger.Error("chat completion failed", "provider", c.provider.Name(), "err", err)
		return domain.TextReply(chatFailed), nil
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return domain.TextReply(chatFailed), nil
	}
	return domain.TextReply(text), nil
}

type Help struct {
	text string
}

func NewHelp(botName string) *Help {
	if botName == "" {
		botName = "WhatsApp Bot"
	}
	return &Help{text: HelpText(botName)}
}

func (h *Help) Intent() domain.Intent { return domain.IntentHelp }

func (h *Help) Handle(ctx context.Context, payload string) (domain.Reply, error) {
	return domain.TextReply(h.text), nil
}

// HelpText lists the commands the bot understands.
func HelpText(botName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🤖 *%s*\n\nPosso fazer isto por você:\n\n", botName)
	b.WriteString("🎨 *Figurinha*: \"faz uma figurinha escrito bom dia\"\n")
	b.WriteString("🖼️ *Imagem*: \"gera uma imagem de um gato astronauta\"\n")
	b.WriteString("🔊 *Áudio*: \"manda um áudio dizendo parabéns\"\n")
	b.WriteString("😂 *Piada*: \"conta uma piada sobre futebol\"\n")
	b.WriteString("💬 *Conversa*: qualquer pergunta\n")
	b.WriteString("❓ *Ajuda*: \"ajuda\"\n\n")
	b.WriteString("Em grupos, me mencione para eu responder.")
	return b.String()
}
