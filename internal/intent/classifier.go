// Package intent classifies inbound chat text into one of the gateway's
// intents with a single completion call.
package intent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"wagate/internal/domain"
)

// ErrMalformedResponse is returned when the provider answer is not a single
// JSON object with a usable tag.
var ErrMalformedResponse = errors.New("malformed classifier response")

const instruction = `Você é o classificador de comandos de um bot de WhatsApp.
Leia a mensagem do usuário e responda APENAS com um objeto JSON no formato
{"tipo": "<tipo>", "conteudo": "<conteudo>"}

Tipos possíveis:
- "sticker": o usuário quer uma figurinha com um texto curto. conteudo = o texto da figurinha.
- "image": o usuário quer que uma imagem seja gerada. conteudo = a descrição da imagem.
- "audio": o usuário quer ouvir um texto falado. conteudo = o texto a ser falado.
- "joke": o usuário quer uma piada. conteudo = o tema da piada (ou vazio).
- "chat": pergunta ou conversa livre. conteudo = a pergunta do usuário.
- "help": pedido de ajuda, saudação ou qualquer coisa que não se encaixe acima. conteudo = "".

Exemplos:
"faz uma figurinha escrito bom dia" -> {"tipo": "sticker", "conteudo": "bom dia"}
"gera uma imagem de um gato astronauta" -> {"tipo": "image", "conteudo": "um gato astronauta"}
"manda um áudio dizendo parabéns Ana" -> {"tipo": "audio", "conteudo": "parabéns Ana"}
"conta uma piada sobre programadores" -> {"tipo": "joke", "conteudo": "programadores"}
"qual a capital da Austrália?" -> {"tipo": "chat", "conteudo": "qual a capital da Austrália?"}
"ajuda" -> {"tipo": "help", "conteudo": ""}

Não escreva nada fora do JSON.`

// aliases maps Portuguese tags some models answer with onto the closed set.
var aliases = map[string]domain.Intent{
	"figurinha": domain.IntentSticker,
	"imagem":    domain.IntentImage,
	"áudio":     domain.IntentAudio,
	"piada":     domain.IntentJoke,
	"conversa":  domain.IntentChat,
	"pergunta":  domain.IntentChat,
	"ajuda":     domain.IntentHelp,
}

// Classifier turns text into a domain.Classified.
type Classifier struct {
	provider  domain.Provider
	model     string
	maxTokens int
	logger    *slog.Logger
}

type ClassifierConfig struct {
	Provider  domain.Provider
	Model     string // optional; provider default when empty
	MaxTokens int
	Logger    *slog.Logger
}

func NewClassifier(cfg ClassifierConfig) *Classifier {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 256
	}
	return &Classifier{
		provider:  cfg.Provider,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    cfg.Logger,
	}
}

// Classify asks the provider for a tag and payload. It never retries.
func (c *Classifier) Classify(ctx context.Context, text string) (domain.Classified, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Classified{Intent: domain.IntentHelp}, nil
	}

	resp, err := c.provider.Chat(ctx, domain.ChatRequest{
		System:    instruction,
		Messages:  []domain.Message{{Role: "user", Content: text}},
		Model:     c.model,
		MaxTokens: c.maxTokens,
		JSON:      true,
	})
	if err != nil {
		return domain.Classified{}, fmt.Errorf("classify: %w", err)
	}

	out, err := Parse(resp.Content, text)
	if err != nil {
		c.logger.Warn("classifier returned malformed output", "provider", c.provider.Name(), "content", truncate(resp.Content, 200))
		return domain.Classified{}, err
	}
	c.logger.Debug("classified", "intent", out.Intent, "payload_len", len(out.Payload))
	return out, nil
}

// Parse extracts the classification from a raw model answer. original is
// used as payload when a non-help tag comes back without content.
func Parse(raw, original string) (domain.Classified, error) {
	obj := extractObject(raw)
	if obj == "" || !gjson.Valid(obj) {
		return domain.Classified{}, fmt.Errorf("%w: %q", ErrMalformedResponse, truncate(raw, 80))
	}
	res := gjson.Parse(obj)
	if !res.IsObject() {
		return domain.Classified{}, fmt.Errorf("%w: not an object", ErrMalformedResponse)
	}

	tag := firstString(res, "tipo", "intent", "type")
	payload := strings.TrimSpace(firstString(res, "conteudo", "payload", "content"))

	intent, ok := aliases[strings.ToLower(strings.TrimSpace(tag))]
	if !ok {
		intent = domain.ParseIntent(tag)
	}
	if intent == domain.IntentHelp {
		return domain.Classified{Intent: domain.IntentHelp}, nil
	}
	if payload == "" {
		payload = strings.TrimSpace(original)
	}
	return domain.Classified{Intent: intent, Payload: payload}, nil
}

func firstString(res gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := res.Get(k); v.Exists() && v.Type == gjson.String {
			return v.String()
		}
	}
	return ""
}

// extractObject strips code fences and returns the text between the first
// '{' and the last '}'.
func extractObject(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

var mentionPattern = regexp.MustCompile(`@\d{6,}`)

// StripMentions removes "@<digits>" mention tokens and collapses whitespace.
func StripMentions(text string) string {
	return strings.Join(strings.Fields(mentionPattern.ReplaceAllString(text, " ")), " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
