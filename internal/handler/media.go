package handler

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"wagate/internal/domain"
)

// User-facing apologies. Media handlers never return an error.
const (
	stickerFailed = "😕 Desculpe, não consegui criar a figurinha agora. Tente novamente em instantes."
	imageFailed   = "😕 Desculpe, não consegui gerar a imagem agora. Tente novamente em instantes."
	audioFailed   = "😕 Desculpe, não consegui gerar o áudio agora. Tente novamente em instantes."
	missingText   = "Preciso de um texto para isso. Exemplo: *figurinha bom dia*"
)

// maxStickerRunes bounds sticker text; longer input is cut with an ellipsis.
const maxStickerRunes = 60

type Sticker struct {
	renderer domain.StickerRenderer
	logger   *slog.Logger
}

func NewSticker(r domain.StickerRenderer, logger *slog.Logger) *Sticker {
	return &Sticker{renderer: r, logger: logger}
}

func (s *Sticker) Intent() domain.Intent { return domain.IntentSticker }

func (s *Sticker) Handle(ctx context.Context, payload string) (domain.Reply, error) {
	text := strings.TrimSpace(payload)
	if text == "" {
		return domain.TextReply(missingText), nil
	}
	if utf8.RuneCountInString(text) > maxStickerRunes {
		text = string([]rune(text)[:maxStickerRunes-1]) + "…"
	}
	m, err := s.renderer.Render(ctx, text)
	if err != nil {
		s.logger.Error("sticker render failed", "err", err)
		return domain.TextReply(stickerFailed), nil
	}
	m.FileName = "figurinha.png"
	return domain.Reply{Media: &m}, nil
}

type Image struct {
	generator domain.ImageGenerator
	logger    *slog.Logger
}

func NewImage(g domain.ImageGenerator, logger *slog.Logger) *Image {
	return &Image{generator: g, logger: logger}
}

func (i *Image) Intent() domain.Intent { return domain.IntentImage }

func (i *Image) Handle(ctx context.Context, payload string) (domain.Reply, error) {
	prompt := strings.TrimSpace(payload)
	if prompt == "" {
		return domain.TextReply(missingText), nil
	}
	m, err := i.generator.Generate(ctx, prompt)
	if err != nil {
		i.logger.Error("image generation failed", "err", err)
		return domain.TextReply(imageFailed), nil
	}
	if m.FileName == "" {
		m.FileName = "imagem.png"
	}
	m.Caption = prompt
	return domain.Reply{Media: &m}, nil
}

type Audio struct {
	synth  domain.SpeechSynthesizer
	logger *slog.Logger
}

func NewAudio(s domain.SpeechSynthesizer, logger *slog.Logger) *Audio {
	return &Audio{synth: s, logger: logger}
}

func (a *Audio) Intent() domain.Intent { return domain.IntentAudio }

func (a *Audio) Handle(ctx context.Context, payload string) (domain.Reply, error) {
	text := strings.TrimSpace(payload)
	if text == "" {
		return domain.TextReply(missingText), nil
	}
	m, err := a.synth.Synthesize(ctx, text)
	if err != nil {
		a.logger.Error("speech synthesis failed", "err", err)
		return domain.TextReply(audioFailed), nil
	}
	return domain.Reply{Media: &m}, nil
}
