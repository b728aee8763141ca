// Package dispatch consumes transport events and answers inbound messages.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"wagate/internal/domain"
	"wagate/internal/handler"
	"wagate/internal/intent"
	"wagate/internal/metrics"
	"wagate/internal/phone"
)

// GenericFailure is the reply for classifier errors, handler errors and panics.
const GenericFailure = "❌ Desculpe, ocorreu um erro ao processar sua mensagem. Tente novamente em instantes."

const (
	approvalYes     = "✅ Obrigado! Sua aprovação foi registrada."
	approvalNo      = "👍 Entendido. Sua recusa foi registrada."
	approvalFailed  = "❌ Não consegui registrar sua resposta agora. Tente novamente em instantes."
	statusBroadcast = "status@broadcast"
	failureSendWait = 30 * time.Second
)

// Reactions.
const (
	reactWorking = "⏳"
	reactDone    = "✅"
	reactFailed  = "❌"
)

// Outcome is the terminal state of one message.
type Outcome string

const (
	OutcomeIgnored          Outcome = "ignored"
	OutcomeApproval         Outcome = "approval"
	OutcomeReplied          Outcome = "replied"
	OutcomeRepliedWithError Outcome = "replied-with-error"
	OutcomeSendFailed       Outcome = "send-failed"
)

type Classifier interface {
	Classify(ctx context.Context, text string) (domain.Classified, error)
}

// Notifier forwards approval replies.
type Notifier interface {
	Notify(ctx context.Context, phoneNumber string, approved bool) error
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio domain.Media) (string, error)
}

type DispatcherConfig struct {
	Transport  domain.Transport
	Classifier Classifier // nil: every message gets the help reply
	Handlers   *handler.Registry
	Notifier   Notifier    // nil: approvals are classified like any text
	Transcribe Transcriber // nil: voice notes without text are ignored
	Limiter    *RateLimiter
	Metrics    *metrics.Metrics
	BotIDs     func() []string // the bot's own ids (number and LID), for mention checks

	ReactOnReceive  bool
	RespondInGroups bool
	Timeout         time.Duration // per message; zero disables
	Logger          *slog.Logger
}

// Dispatcher runs one message through
// received → classifying → handling → replied, or
// received → classifying → failed → replied-with-error.
type Dispatcher struct {
	transport       domain.Transport
	classifier      Classifier
	handlers        *handler.Registry
	notifier        Notifier
	transcriber     Transcriber
	limiter         *RateLimiter
	metrics         *metrics.Metrics
	botIDs          func() []string
	react           bool
	respondInGroups bool
	timeout         time.Duration
	logger          *slog.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.BotIDs == nil {
		cfg.BotIDs = func() []string { return nil }
	}
	return &Dispatcher{
		transport:       cfg.Transport,
		classifier:      cfg.Classifier,
		handlers:        cfg.Handlers,
		notifier:        cfg.Notifier,
		transcriber:     cfg.Transcribe,
		limiter:         cfg.Limiter,
		metrics:         cfg.Metrics,
		botIDs:          cfg.BotIDs,
		react:           cfg.ReactOnReceive,
		respondInGroups: cfg.RespondInGroups,
		timeout:         cfg.Timeout,
		logger:          cfg.Logger,
	}
}

// Handle processes msg and sends at most one reply to msg.Chat.
func (d *Dispatcher) Handle(ctx context.Context, msg domain.InboundMessage) (outcome Outcome) {
	if reason := d.ignoreReason(msg); reason != "" {
		d.logger.Debug("message ignored", "id", msg.ID, "chat", msg.Chat, "reason", reason)
		return OutcomeIgnored
	}
	d.metrics.MessageReceived(msg.IsGroup)

	log := d.logger.With("id", msg.ID, "chat", msg.Chat, "sender", msg.Sender)
	log.Info("message received", "group", msg.IsGroup, "body_len", len(msg.Body))

	if d.notifier != nil && !msg.IsGroup {
		if approved, ok := parseApproval(msg.Body); ok {
			return d.handleApproval(ctx, log, msg, approved)
		}
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	tag := "unknown"
	defer func() {
		if r := recover(); r != nil {
			log.Error("handler panic", "panic", r, "stack", string(debug.Stack()))
			d.metrics.Handled(tag, time.Since(start), true)
			outcome = d.fail(ctx, log, msg)
		}
	}()

	if d.react {
		d.reactTo(ctx, log, msg, reactWorking)
	}

	// classifying
	classified, err := d.classify(ctx, msg)
	if err != nil {
		log.Error("classification failed", "err", err)
		d.metrics.Handled(tag, time.Since(start), true)
		return d.fail(ctx, log, msg)
	}
	tag = string(classified.Intent)
	d.metrics.Intent(tag)
	log.Info("message classified", "intent", classified.Intent)

	// handling
	h := d.handlers.Lookup(classified.Intent)
	if h == nil {
		log.Error("no handler registered", "intent", classified.Intent)
		d.metrics.Handled(tag, time.Since(start), true)
		return d.fail(ctx, log, msg)
	}
	reply, err := h.Handle(ctx, classified.Payload)
	if err != nil {
		log.Error("handler failed", "intent", classified.Intent, "err", err)
		d.metrics.Handled(tag, time.Since(start), true)
		return d.fail(ctx, log, msg)
	}

	// replied
	if err := d.send(ctx, msg.Chat, reply); err != nil {
		log.Error("reply send failed", "intent", classified.Intent, "err", err)
		d.metrics.Handled(tag, time.Since(start), true)
		if d.react {
			d.reactTo(detached(ctx), log, msg, reactFailed)
		}
		return OutcomeSendFailed
	}
	d.metrics.Handled(tag, time.Since(start), false)
	if d.react {
		d.reactTo(ctx, log, msg, reactDone)
	}
	log.Info("reply sent", "intent", classified.Intent, "took", time.Since(start))
	return OutcomeReplied
}

func (d *Dispatcher) ignoreReason(msg domain.InboundMessage) string {
	switch {
	case msg.FromMe:
		return "from self"
	case msg.Chat == statusBroadcast:
		return "status broadcast"
	case strings.TrimSpace(msg.Body) == "" && (msg.Audio == nil || d.transcriber == nil):
		return "empty body"
	case msg.IsGroup && !d.respondInGroups:
		return "groups disabled"
	case msg.IsGroup && !msg.Mentioned(d.botIDs()...):
		return "group without mention"
	}
	return ""
}

func (d *Dispatcher) classify(ctx context.Context, msg domain.InboundMessage) (domain.Classified, error) {
	text := intent.StripMentions(msg.Body)
	if text == "" && msg.Audio != nil {
		transcript, err := d.transcriber.Transcribe(ctx, *msg.Audio)
		if err != nil {
			return domain.Classified{}, fmt.Errorf("transcribe voice note: %w", err)
		}
		text = transcript
	}
	if d.classifier == nil {
		return domain.Classified{Intent: domain.IntentHelp}, nil
	}
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, msg.Sender); err != nil {
			return domain.Classified{}, fmt.Errorf("rate limit: %w", err)
		}
	}
	return d.classifier.Classify(ctx, text)
}

func (d *Dispatcher) handleApproval(ctx context.Context, log *slog.Logger, msg domain.InboundMessage, approved bool) Outcome {
	number := phone.User(msg.Sender)
	text := approvalNo
	if approved {
		text = approvalYes
	}
	if err := d.notifier.Notify(ctx, number, approved); err != nil {
		log.Error("approval webhook failed", "approved", approved, "err", err)
		text = approvalFailed
	} else {
		log.Info("approval forwarded", "approved", approved)
	}
	if _, err := d.transport.SendText(ctx, msg.Chat, text); err != nil {
		log.Error("approval confirmation send failed", "err", err)
		return OutcomeSendFailed
	}
	return OutcomeApproval
}

// fail sends the generic failure reply. It uses a detached context so a
// per-message timeout does not also swallow the apology.
func (d *Dispatcher) fail(ctx context.Context, log *slog.Logger, msg domain.InboundMessage) Outcome {
	sendCtx, cancel := context.WithTimeout(detached(ctx), failureSendWait)
	defer cancel()
	if d.react {
		d.reactTo(sendCtx, log, msg, reactFailed)
	}
	if _, err := d.transport.SendText(sendCtx, msg.Chat, GenericFailure); err != nil {
		log.Error("failure reply send failed", "err", err)
		return OutcomeSendFailed
	}
	return OutcomeRepliedWithError
}

func (d *Dispatcher) send(ctx context.Context, to string, reply domain.Reply) error {
	if reply.Empty() {
		return fmt.Errorf("handler returned an empty reply")
	}
	if reply.Media == nil {
		_, err := d.transport.SendText(ctx, to, reply.Text)
		return err
	}
	m := *reply.Media
	if reply.Text != "" && m.Caption == "" {
		m.Caption = reply.Text
	}
	_, err := d.transport.SendMedia(ctx, to, m)
	return err
}

func (d *Dispatcher) reactTo(ctx context.Context, log *slog.Logger, msg domain.InboundMessage, emoji string) {
	if err := d.transport.React(ctx, msg, emoji); err != nil {
		log.Debug("reaction failed", "emoji", emoji, "err", err)
	}
}

// parseApproval recognizes a bare SIM / NÃO / NAO reply.
func parseApproval(body string) (approved, ok bool) {
	switch strings.ToUpper(strings.TrimSpace(body)) {
	case "SIM":
		return true, true
	case "NÃO", "NAO":
		return false, true
	}
	return false, false
}

func detached(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
