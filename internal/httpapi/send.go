package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"wagate/internal/domain"
	"wagate/internal/phone"
)

const composeSystem = `Você é %s, um assistente que escreve mensagens de WhatsApp em português do Brasil.
Responda somente com o texto final da mensagem, sem aspas, sem títulos e sem explicações.`

var errNoProvider = errors.New("nenhum provedor de IA configurado")

type enviarRequest struct {
	Numero   string `json:"numero"`
	Mensagem string `json:"mensagem"`
}

func (s *Server) handleEnviar(w http.ResponseWriter, r *http.Request) {
	var req enviarRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Numero = strings.TrimSpace(req.Numero)
	switch {
	case req.Numero == "":
		writeError(w, http.StatusBadRequest, required("numero"))
		return
	case strings.TrimSpace(req.Mensagem) == "":
		writeError(w, http.StatusBadRequest, required("mensagem"))
		return
	}
	if !s.ensureReady(w) {
		return
	}

	to := s.format(req.Numero)
	if _, err := s.cfg.Transport.SendText(r.Context(), to, req.Mensagem); err != nil {
		s.cfg.Metrics.Send("enviar", err)
		s.sendFailed(w, "Falha ao enviar mensagem", to, err)
		return
	}
	s.cfg.Metrics.Send("enviar", nil)
	s.logger.Info("message sent", "route", "enviar", "to", to)

	writeJSON(w, http.StatusOK, map[string]any{
		"sucesso":  true,
		"numero":   to,
		"mensagem": req.Mensagem,
		"horario":  s.horario(),
	})
}

type sendMessageRequest struct {
	Number          string `json:"number"`
	Numero          string `json:"numero"`
	Message         string `json:"message"`
	Mensagem        string `json:"mensagem"`
	Prompt          string `json:"prompt"`
	ChecklistCodigo string `json:"checklistCodigo"`
}

func (r sendMessageRequest) number() string {
	return strings.TrimSpace(firstNonEmpty(r.Number, r.Numero))
}

func (r sendMessageRequest) message() string {
	return strings.TrimSpace(firstNonEmpty(r.Message, r.Mensagem))
}

// handleSendMessage sends a message to one number. With a prompt the text
// is generated first, using any given message as context.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	number, message, prompt := req.number(), req.message(), strings.TrimSpace(req.Prompt)
	switch {
	case number == "":
		writeError(w, http.StatusBadRequest, required("number"))
		return
	case message == "" && prompt == "":
		writeError(w, http.StatusBadRequest, `Campo "message" ou "prompt" é obrigatório`)
		return
	}
	if !s.ensureReady(w) {
		return
	}

	text := message
	if prompt != "" {
		generated, err := s.compose(r.Context(), prompt, message)
		if err != nil {
			s.logger.Error("message generation failed", "err", err)
			writeFailure(w, "Falha ao gerar mensagem", err)
			return
		}
		text = generated
	}
	code := strings.TrimSpace(req.ChecklistCodigo)
	if code != "" {
		text += "\n\n📋 Checklist: " + code
	}

	to := s.format(number)
	if _, err := s.cfg.Transport.SendText(r.Context(), to, text); err != nil {
		s.cfg.Metrics.Send("send-message", err)
		s.sendFailed(w, "Falha ao enviar mensagem", to, err)
		return
	}
	s.cfg.Metrics.Send("send-message", nil)
	s.logger.Info("message sent", "route", "send-message", "to", to, "generated", prompt != "")

	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"number":          to,
		"message":         text,
		"checklistCodigo": code,
		"timestamp":       s.now().UTC().Format(time.RFC3339),
	})
}

type enviarGrupoRequest struct {
	Grupo    string `json:"grupo"`
	Mensagem string `json:"mensagem"`
}

func (s *Server) handleEnviarGrupo(w http.ResponseWriter, r *http.Request) {
	var req enviarGrupoRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Grupo = strings.TrimSpace(req.Grupo)
	switch {
	case req.Grupo == "":
		writeError(w, http.StatusBadRequest, required("grupo"))
		return
	case strings.TrimSpace(req.Mensagem) == "":
		writeError(w, http.StatusBadRequest, required("mensagem"))
		return
	}
	if !s.ensureReady(w) {
		return
	}

	groups, err := s.cfg.Transport.Groups(r.Context())
	if err != nil {
		s.sendFailed(w, "Falha ao listar grupos", "", err)
		return
	}
	group, ok := findGroup(groups, req.Grupo)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"erro":     fmt.Sprintf("Grupo %q não encontrado", req.Grupo),
			"sugestao": "Use GET /grupos para ver os grupos disponíveis",
		})
		return
	}

	if _, err := s.cfg.Transport.SendText(r.Context(), group.ID, req.Mensagem); err != nil {
		s.cfg.Metrics.Send("enviar-grupo", err)
		s.sendFailed(w, "Falha ao enviar mensagem", group.ID, err)
		return
	}
	s.cfg.Metrics.Send("enviar-grupo", nil)
	s.logger.Info("message sent", "route", "enviar-grupo", "group", group.Name)

	writeJSON(w, http.StatusOK, map[string]any{
		"sucesso":  true,
		"grupo":    group.Name,
		"id":       group.ID,
		"mensagem": req.Mensagem,
		"horario":  s.horario(),
	})
}

// findGroup returns the first group whose name contains query, ignoring case.
func findGroup(groups []domain.Group, query string) (domain.Group, bool) {
	q := strings.ToLower(query)
	for _, g := range groups {
		if strings.Contains(strings.ToLower(g.Name), q) {
			return g, true
		}
	}
	return domain.Group{}, false
}

func (s *Server) handleGrupos(w http.ResponseWriter, r *http.Request) {
	if !s.ensureReady(w) {
		return
	}
	groups, err := s.cfg.Transport.Groups(r.Context())
	if err != nil {
		s.sendFailed(w, "Falha ao listar grupos", "", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":  len(groups),
		"grupos": groups,
	})
}

type checkNumberRequest struct {
	Number string `json:"number"`
	Numero string `json:"numero"`
}

func (s *Server) handleCheckNumber(w http.ResponseWriter, r *http.Request) {
	var req checkNumberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	number := strings.TrimSpace(firstNonEmpty(req.Number, req.Numero))
	if number == "" {
		writeError(w, http.StatusBadRequest, required("number"))
		return
	}
	if !s.ensureReady(w) {
		return
	}

	formatted := s.format(number)
	jid, exists, err := s.cfg.Transport.Lookup(r.Context(), formatted)
	if err != nil {
		s.sendFailed(w, "Falha ao verificar número", formatted, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"number":    number,
		"formatted": formatted,
		"exists":    exists,
		"jid":       jid,
	})
}

// ensureReady writes 503 and returns false when the session is not ready.
func (s *Server) ensureReady(w http.ResponseWriter) bool {
	if s.cfg.Status.Ready() {
		return true
	}
	writeError(w, http.StatusServiceUnavailable, msgNotReady)
	return false
}

func (s *Server) sendFailed(w http.ResponseWriter, msg, to string, err error) {
	if errors.Is(err, domain.ErrNotReady) {
		writeError(w, http.StatusServiceUnavailable, msgNotReady)
		return
	}
	s.logger.Error(msg, "to", to, "err", err)
	writeFailure(w, msg, err)
}

// format normalizes a number, warning when it has an unexpected shape.
func (s *Server) format(number string) string {
	id, ok := phone.Format(number)
	if !ok {
		s.logger.Warn("number with unexpected format", "number", number, "formatted", id)
	}
	return id
}

// compose asks the provider for a message following prompt.
func (s *Server) compose(ctx context.Context, prompt, hint string) (string, error) {
	if s.cfg.Provider == nil {
		return "", errNoProvider
	}
	content := prompt
	if hint != "" {
		content = "Contexto:\n" + hint + "\n\nInstrução:\n" + prompt
	}
	resp, err := s.cfg.Provider.Chat(ctx, domain.ChatRequest{
		System:      fmt.Sprintf(composeSystem, s.cfg.BotName),
		Messages:    []domain.Message{{Role: "user", Content: content}},
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("compose: %w", err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", errors.New("compose: empty response")
	}
	return text, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
