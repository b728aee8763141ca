package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type bulkRequest struct {
	Numbers  []string `json:"numbers"`
	Message  string   `json:"message"`
	Mensagem string   `json:"mensagem"`
	Prompt   string   `json:"prompt"`
}

type bulkResult struct {
	Number    string `json:"number"`
	Formatted string `json:"formatted"`
	Status    string `json:"status"` // sent | failed
	Error     string `json:"error,omitempty"`
}

// handleSendBulk sends one message to every number in order, pausing
// BulkDelay between sends. A failed number does not stop the batch.
func (s *Server) handleSendBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	numbers := make([]string, 0, len(req.Numbers))
	for _, n := range req.Numbers {
		if n = strings.TrimSpace(n); n != "" {
			numbers = append(numbers, n)
		}
	}
	message, prompt := strings.TrimSpace(firstNonEmpty(req.Message, req.Mensagem)), strings.TrimSpace(req.Prompt)
	switch {
	case len(numbers) == 0:
		writeError(w, http.StatusBadRequest, required("numbers"))
		return
	case len(numbers) > s.cfg.BulkMax:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Máximo de %d números por envio", s.cfg.BulkMax))
		return
	case message == "" && prompt == "":
		writeError(w, http.StatusBadRequest, `Campo "message" ou "prompt" é obrigatório`)
		return
	}
	if !s.ensureReady(w) {
		return
	}

	ctx := r.Context()
	text := message
	if prompt != "" {
		generated, err := s.compose(ctx, prompt, message)
		if err != nil {
			s.logger.Error("message generation failed", "err", err)
			writeFailure(w, "Falha ao gerar mensagem", err)
			return
		}
		text = generated
	}

	id := uuid.NewString()
	log := s.logger.With("bulk_id", id)
	log.Info("bulk send started", "total", len(numbers))

	results := make([]bulkResult, 0, len(numbers))
	sent := 0
	for i, number := range numbers {
		res := bulkResult{Number: number, Formatted: s.format(number)}
		_, err := s.cfg.Transport.SendText(ctx, res.Formatted, text)
		s.cfg.Metrics.Send("send-bulk", err)
		if err != nil {
			res.Status = "failed"
			res.Error = err.Error()
			log.Warn("bulk send failed", "to", res.Formatted, "err", err)
		} else {
			res.Status = "sent"
			sent++
		}
		results = append(results, res)

		if i < len(numbers)-1 {
			// Remaining sends still run and fail fast on a cancelled context.
			_ = s.sleep(ctx, s.cfg.BulkDelay)
		}
	}
	log.Info("bulk send finished", "sent", sent, "failed", len(numbers)-sent)

	writeJSON(w, http.StatusOK, map[string]any{
		"id":      id,
		"total":   len(numbers),
		"sent":    sent,
		"failed":  len(numbers) - sent,
		"message": text,
		"results": results,
	})
}
