package httpapi

import (
	_ "embed"
	"html/template"
	"net/http"
	"time"
)

// brTimeLayout renders times the way pt-BR locales print them.
const brTimeLayout = "02/01/2006, 15:04:05"

//go:embed qrcode.html
var qrcodeHTML string

var qrcodePage = template.Must(template.New("qrcode").Parse(qrcodeHTML))

type qrcodeData struct {
	BotName   string
	Ready     bool
	BotNumber string
	QR        template.URL
	Refresh   int
}

func (s *Server) horario() string {
	return s.now().In(s.cfg.Location).Format(brTimeLayout)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	state := "Desconectado ❌"
	if s.cfg.Status.Ready() {
		state = "Conectado ✅"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bot":     s.cfg.BotName,
		"status":  state,
		"horario": s.horario(),
		"rotas": map[string]string{
			"GET /qrcode":        "Ver QR Code para conectar",
			"GET /status":        "Estado da sessão",
			"GET /health":        "Verificação de saúde",
			"POST /enviar":       "Enviar mensagem (precisa de x-api-key no header)",
			"POST /send-message": "Enviar mensagem, opcionalmente gerada a partir de um prompt",
			"POST /enviar-grupo": "Enviar mensagem para um grupo pelo nome",
			"GET /grupos":        "Listar grupos",
			"POST /check-number": "Verificar se um número tem WhatsApp",
			"POST /send-bulk":    "Enviar a mesma mensagem para vários números",
		},
		"exemplo": map[string]any{
			"url":    "/enviar",
			"method": "POST",
			"headers": map[string]string{
				"x-api-key":    "sua-chave",
				"Content-Type": "application/json",
			},
			"body": map[string]string{"numero": "11999999999", "mensagem": "Teste"},
		},
	})
}

func (s *Server) handleQRCode(w http.ResponseWriter, r *http.Request) {
	data := qrcodeData{
		BotName:   s.cfg.BotName,
		Ready:     s.cfg.Status.Ready(),
		BotNumber: s.cfg.Status.BotNumber(),
		QR:        template.URL(s.cfg.Status.QR()),
	}
	if !data.Ready {
		data.Refresh = int(s.cfg.QRRefresh / time.Second)
		if data.Refresh < 1 {
			data.Refresh = 1
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := qrcodePage.Execute(w, data); err != nil {
		s.logger.Error("render qrcode page", "err", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.cfg.Status.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"botStatus":  snap.State,
		"isReady":    snap.Ready,
		"botNumber":  snap.BotNumber,
		"hasQr":      snap.HasQR,
		"reason":     snap.Reason,
		"since":      snap.Since.UTC().Format(time.RFC3339),
		"reconnects": snap.Reconnects,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
