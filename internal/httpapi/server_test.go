package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"wagate/internal/domain"
	"wagate/internal/metrics"
	"wagate/internal/status"
)

const testKey = "chave-de-teste"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type sentText struct {
	to, text string
}

type fakeTransport struct {
	mu      sync.Mutex
	sent    []sentText
	failFor map[string]error
	groups  []domain.Group
	known   map[string]string
}

func (f *fakeTransport) SendText(_ context.Context, to, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentText{to, text})
	if err := f.failFor[to]; err != nil {
		return "", err
	}
	return "MSGID", nil
}

func (f *fakeTransport) Lookup(_ context.Context, number string) (string, bool, error) {
	jid, ok := f.known[number]
	return jid, ok, nil
}

func (f *fakeTransport) Groups(context.Context) ([]domain.Group, error) {
	return f.groups, nil
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeProvider struct {
	content string
	err     error
	last    domain.ChatRequest
}

func (p *fakeProvider) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	p.last = req
	if p.err != nil {
		return nil, p.err
	}
	return &domain.ChatResponse{Content: p.content}, nil
}
func (p *fakeProvider) Name() string                  { return "fake" }
func (p *fakeProvider) Healthy(context.Context) error { return nil }

type fixture struct {
	srv       *Server
	transport *fakeTransport
	status    *status.Record
	provider  *fakeProvider
	sleeps    []time.Duration
}

func newFixture(t *testing.T, ready bool) *fixture {
	t.Helper()
	f := &fixture{
		transport: &fakeTransport{
			failFor: map[string]error{},
			known:   map[string]string{},
		},
		status:   status.New(),
		provider: &fakeProvider{content: "Mensagem gerada"},
	}
	if ready {
		f.status.SetReady("5511900000000")
	}
	f.srv = New(Config{
		APIKey:      testKey,
		BotName:     "Bot Teste",
		Transport:   f.transport,
		Status:      f.status,
		Provider:    f.provider,
		Metrics:     metrics.New(),
		MetricsPath: "/metrics",
		BulkDelay:   2 * time.Second,
		Logger:      testLogger(),
	})
	f.srv.sleep = func(_ context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	}
	f.srv.now = func() time.Time { return time.Date(2026, 3, 5, 15, 4, 5, 0, time.UTC) }
	return f
}

func (f *fixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) post(path, body string) *httptest.ResponseRecorder {
	return f.do(http.MethodPost, path, body, map[string]string{"x-api-key": testKey})
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

// --- Public routes ---

func TestHealth(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK || decode(t, rec)["status"] != "ok" {
		t.Fatalf("unexpected health: %d %s", rec.Code, rec.Body.String())
	}
}

func TestIndex_ReportsStatusAndLocalTime(t *testing.T) {
	f := newFixture(t, true)
	body := decode(t, f.do(http.MethodGet, "/", "", nil))
	if body["bot"] != "Bot Teste" {
		t.Fatalf("bot = %v", body["bot"])
	}
	if body["status"] != "Conectado ✅" {
		t.Fatalf("status = %v", body["status"])
	}
	// 15:04 UTC is 12:04 in São Paulo.
	if body["horario"] != "05/03/2026, 12:04:05" {
		t.Fatalf("horario = %v", body["horario"])
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t, true)
	body := decode(t, f.do(http.MethodGet, "/status", "", nil))
	if body["isReady"] != true || body["botNumber"] != "5511900000000" || body["botStatus"] != "ready" {
		t.Fatalf("unexpected status: %v", body)
	}
}

func TestStatus_ReportsReasonAndReconnects(t *testing.T) {
	f := newFixture(t, false)
	f.status.SetDisconnected("stream error")
	f.status.SetReconnecting(2)

	body := decode(t, f.do(http.MethodGet, "/status", "", nil))
	if body["botStatus"] != "reconnecting" || body["isReady"] != false {
		t.Fatalf("unexpected status: %v", body)
	}
	if body["reason"] != "stream error" || body["reconnects"] != float64(2) {
		t.Fatalf("reason/reconnects lost: %v", body)
	}
	if since, _ := body["since"].(string); since == "" {
		t.Fatalf("missing since: %v", body)
	}
}

func TestQRCodePage(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(http.MethodGet, "/qrcode", "", nil)
	page := rec.Body.String()
	if !strings.Contains(page, "Iniciando bot...") || !strings.Contains(page, `http-equiv="refresh"`) {
		t.Fatalf("expected starting page, got %s", page)
	}

	f.status.SetQR("data:image/png;base64,iVBORw0KGgo=")
	page = f.do(http.MethodGet, "/qrcode", "", nil).Body.String()
	if !strings.Contains(page, `src="data:image/png;base64,iVBORw0KGgo="`) {
		t.Fatalf("expected qr image, got %s", page)
	}

	f.status.SetReady("5511900000000")
	page = f.do(http.MethodGet, "/qrcode", "", nil).Body.String()
	if !strings.Contains(page, "Bot conectado e pronto!") {
		t.Fatalf("expected connected page, got %s", page)
	}
	if strings.Contains(page, `http-equiv="refresh"`) {
		t.Fatal("connected page should not refresh")
	}
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t, false)
	f.do(http.MethodGet, "/health", "", nil)
	rec := f.do(http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "wagate_http_requests_total") {
		t.Fatalf("unexpected metrics output: %d", rec.Code)
	}
}

// --- Auth ---

func TestAuth_WrongKeyRejectedBeforeBody(t *testing.T) {
	f := newFixture(t, true)
	for _, body := range []string{`{"numero":"11999999999","mensagem":"oi"}`, `{not json`} {
		rec := f.do(http.MethodPost, "/send-message", body, map[string]string{"x-api-key": "errada"})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for %q, got %d", body, rec.Code)
		}
		if decode(t, rec)["erro"] != "API Key inválida" {
			t.Fatalf("unexpected body: %s", rec.Body.String())
		}
	}
	if f.transport.sentCount() != 0 {
		t.Fatal("nothing should be sent")
	}
}

func TestAuth_BearerAccepted(t *testing.T) {
	f := newFixture(t, true)
	rec := f.do(http.MethodGet, "/grupos", "", map[string]string{"Authorization": "Bearer " + testKey})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuth_MissingKey(t *testing.T) {
	f := newFixture(t, true)
	if rec := f.do(http.MethodGet, "/grupos", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

// --- /enviar ---

func TestEnviar_Success(t *testing.T) {
	f := newFixture(t, true)
	rec := f.post("/enviar", `{"numero":"(11) 99999-9999","mensagem":"Teste"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["sucesso"] != true || body["numero"] != "5511999999999@c.us" || body["mensagem"] != "Teste" {
		t.Fatalf("unexpected body: %v", body)
	}
	if body["horario"] == "" {
		t.Fatal("missing horario")
	}
	if f.transport.sent[0].to != "5511999999999@c.us" {
		t.Fatalf("sent to %q", f.transport.sent[0].to)
	}
}

func TestEnviar_Validation(t *testing.T) {
	f := newFixture(t, true)
	tests := []struct {
		body string
		want string
	}{
		{`{"mensagem":"oi"}`, `Campo "numero" é obrigatório`},
		{`{"numero":"11999999999"}`, `Campo "mensagem" é obrigatório`},
		{`{"numero":11999999999,"mensagem":"oi"}`, "Campos devem ser strings"},
		{`{"numero":`, "JSON inválido"},
	}
	for _, tt := range tests {
		rec := f.post("/enviar", tt.body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tt.body, rec.Code)
		}
		if got := decode(t, rec)["erro"]; got != tt.want {
			t.Fatalf("%s: erro = %v, want %q", tt.body, got, tt.want)
		}
	}
}

func TestEnviar_SendFailure(t *testing.T) {
	f := newFixture(t, true)
	f.transport.failFor["5511999999999@c.us"] = errors.New("boom")
	rec := f.post("/enviar", `{"numero":"11999999999","mensagem":"oi"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["erro"] != "Falha ao enviar mensagem" || body["detalhes"] != "boom" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestEnviar_TransportNotReady(t *testing.T) {
	f := newFixture(t, true)
	f.transport.failFor["5511999999999@c.us"] = domain.ErrNotReady
	if rec := f.post("/enviar", `{"numero":"11999999999","mensagem":"oi"}`); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestBodyTooLarge(t *testing.T) {
	f := newFixture(t, true)
	big := `{"numero":"11999999999","mensagem":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	if rec := f.post("/enviar", big); rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

// --- /send-message ---

func TestSendMessage_Validation(t *testing.T) {
	f := newFixture(t, true)
	if rec := f.post("/send-message", `{"message":"oi"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing number: expected 400, got %d", rec.Code)
	}
	if rec := f.post("/send-message", `{"number":"11999999999"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing message and prompt: expected 400, got %d", rec.Code)
	}
}

func TestSendMessage_NotReady(t *testing.T) {
	f := newFixture(t, false)
	rec := f.post("/send-message", `{"number":"11999999999","message":"oi"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if f.transport.sentCount() != 0 {
		t.Fatal("nothing should be sent while not ready")
	}
}

func TestSendMessage_ValidationBeforeReadiness(t *testing.T) {
	f := newFixture(t, false)
	if rec := f.post("/send-message", `{"message":"oi"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSendMessage_PlainWithChecklist(t *testing.T) {
	f := newFixture(t, true)
	rec := f.post("/send-message", `{"numero":"11999999999","mensagem":"Olá","checklistCodigo":"CK-42"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["success"] != true || body["checklistCodigo"] != "CK-42" {
		t.Fatalf("unexpected body: %v", body)
	}
	if got := f.transport.sent[0].text; got != "Olá\n\n📋 Checklist: CK-42" {
		t.Fatalf("sent text %q", got)
	}
	if f.provider.last.System != "" {
		t.Fatal("provider should not be called without a prompt")
	}
}

func TestSendMessage_PromptGeneratesText(t *testing.T) {
	f := newFixture(t, true)
	rec := f.post("/send-message", `{"number":"11999999999","prompt":"lembrete de reunião","message":"amanhã 10h"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := f.transport.sent[0].text; got != "Mensagem gerada" {
		t.Fatalf("sent text %q", got)
	}
	content := f.provider.last.Messages[0].Content
	if !strings.Contains(content, "amanhã 10h") || !strings.Contains(content, "lembrete de reunião") {
		t.Fatalf("prompt and context should reach the provider: %q", content)
	}
}

func TestSendMessage_GenerationFailure(t *testing.T) {
	f := newFixture(t, true)
	f.provider.err = errors.New("quota")
	rec := f.post("/send-message", `{"number":"11999999999","prompt":"oi"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if decode(t, rec)["detalhes"] == nil {
		t.Fatal("expected detalhes")
	}
	if f.transport.sentCount() != 0 {
		t.Fatal("nothing should be sent")
	}
}

// --- Groups ---

func TestEnviarGrupo_CaseInsensitiveSubstring(t *testing.T) {
	f := newFixture(t, true)
	f.transport.groups = []domain.Group{
		{ID: "1@g.us", Name: "Trabalho"},
		{ID: "2@g.us", Name: "Família Silva"},
		{ID: "3@g.us", Name: "Família Souza"},
	}
	rec := f.post("/enviar-grupo", `{"grupo":"FAMÍLIA","mensagem":"oi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if f.transport.sent[0].to != "2@g.us" {
		t.Fatalf("expected first match, sent to %q", f.transport.sent[0].to)
	}
}

func TestEnviarGrupo_NotFound(t *testing.T) {
	f := newFixture(t, true)
	f.transport.groups = []domain.Group{{ID: "1@g.us", Name: "Trabalho"}}
	rec := f.post("/enviar-grupo", `{"grupo":"futebol","mensagem":"oi"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["erro"] == nil || body["sugestao"] == nil {
		t.Fatalf("expected erro and sugestao, got %v", body)
	}
}

func TestGrupos(t *testing.T) {
	f := newFixture(t, true)
	f.transport.groups = []domain.Group{{ID: "1@g.us", Name: "Trabalho", Participants: 7}}
	rec := f.do(http.MethodGet, "/grupos", "", map[string]string{"x-api-key": testKey})
	var out struct {
		Total  int            `json:"total"`
		Grupos []domain.Group `json:"grupos"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Total != 1 || out.Grupos[0].Participants != 7 || out.Grupos[0].Name != "Trabalho" {
		t.Fatalf("unexpected groups: %+v", out)
	}
}

// --- /check-number ---

func TestCheckNumber(t *testing.T) {
	f := newFixture(t, true)
	f.transport.known["5511999999999@c.us"] = "5511999999999@s.whatsapp.net"

	body := decode(t, f.post("/check-number", `{"number":"11999999999"}`))
	if body["exists"] != true || body["jid"] != "5511999999999@s.whatsapp.net" || body["formatted"] != "5511999999999@c.us" {
		t.Fatalf("unexpected body: %v", body)
	}

	body = decode(t, f.post("/check-number", `{"number":"11988888888"}`))
	if body["exists"] != false {
		t.Fatalf("expected unknown number, got %v", body)
	}
}

// --- /send-bulk ---

func TestSendBulk_AttemptsEveryNumber(t *testing.T) {
	f := newFixture(t, true)
	f.transport.failFor["5511988888888@c.us"] = errors.New("not delivered")

	rec := f.post("/send-bulk", `{"numbers":["11999999999","11988888888","11977777777"],"message":"aviso"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		ID      string       `json:"id"`
		Total   int          `json:"total"`
		Sent    int          `json:"sent"`
		Failed  int          `json:"failed"`
		Results []bulkResult `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.ID == "" || out.Total != 3 || out.Sent != 2 || out.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", out)
	}
	if out.Results[1].Status != "failed" || out.Results[1].Error != "not delivered" {
		t.Fatalf("unexpected failed result: %+v", out.Results[1])
	}
	if f.transport.sentCount() != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.transport.sentCount())
	}
	if len(f.sleeps) != 2 || f.sleeps[0] != 2*time.Second {
		t.Fatalf("expected 2 pauses of 2s, got %v", f.sleeps)
	}
}

func TestSendBulk_Validation(t *testing.T) {
	f := newFixture(t, true)
	if rec := f.post("/send-bulk", `{"numbers":[],"message":"oi"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty numbers: expected 400, got %d", rec.Code)
	}
	if rec := f.post("/send-bulk", `{"numbers":["11999999999"]}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing message: expected 400, got %d", rec.Code)
	}
	many := `{"numbers":[` + strings.TrimSuffix(strings.Repeat(`"11999999999",`, 101), ",") + `],"message":"oi"}`
	if rec := f.post("/send-bulk", many); rec.Code != http.StatusBadRequest {
		t.Fatalf("too many numbers: expected 400, got %d", rec.Code)
	}
}

// --- Helpers ---

func TestFindGroup(t *testing.T) {
	groups := []domain.Group{{ID: "a", Name: "Equipe Vendas"}, {ID: "b", Name: "vendas SP"}}
	g, ok := findGroup(groups, "VENDAS")
	if !ok || g.ID != "a" {
		t.Fatalf("expected first match, got %+v %v", g, ok)
	}
	if _, ok := findGroup(groups, "compras"); ok {
		t.Fatal("unexpected match")
	}
}
