package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	m := New()
	m.MessageReceived(false)
	m.MessageReceived(true)
	m.MessageReceived(true)
	m.Send("enviar", nil)
	m.Send("enviar", errors.New("x"))
	m.Handled("joke", time.Second, true)
	m.SessionReady(true)

	if got := testutil.ToFloat64(m.messagesReceived.WithLabelValues("group")); got != 2 {
		t.Fatalf("group messages = %v", got)
	}
	if got := testutil.ToFloat64(m.sends.WithLabelValues("enviar", "error")); got != 1 {
		t.Fatalf("failed sends = %v", got)
	}
	if got := testutil.ToFloat64(m.handlerFailures.WithLabelValues("joke")); got != 1 {
		t.Fatalf("joke failures = %v", got)
	}
	if got := testutil.ToFloat64(m.sessionReady); got != 1 {
		t.Fatalf("session ready = %v", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ReconnectAttempt()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "wagate_reconnect_attempts_total 1") {
		t.Fatalf("exposition missing counter:\n%s", body)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.MessageReceived(true)
	m.Handled("chat", time.Millisecond, false)
	m.HTTPRequest("/", 200)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("expected 404 from nil metrics, got %d", rec.Code)
	}
}
