package status

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestRecord_Initial(t *testing.T) {
	r := New()
	if r.Ready() {
		t.Fatal("new record must not be ready")
	}
	if r.State() != StateInitializing {
		t.Fatalf("expected initializing, got %s", r.State())
	}
	if r.QR() != "" || r.BotNumber() != "" {
		t.Fatal("expected empty qr and bot number")
	}
}

func TestRecord_Lifecycle(t *testing.T) {
	r := New()

	r.SetQR("data:image/png;base64,AAAA")
	if r.State() != StateQR || r.QR() == "" || r.Ready() {
		t.Fatalf("unexpected qr state: %+v", r.Snapshot())
	}

	r.SetReady("5511999999999")
	if !r.Ready() || r.QR() != "" || r.BotNumber() != "5511999999999" {
		t.Fatalf("unexpected ready state: %+v", r.Snapshot())
	}

	r.SetDisconnected("stream error")
	if r.Ready() || r.State() != StateDisconnected {
		t.Fatalf("unexpected disconnected state: %+v", r.Snapshot())
	}
	if r.Snapshot().Reason != "stream error" {
		t.Fatalf("reason not kept: %+v", r.Snapshot())
	}

	r.SetReconnecting(3)
	if r.Snapshot().Reconnects != 3 {
		t.Fatalf("expected 3 reconnects, got %d", r.Snapshot().Reconnects)
	}

	r.SetFailed("gave up")
	if r.State() != StateFailed || r.Ready() {
		t.Fatalf("unexpected failed state: %+v", r.Snapshot())
	}
}

func TestRecord_ConcurrentReaders(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = r.Snapshot()
				_ = r.Ready()
			}
		}()
	}
	for j := 0; j < 200; j++ {
		if j%2 == 0 {
			r.SetReady("1")
		} else {
			r.SetDisconnected("x")
		}
	}
	wg.Wait()
}

func TestQRDataURL(t *testing.T) {
	url, err := QRDataURL("2@abc,def,ghi")
	if err != nil {
		t.Fatalf("QRDataURL: %v", err)
	}
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Fatalf("unexpected prefix: %.40s", url)
	}
}

func TestPrintQR(t *testing.T) {
	var buf bytes.Buffer
	PrintQR(&buf, "2@abc")
	if buf.Len() == 0 {
		t.Fatal("expected terminal output")
	}
}
