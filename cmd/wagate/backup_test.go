package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"wagate/internal/domain"
)

func TestMain(m *testing.M) {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	os.Exit(m.Run())
}

// --- Backup / restore ---

func TestBackupRestore_RoundTrip(t *testing.T) {
	src := t.TempDir()
	dbPath := filepath.Join(src, "session.db")
	cfgPath := filepath.Join(src, "config.json")
	writeFile(t, dbPath, "sqlite-bytes")
	writeFile(t, dbPath+"-wal", "wal-bytes")
	writeFile(t, cfgPath, `{"server":{"port":3000}}`)

	archive := filepath.Join(t.TempDir(), "backup.tar.gz")
	if err := createTarGz(archive, []string{dbPath, dbPath + "-wal", cfgPath}); err != nil {
		t.Fatalf("createTarGz: %v", err)
	}

	dst := t.TempDir()
	newDB := filepath.Join(dst, "data", "wagate.db")
	newCfg := filepath.Join(dst, "config.json")
	restored, err := extractTarGz(archive, newDB, newCfg)
	if err != nil {
		t.Fatalf("extractTarGz: %v", err)
	}
	if len(restored) != 3 {
		t.Fatalf("restored %d files, want 3: %v", len(restored), restored)
	}
	assertFile(t, newDB, "sqlite-bytes")
	assertFile(t, newDB+"-wal", "wal-bytes")
	assertFile(t, newCfg, `{"server":{"port":3000}}`)
}

func TestExtractTarGz_NotGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.tar.gz")
	writeFile(t, path, "not a gzip stream")
	if _, err := extractTarGz(path, "x.db", "config.json"); err == nil {
		t.Fatal("expected error for non-gzip input")
	}
}

func TestRestoreTarget(t *testing.T) {
	tests := []struct {
		name   string
		want   string
		wantOK bool
	}{
		{"config.json", "/cfg/config.json", true},
		{"config.yaml", "/cfg/config.json", true},
		{"session.db", "/data/wagate.db", true},
		{"session.db-wal", "/data/wagate.db-wal", true},
		{"session.db-shm", "/data/wagate.db-shm", true},
		{"notes.txt", "", false},
	}
	for _, tt := range tests {
		got, ok := restoreTarget(tt.name, "/data/wagate.db", "/cfg/config.json")
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("restoreTarget(%q) = (%q, %v), want (%q, %v)", tt.name, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestHumanSize(t *testing.T) {
	tests := map[int64]string{
		512:             "512 B",
		2048:            "2.0 KB",
		5 * 1024 * 1024: "5.0 MB",
	}
	for in, want := range tests {
		if got := humanSize(in); got != want {
			t.Errorf("humanSize(%d) = %q, want %q", in, got, want)
		}
	}
}

// --- Login ---

func TestWaitForPairing_Ready(t *testing.T) {
	events := make(chan domain.Event, 2)
	events <- domain.Event{Type: domain.EventQR, QRCode: "2@abc"}
	events <- domain.Event{Type: domain.EventReady, BotNumber: "5511999998888"}

	if err := waitForPairing(context.Background(), events); err != nil {
		t.Fatalf("waitForPairing: %v", err)
	}
}

func TestWaitForPairing_QRTimeout(t *testing.T) {
	events := make(chan domain.Event, 1)
	events <- domain.Event{Type: domain.EventDisconnected, Reason: "qr timeout"}

	if err := waitForPairing(context.Background(), events); err == nil {
		t.Fatal("expected error after qr timeout")
	}
}

func TestWaitForPairing_Deadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := waitForPairing(ctx, make(chan domain.Event)); err == nil {
		t.Fatal("expected error when the deadline passes")
	}
}

func TestEventSink_DoesNotBlock(t *testing.T) {
	sink := make(eventSink, 1)
	sink.Publish(domain.Event{Type: domain.EventQR})
	sink.Publish(domain.Event{Type: domain.EventQR}) // full, dropped
	if len(sink) != 1 {
		t.Fatalf("len = %d, want 1", len(sink))
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func assertFile(t *testing.T, path, want string) {
	t.Helper()
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if string(got) != want {
		t.Errorf("%s = %q, want %q", path, got, want)
	}
}
