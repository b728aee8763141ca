package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"wagate/internal/config"
	"wagate/internal/domain"
)

func fastRetry(t *testing.T) {
	t.Helper()
	old := retryBaseDelay
	retryBaseDelay = time.Millisecond
	t.Cleanup(func() { retryBaseDelay = old })
}

// --- OpenAI ---

func TestOpenAI_ChatJSONMode(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"{\"tipo\":\"piada\"}"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":5,"completion_tokens":3,"total_tokens":8}}`)
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIKey: "sk-test", APIBase: srv.URL, Logger: testLogger()})
	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		System:   "classify",
		Messages: []domain.Message{{Role: "user", Content: "me conta uma piada"}},
		JSON:     true,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != `{"tipo":"piada"}` {
		t.Fatalf("content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 8 {
		t.Fatalf("total tokens = %d", resp.Usage.TotalTokens)
	}
	rf, _ := got["response_format"].(map[string]any)
	if rf["type"] != "json_object" {
		t.Fatalf("response_format = %v", got["response_format"])
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system+user messages, got %d", len(msgs))
	}
}

func TestOpenAI_ChatEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[]}`)
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIKey: "k", APIBase: srv.URL, Logger: testLogger()})
	if _, err := p.Chat(context.Background(), domain.ChatRequest{}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

// --- Claude ---

func TestClaude_ChatJoinsTextBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["max_tokens"].(float64) != defaultMaxTokens {
			t.Errorf("max_tokens = %v", body["max_tokens"])
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",
			"content":[{"type":"text","text":"Olá, "},{"type":"text","text":"tudo bem?"}],
			"stop_reason":"end_turn","usage":{"input_tokens":4,"output_tokens":6}}`)
	}))
	defer srv.Close()

	p := NewClaude(ClaudeConfig{APIKey: "k", APIBase: srv.URL + "/v1", Logger: testLogger()})
	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		System:   "seja breve",
		Messages: []domain.Message{{Role: "user", Content: "oi"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "Olá, tudo bem?" {
		t.Fatalf("content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 10 {
		t.Fatalf("total tokens = %d", resp.Usage.TotalTokens)
	}
}

// --- Ollama ---

func TestOllama_ChatSendsFormatJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body ollamaRequest
		json.NewDecoder(r.Body).Decode(&body)
		if body.Format != "json" {
			t.Errorf("format = %q", body.Format)
		}
		if len(body.Messages) != 2 || body.Messages[0].Role != "system" {
			t.Errorf("messages = %+v", body.Messages)
		}
		io.WriteString(w, `{"message":{"role":"assistant","content":"{}"},"done_reason":"stop","prompt_eval_count":2,"eval_count":1}`)
	}))
	defer srv.Close()

	p := NewOllama(OllamaConfig{APIBase: srv.URL, Logger: testLogger()})
	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		System:   "sys",
		Messages: []domain.Message{{Role: "user", Content: "x"}},
		JSON:     true,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "{}" || resp.Usage.TotalTokens != 3 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestOllama_RetriesServerErrors(t *testing.T) {
	fastRetry(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"message":{"role":"assistant","content":"ok"}}`)
	}))
	defer srv.Close()

	p := NewOllama(OllamaConfig{APIBase: srv.URL, Logger: testLogger()})
	resp, err := p.Chat(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "ok" || calls.Load() != 3 {
		t.Fatalf("content=%q calls=%d", resp.Content, calls.Load())
	}
}

func TestOllama_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewOllama(OllamaConfig{APIBase: srv.URL, Logger: testLogger()})
	_, err := p.Chat(context.Background(), domain.ChatRequest{})
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404 error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
}

// --- Media backends ---

func TestHuggingFaceImage_Generate(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nfake")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/some/model" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["inputs"] != "um gato astronauta" {
			t.Errorf("inputs = %q", body["inputs"])
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	}))
	defer srv.Close()

	g := NewHuggingFaceImage(HuggingFaceImageConfig{APIBase: srv.URL, APIKey: "hf", Model: "some/model", Logger: testLogger()})
	m, err := g.Generate(context.Background(), "um gato astronauta")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if m.MIMEType != "image/png" || m.FileName != "imagem.png" || string(m.Data) != string(png) {
		t.Fatalf("unexpected media %+v", m)
	}
}

func TestHuggingFaceImage_RejectsNonImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"error":"loading"}`)
	}))
	defer srv.Close()

	g := NewHuggingFaceImage(HuggingFaceImageConfig{APIBase: srv.URL, Logger: testLogger()})
	if _, err := g.Generate(context.Background(), "x"); err == nil {
		t.Fatal("expected error for JSON body")
	}
}

func TestTTS_OpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["voice"] != "alloy" || body["input"] != "bom dia" {
			t.Errorf("body = %v", body)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3audio"))
	}))
	defer srv.Close()

	tts := NewTTSProvider(TTSConfig{Provider: "openai", APIBase: srv.URL, APIKey: "k", Logger: testLogger()})
	m, err := tts.Synthesize(context.Background(), "bom dia")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if m.MIMEType != "audio/mpeg" || m.FileName != "audio.mp3" {
		t.Fatalf("unexpected media %+v", m)
	}
}

func TestTTS_ElevenLabsUsesVoicePath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/text-to-speech/voz1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "el" {
			t.Errorf("missing xi-api-key")
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("mp3"))
	}))
	defer srv.Close()

	tts := NewTTSProvider(TTSConfig{Provider: "elevenlabs", APIBase: srv.URL, APIKey: "el", Voice: "voz1", Logger: testLogger()})
	m, err := tts.Synthesize(context.Background(), "olá")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if m.MIMEType != "audio/mpeg" {
		t.Fatalf("mime = %q", m.MIMEType)
	}
}

func TestTTS_UnsupportedProvider(t *testing.T) {
	tts := NewTTSProvider(TTSConfig{Provider: "nope", Logger: testLogger()})
	if _, err := tts.Synthesize(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestWhisper_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.FormValue("model") != "whisper-1" || r.FormValue("language") != "pt" {
			t.Errorf("form = %v", r.MultipartForm.Value)
		}
		_, fh, err := r.FormFile("file")
		if err != nil || fh.Filename != "audio.ogg" {
			t.Errorf("file: %v %v", fh, err)
		}
		io.WriteString(w, `{"text":" faz uma figurinha de gato "}`)
	}))
	defer srv.Close()

	wp := NewWhisperProvider(WhisperConfig{APIBase: srv.URL, Language: "pt", Logger: testLogger()})
	text, err := wp.Transcribe(context.Background(), domain.Media{Data: []byte("OggS"), MIMEType: "audio/ogg; codecs=opus"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "faz uma figurinha de gato" {
		t.Fatalf("text = %q", text)
	}
}

// --- Factory ---

func TestFactory_GetDisabledAndUnknown(t *testing.T) {
	cfg := config.Defaults()
	f := NewFactory(cfg, testLogger())

	if _, err := f.Get("openai"); err == nil {
		t.Fatal("expected error for disabled provider")
	}
	if _, err := f.Get("nope"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestFactory_GetCaches(t *testing.T) {
	cfg := config.Defaults()
	pc := cfg.Providers["ollama"]
	pc.Enabled = true
	cfg.Providers["ollama"] = pc
	cfg.AI.Provider = "ollama"
	f := NewFactory(cfg, testLogger())

	a, err := f.DefaultProvider()
	if err != nil {
		t.Fatalf("DefaultProvider: %v", err)
	}
	b, _ := f.Get("ollama")
	if a != b {
		t.Fatal("expected the cached instance")
	}
	if a.Name() != "ollama" {
		t.Fatalf("name = %q", a.Name())
	}
}

func TestFactory_DefaultProviderBuildsFailoverChain(t *testing.T) {
	cfg := config.Defaults()
	for _, name := range []string{"ollama", "openai"} {
		pc := cfg.Providers[name]
		pc.Enabled = true
		pc.APIKey = "k"
		cfg.Providers[name] = pc
	}
	cfg.AI.Provider = "ollama"
	cfg.AI.FailoverChain = []string{"ollama", "openai", "claude"}
	f := NewFactory(cfg, testLogger())

	p, err := f.DefaultProvider()
	if err != nil {
		t.Fatalf("DefaultProvider: %v", err)
	}
	if p.Name() != "failover(ollama→openai)" {
		t.Fatalf("name = %q", p.Name())
	}
}

func TestFactory_MediaBackendsRequireEnabledProvider(t *testing.T) {
	cfg := config.Defaults()
	f := NewFactory(cfg, testLogger())
	if _, err := f.ImageGenerator(); err == nil {
		t.Fatal("expected error while huggingface is disabled")
	}

	pc := cfg.Providers["huggingface"]
	pc.Enabled = true
	cfg.Providers["huggingface"] = pc
	if _, err := f.ImageGenerator(); err != nil {
		t.Fatalf("ImageGenerator: %v", err)
	}

	tr, err := f.Transcriber()
	if err != nil || tr != nil {
		t.Fatalf("disabled transcription should return nil, nil; got %v, %v", tr, err)
	}
}
