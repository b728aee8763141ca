// Package webhook forwards approval replies to an external endpoint.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"wagate/internal/provider"
)

const defaultTimeout = 10 * time.Second

// Payload is the JSON body sent for each approval reply.
type Payload struct {
	PhoneNumber string `json:"phoneNumber"`
	Approved    bool   `json:"approved"`
	Timestamp   string `json:"timestamp"`
}

type NotifierConfig struct {
	URL        string
	Token      string // sent as Authorization: Bearer
	Secret     string // optional: HMAC-SHA256 body signature
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Notifier POSTs approval replies. It does not retry.
type Notifier struct {
	url    string
	token  string
	secret string
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

func NewNotifier(cfg NotifierConfig) *Notifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = provider.SharedHTTPClient(cfg.Timeout)
	}
	return &Notifier{
		url:    cfg.URL,
		token:  cfg.Token,
		secret: cfg.Secret,
		client: cfg.HTTPClient,
		logger: cfg.Logger,
		now:    time.Now,
	}
}

func (n *Notifier) Notify(ctx context.Context, phoneNumber string, approved bool) error {
	body, err := json.Marshal(Payload{
		PhoneNumber: phoneNumber,
		Approved:    approved,
		Timestamp:   n.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	deliveryID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-ID", deliveryID)
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}
	if n.secret != "" {
		req.Header.Set("X-Signature-256", Sign(body, n.secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}
	n.logger.Info("approval delivered", "delivery_id", deliveryID, "approved", approved, "status", resp.StatusCode)
	return nil
}

// Sign returns the "sha256=<hex>" HMAC of body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
