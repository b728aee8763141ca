package sticker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"wagate/internal/domain"
)

const maxChartBytes = 8 << 20

// QuickChartConfig configures the remote chart-image backend.
type QuickChartConfig struct {
	BaseURL    string
	Size       int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// QuickChart renders the text as the title of an empty chart on a
// QuickChart server and fetches the PNG.
type QuickChart struct {
	baseURL string
	size    int
	client  *http.Client
	logger  *slog.Logger
}

func NewQuickChart(cfg QuickChartConfig) *QuickChart {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://quickchart.io"
	}
	if cfg.Size <= 0 {
		cfg.Size = defaultSize
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &QuickChart{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		size:    cfg.Size,
		client:  cfg.HTTPClient,
		logger:  cfg.Logger,
	}
}

type chartRequest struct {
	Width           int            `json:"width"`
	Height          int            `json:"height"`
	Format          string         `json:"format"`
	BackgroundColor string         `json:"backgroundColor"`
	Chart           map[string]any `json:"chart"`
}

func (q *QuickChart) Render(ctx context.Context, text string) (domain.Media, error) {
	body, err := json.Marshal(chartRequest{
		Width:           q.size,
		Height:          q.size,
		Format:          "png",
		BackgroundColor: "transparent",
		Chart:           titleChart(text, q.size),
	})
	if err != nil {
		return domain.Media{}, fmt.Errorf("marshal chart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.baseURL+"/chart", bytes.NewReader(body))
	if err != nil {
		return domain.Media{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.client.Do(req)
	if err != nil {
		return domain.Media{}, fmt.Errorf("quickchart request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxChartBytes))
	if err != nil {
		return domain.Media{}, fmt.Errorf("quickchart read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Media{}, fmt.Errorf("quickchart status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	if !isPNG(data) {
		return domain.Media{}, fmt.Errorf("quickchart returned non-PNG body")
	}
	q.logger.Debug("quickchart sticker rendered", "bytes", len(data))
	return fit(data, q.size)
}

// titleChart hides everything but the title, split into lines of at most
// a dozen characters.
func titleChart(text string, size int) map[string]any {
	lines := splitLines(text, 12)
	fontSize := size / (len(lines) + 3)
	return map[string]any{
		"type": "bar",
		"data": map[string]any{"labels": []string{}, "datasets": []any{}},
		"options": map[string]any{
			"legend": map[string]any{"display": false},
			"title": map[string]any{
				"display":   true,
				"text":      lines,
				"fontSize":  fontSize,
				"fontColor": "#ffffff",
				"fontStyle": "bold",
				"padding":   size / 4,
			},
			"scales": map[string]any{
				"xAxes": []any{map[string]any{"display": false}},
				"yAxes": []any{map[string]any{"display": false}},
			},
		},
	}
}

func splitLines(text string, width int) []string {
	var lines []string
	var cur string
	for _, w := range strings.Fields(text) {
		if cur != "" && len([]rune(cur))+1+len([]rune(w)) > width {
			lines = append(lines, cur)
			cur = w
			continue
		}
		if cur == "" {
			cur = w
		} else {
			cur += " " + w
		}
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
