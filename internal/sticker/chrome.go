package sticker

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"wagate/internal/browser"
	"wagate/internal/domain"
)

const stickerPage = `<!doctype html><html><head><meta charset="utf-8"><style>
html,body{margin:0;background:transparent}
#sticker{width:%dpx;height:%dpx;display:flex;align-items:center;justify-content:center;
text-align:center;font-family:"Arial Black",Impact,sans-serif;font-size:%dpx;line-height:1.1;
color:#fff;-webkit-text-stroke:6px #000;paint-order:stroke fill;word-break:break-word;padding:24px;box-sizing:border-box}
</style></head><body><div id="sticker">%s</div></body></html>`

// Chrome renders the sticker as HTML in headless Chrome and screenshots it.
type Chrome struct {
	bridge *browser.Bridge
	size   int
	logger *slog.Logger
}

func NewChrome(bridge *browser.Bridge, size int, logger *slog.Logger) *Chrome {
	return &Chrome{bridge: bridge, size: size, logger: logger}
}

func (c *Chrome) Render(ctx context.Context, text string) (domain.Media, error) {
	page := stickerHTML(text, c.size)
	buf, err := c.bridge.ScreenshotHTML(ctx, page, "#sticker", int64(c.size), int64(c.size))
	if err != nil {
		return domain.Media{}, fmt.Errorf("chrome sticker: %w", err)
	}
	return fit(buf, c.size)
}

// stickerHTML lays text out in a size×size box; long text gets a smaller font.
func stickerHTML(text string, size int) string {
	fontSize := size / 6
	if len([]rune(text)) > 24 {
		fontSize = size / 9
	}
	return fmt.Sprintf(stickerPage, size, size, fontSize, html.EscapeString(text))
}
