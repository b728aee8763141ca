// Package sticker renders short text into square PNG stickers.
package sticker

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"net/http"

	"golang.org/x/image/draw"

	"wagate/internal/browser"
	"wagate/internal/config"
	"wagate/internal/domain"
)

const (
	defaultSize = 512
	mimePNG     = "image/png"
)

// New returns the renderer selected by cfg.Backend.
func New(cfg config.StickerConfig, logger *slog.Logger) (domain.StickerRenderer, error) {
	size := cfg.Size
	if size <= 0 {
		size = defaultSize
	}
	switch cfg.Backend {
	case "", "local":
		return NewLocal(size)
	case "chrome":
		bridge := browser.NewBridge(browser.BridgeConfig{
			ProfileDir: cfg.ChromeProfile,
			Headless:   true,
			Logger:     logger,
		})
		return NewChrome(bridge, size, logger), nil
	case "quickchart":
		return NewQuickChart(QuickChartConfig{BaseURL: cfg.QuickChartURL, Size: size, Logger: logger}), nil
	default:
		return nil, fmt.Errorf("unknown sticker backend: %s", cfg.Backend)
	}
}

// fit decodes an image, letterboxes it into a transparent size×size canvas
// and re-encodes it as PNG.
func fit(data []byte, size int) (domain.Media, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return domain.Media{}, fmt.Errorf("decode image: %w", err)
	}
	b := src.Bounds()
	if b.Dx() == size && b.Dy() == size {
		return domain.Media{Data: data, MIMEType: mimePNG, FileName: "figurinha.png"}, nil
	}

	scale := float64(size) / float64(max(b.Dx(), b.Dy()))
	w, h := int(float64(b.Dx())*scale), int(float64(b.Dy())*scale)
	off := image.Pt((size-w)/2, (size-h)/2)

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, image.Rectangle{Min: off, Max: off.Add(image.Pt(w, h))}, src, b, draw.Over, nil)
	return encode(dst)
}

func encode(img image.Image) (domain.Media, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return domain.Media{}, fmt.Errorf("encode png: %w", err)
	}
	return domain.Media{Data: buf.Bytes(), MIMEType: mimePNG, FileName: "figurinha.png"}, nil
}

// isPNG sniffs the payload the same way net/http does.
func isPNG(data []byte) bool {
	return http.DetectContentType(data) == mimePNG
}

