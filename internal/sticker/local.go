package sticker

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"wagate/internal/domain"
)

const (
	minFontSize = 28
	outline     = 3
)

var (
	fill   = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	stroke = color.RGBA{A: 0xff}
)

// Local rasterizes text with the Go Bold font. It needs no network.
type Local struct {
	font *sfnt.Font
	size int
}

func NewLocal(size int) (*Local, error) {
	f, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	if size <= 0 {
		size = defaultSize
	}
	return &Local{font: f, size: size}, nil
}

func (l *Local) Render(ctx context.Context, text string) (domain.Media, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Media{}, fmt.Errorf("empty sticker text")
	}
	if err := ctx.Err(); err != nil {
		return domain.Media{}, err
	}

	margin := l.size / 12
	maxWidth := l.size - 2*margin

	face, lines, err := l.layout(text, maxWidth, l.size-2*margin)
	if err != nil {
		return domain.Media{}, err
	}
	defer face.Close()

	img := image.NewRGBA(image.Rect(0, 0, l.size, l.size))
	draw.Draw(img, img.Bounds(), image.Transparent, image.Point{}, draw.Src)

	m := face.Metrics()
	lineHeight := m.Height.Ceil()
	top := (l.size-lineHeight*len(lines))/2 + m.Ascent.Ceil()

	d := &font.Drawer{Dst: img, Face: face}
	for i, line := range lines {
		w := d.MeasureString(line).Ceil()
		x := (l.size - w) / 2
		y := top + i*lineHeight

		d.Src = image.NewUniform(stroke)
		for dx := -outline; dx <= outline; dx++ {
			for dy := -outline; dy <= outline; dy++ {
				if dx == 0 && dy == 0 {
					continue
				}
				d.Dot = fixed.P(x+dx, y+dy)
				d.DrawString(line)
			}
		}
		d.Src = image.NewUniform(fill)
		d.Dot = fixed.P(x, y)
		d.DrawString(line)
	}
	return encode(img)
}

// layout picks the largest font size whose word-wrapped lines fit the box.
func (l *Local) layout(text string, maxWidth, maxHeight int) (font.Face, []string, error) {
	for pt := float64(l.size) / 4; ; pt -= 4 {
		if pt < minFontSize {
			pt = minFontSize
		}
		face, err := opentype.NewFace(l.font, &opentype.FaceOptions{Size: pt, DPI: 72, Hinting: font.HintingFull})
		if err != nil {
			return nil, nil, fmt.Errorf("font face: %w", err)
		}
		lines := wrap(face, text, maxWidth)
		height := face.Metrics().Height.Ceil() * len(lines)
		if (height <= maxHeight && widest(face, lines) <= maxWidth) || pt == minFontSize {
			return face, lines, nil
		}
		face.Close()
	}
}

func wrap(face font.Face, text string, maxWidth int) []string {
	var lines []string
	var cur string
	for _, word := range strings.Fields(text) {
		candidate := word
		if cur != "" {
			candidate = cur + " " + word
		}
		if cur != "" && font.MeasureString(face, candidate).Ceil() > maxWidth {
			lines = append(lines, cur)
			cur = word
			continue
		}
		cur = candidate
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

func widest(face font.Face, lines []string) int {
	w := 0
	for _, line := range lines {
		w = max(w, font.MeasureString(face, line).Ceil())
	}
	return w
}
