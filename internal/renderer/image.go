package renderer

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
)

const (
	// PreviewWidth matches the 576 dot print head of an 80mm thermal printer.
	PreviewWidth = 576

	previewScale  = 2
	lineHeight    = 15
	margin        = 8
	barcodeHeight = 40
	qrSize        = 120
)

// preview draws on a half-resolution canvas so the 7px default font spans
// the receipt columns, then scales up to the print head width.
type preview struct {
	ctx   *gg.Context
	width int
	y     float64
}

// Preview renders the sanitized receipt text as a thermal-style image with a
// Code128 barcode and a QR code for code appended below the text.
func Preview(text, code string) (image.Image, error) {
	lines := strings.Split(strings.TrimRight(SanitizeForThermal(text), "\n"), "\n")

	width := PreviewWidth / previewScale
	height := margin*2 + len(lines)*lineHeight
	if code != "" {
		height += barcodeHeight + qrSize + margin*2
	}

	p := &preview{ctx: gg.NewContext(width, height), width: width, y: margin}
	p.ctx.SetColor(color.White)
	p.ctx.Clear()
	p.ctx.SetColor(color.Black)

	for _, line := range lines {
		p.y += lineHeight
		p.ctx.DrawString(line, margin, p.y-3)
	}

	if code != "" {
		p.y += margin
		if err := p.drawBarcode(code); err != nil {
			return nil, fmt.Errorf("failed to draw barcode: %w", err)
		}
		if err := p.drawQRCode(code); err != nil {
			return nil, fmt.Errorf("failed to draw QR code: %w", err)
		}
	}

	scaled := imaging.Resize(p.ctx.Image(), PreviewWidth, 0, imaging.NearestNeighbor)
	return toBlackWhite(scaled, 128), nil
}

// PreviewPNG writes the preview as PNG.
func PreviewPNG(w io.Writer, text, code string) error {
	img, err := Preview(text, code)
	if err != nil {
		return err
	}
	return imaging.Encode(w, img, imaging.PNG)
}

// toBlackWhite thresholds img to the two tones a thermal head can produce.
func toBlackWhite(img image.Image, threshold uint8) *image.Gray {
	gray := imaging.Grayscale(img)
	bounds := gray.Bounds()
	bw := image.NewGray(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := gray.NRGBAAt(x, y).R
			if v < threshold {
				bw.SetGray(x, y, color.Gray{Y: 0})
			} else {
				bw.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return bw
}
