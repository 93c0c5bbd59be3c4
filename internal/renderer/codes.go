package renderer

import (
	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/skip2/go-qrcode"
)

func (p *preview) drawBarcode(value string) error {
	bc, err := code128.Encode(value)
	if err != nil {
		return err
	}

	targetWidth := p.width - margin*2
	if bc.Bounds().Dx() > targetWidth {
		targetWidth = bc.Bounds().Dx()
	}
	scaled, err := barcode.Scale(bc, targetWidth, barcodeHeight)
	if err != nil {
		return err
	}

	x := (p.width - scaled.Bounds().Dx()) / 2
	p.ctx.DrawImage(scaled, x, int(p.y))
	p.y += float64(barcodeHeight) + margin
	return nil
}

func (p *preview) drawQRCode(value string) error {
	qr, err := qrcode.New(value, qrcode.Medium)
	if err != nil {
		return err
	}

	img := qr.Image(qrSize)
	x := (p.width - img.Bounds().Dx()) / 2
	p.ctx.DrawImage(img, x, int(p.y))
	p.y += float64(img.Bounds().Dy())
	return nil
}
