package labels

import (
	"image"
	"image/color"
	"image/draw"

	"invtrack/cmd/errkind"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/boombuler/barcode/qr"
)

const (
	qrSize        = 400
	qrMarginMods  = 2
	barModuleW    = 2
	barHeight     = 80
	barQuietMods  = 10
	labelPadding  = 24
	labelGap      = 12
	headerPt      = 22.0
	footerPt      = 24.0
	scalableExtra = 8
	fixedExtra    = 12
)

// encodeQR renders identifier as a 400x400 QR (level M) with a fixed margin.
func encodeQR(identifier string) (image.Image, error) {
	const op = "labels.encodeQR"

	code, err := qr.Encode(identifier, qr.M, qr.Auto)
	if err != nil {
		return nil, errkind.OpError{Op: op, Kind: errkind.ErrValidationFailed, Msg: err.Error()}
	}
	mods := code.Bounds().Dx()
	scaled, err := barcode.Scale(code, qrSize, qrSize)
	if err != nil {
		return nil, errkind.OpError{Op: op, Kind: errkind.ErrValidationFailed, Msg: err.Error()}
	}
	margin := qrMarginMods * (qrSize / mods)
	return withMargin(scaled, margin, margin), nil
}

// encodeCode128 renders identifier as Code-128, 2 px per module, 80 px tall.
func encodeCode128(identifier string) (image.Image, error) {
	const op = "labels.encodeCode128"

	code, err := code128.Encode(identifier)
	if err != nil {
		return nil, errkind.OpError{Op: op, Kind: errkind.ErrValidationFailed, Msg: err.Error()}
	}
	w := code.Bounds().Dx() * barModuleW
	scaled, err := barcode.Scale(code, w, barHeight)
	if err != nil {
		return nil, errkind.OpError{Op: op, Kind: errkind.ErrValidationFailed, Msg: err.Error()}
	}
	return withMargin(scaled, barQuietMods*barModuleW, 0), nil
}

// withMargin copies src onto a white canvas padded by mx/my pixels.
func withMargin(src image.Image, mx, my int) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx()+2*mx, b.Dy()+2*my))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(mx, my, mx+b.Dx(), my+b.Dy()), src, b.Min, draw.Src)
	return dst
}
