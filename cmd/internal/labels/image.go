package labels

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"strings"

	"invtrack/cmd/errkind"
	"invtrack/cmd/internal/artifact"
)

// Format is a download encoding.
type Format string

const (
	FormatPNG Format = "png"
	FormatJPG Format = "jpg"

	jpegQuality = 90
)

// ParseFormat validates a format string ("jpeg" is accepted as jpg).
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "png":
		return FormatPNG, true
	case "jpg", "jpeg":
		return FormatJPG, true
	default:
		return "", false
	}
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	if f == FormatJPG {
		return "image/jpeg"
	}
	return "image/png"
}

// Image is a downloadable artifact.
type Image struct {
	Data        []byte
	ContentType string
	Filename    string
	Digest      artifact.Digest
}

// Image renders the artifacts for identifier and returns one of them in format.
func (c *Compositor) Image(ctx context.Context, identifier string, kind Kind, format Format) (Image, error) {
	const op = "labels.Image"

	if c.assets == nil {
		return Image{}, errkind.Invalid(op, "asset lookup not configured")
	}
	asset, err := c.assets.GetByIdentifier(ctx, strings.TrimSpace(identifier))
	if err != nil {
		return Image{}, errkind.Storage(op, err)
	}

	arts, err := c.EnsureArtifacts(ctx, asset.Identifier, asset.OwnerName)
	if err != nil {
		return Image{}, err
	}

	p := arts.QRPath
	if kind == KindBarcode {
		if arts.BarcodePath == "" {
			return Image{}, errkind.OpError{Op: op, Kind: errkind.ErrNotFound, Msg: "no barcode for " + asset.Identifier}
		}
		p = arts.BarcodePath
	}
	data, err := c.store.Get(ctx, p)
	if err != nil {
		return Image{}, errkind.Storage(op, err)
	}

	if format == FormatJPG {
		if data, err = pngToJPEG(data); err != nil {
			return Image{}, errkind.OpError{Op: op, Kind: errkind.ErrRenderDegraded, Msg: err.Error()}
		}
	}

	return Image{
		Data:        data,
		ContentType: format.ContentType(),
		Filename:    asset.Identifier + "_" + string(kind) + "." + string(format),
		Digest:      artifact.Sum(data),
	}, nil
}

func pngToJPEG(data []byte) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	b := src.Bounds()
	rgb := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgb, rgb.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(rgb, rgb.Bounds(), src, b.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgb, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
