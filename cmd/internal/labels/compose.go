package labels

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// band is one line of label text with its face and reserved height.
type band struct {
	text   string
	face   font.Face
	height int
	width  int
}

func newBand(r TextRenderer, text string, size float64) (band, error) {
	face, err := r.Face(size)
	if err != nil {
		return band{}, fmt.Errorf("face %s %.0fpt: %w", r.Name(), size, err)
	}
	if face == nil {
		return band{}, fmt.Errorf("face %s %.0fpt: nil face", r.Name(), size)
	}
	m := face.Metrics()
	h := (m.Ascent + m.Descent).Ceil()
	if r.Scalable() {
		h += scalableExtra
	} else {
		h += fixedExtra
	}
	return band{
		text:   text,
		face:   face,
		height: h,
		width:  font.MeasureString(face, text).Ceil(),
	}, nil
}

func (b band) close() {
	if b.face != nil {
		_ = b.face.Close()
	}
}

// draw centers the text horizontally within width, top-aligned at y.
func (b band) draw(dst draw.Image, width, y int) {
	m := b.face.Metrics()
	textH := (m.Ascent + m.Descent).Ceil()
	baseline := y + (b.height-textH)/2 + m.Ascent.Ceil()
	x := (width - b.width) / 2
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.Black),
		Face: b.face,
		Dot:  fixed.P(x, baseline),
	}
	d.DrawString(b.text)
}

// composeLabeled frames src with header and footer bands and encodes PNG.
func composeLabeled(src image.Image, header, footer string, r TextRenderer) (out []byte, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = nil, fmt.Errorf("compose panic: %v", p)
		}
	}()

	head, err := newBand(r, header, headerPt)
	if err != nil {
		return nil, err
	}
	defer head.close()

	foot, err := newBand(r, footer, footerPt)
	if err != nil {
		return nil, err
	}
	defer foot.close()

	sb := src.Bounds()
	inner := max(sb.Dx(), head.width, foot.width)
	width := inner + 2*labelPadding
	height := labelPadding + head.height + labelGap + sb.Dy() + labelGap + foot.height + labelPadding

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	y := labelPadding
	head.draw(canvas, width, y)
	y += head.height + labelGap

	x := (width - sb.Dx()) / 2
	draw.Draw(canvas, image.Rect(x, y, x+sb.Dx(), y+sb.Dy()), src, sb.Min, draw.Src)
	y += sb.Dy() + labelGap

	foot.draw(canvas, width, y)

	return encodePNG(canvas)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func headerText(owner string) string {
	return strings.ToUpper(strings.Join(strings.Fields(owner), " "))
}
