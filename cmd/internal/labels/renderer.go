package labels

import (
	"log/slog"
	"os"
	"strings"

	"invtrack/cmd/errkind"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
)

// TextRenderer supplies font faces for label bands.
type TextRenderer interface {
	// Name identifies the renderer in logs.
	Name() string
	// Face returns a face for size points. Callers Close it when done.
	Face(size float64) (font.Face, error)
	// Scalable reports whether size is honored.
	Scalable() bool
}

// ScalableRenderer draws with a parsed TrueType/OpenType font.
type ScalableRenderer struct {
	name string
	font *opentype.Font
}

// NewScalableRenderer parses TTF/OTF bytes.
func NewScalableRenderer(name string, data []byte) (*ScalableRenderer, error) {
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, errkind.OpError{Op: "labels.NewScalableRenderer", Kind: errkind.ErrValidationFailed, Msg: err.Error()}
	}
	return &ScalableRenderer{name: name, font: f}, nil
}

// LoadScalableRenderer reads and parses the font file at path.
func LoadScalableRenderer(path string) (*ScalableRenderer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewScalableRenderer(path, b)
}

func (r *ScalableRenderer) Name() string   { return r.name }
func (r *ScalableRenderer) Scalable() bool { return true }

// Face builds a new face; opentype faces are not safe for concurrent use.
func (r *ScalableRenderer) Face(size float64) (font.Face, error) {
	return opentype.NewFace(r.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// FixedRenderer draws with the built-in 7x13 bitmap face and ignores size.
type FixedRenderer struct{}

func (FixedRenderer) Name() string   { return "basicfont.7x13" }
func (FixedRenderer) Scalable() bool { return false }

func (FixedRenderer) Face(float64) (font.Face, error) {
	return basicfont.Face7x13, nil
}

// DefaultFontCandidates lists the font files probed at startup, in order.
// extra paths (e.g. from configuration) are tried first.
func DefaultFontCandidates(extra ...string) []string {
	out := make([]string, 0, len(extra)+5)
	for _, p := range extra {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return append(out,
		`C:\Windows\Fonts\arial.ttf`,
		`C:\Windows\Fonts\calibri.ttf`,
		"/usr/share/fonts/truetype/msttcorefonts/Arial.ttf",
		"/usr/share/fonts/truetype/msttcorefonts/Calibri.ttf",
		"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	)
}

// SelectRenderer returns a ScalableRenderer for the first candidate that
// loads, or FixedRenderer when none does.
func SelectRenderer(log *slog.Logger, candidates []string) TextRenderer {
	if log == nil {
		log = slog.Default()
	}
	for _, p := range candidates {
		r, err := LoadScalableRenderer(p)
		if err != nil {
			log.Debug("labels.font.skip", "path", p, "err", err)
			continue
		}
		log.Info("labels.font.selected", "path", p)
		return r
	}
	log.Warn("labels.font.fallback", "renderer", FixedRenderer{}.Name(), "candidates", len(candidates))
	return FixedRenderer{}
}
