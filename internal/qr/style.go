package qr

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrInvalidStyle is returned for malformed colours, radii, logo sizes or logos.
	ErrInvalidStyle = errors.New("invalid qr style")
	// ErrEncodingTooLarge is returned when the content does not fit any QR version.
	ErrEncodingTooLarge = errors.New("content too large for qr code")
	// ErrRenderFailure is returned when rendering fails for reasons other than input.
	ErrRenderFailure = errors.New("qr render failed")
)

// Style bounds.
const (
	DefaultLogoSize = 0.2
	MaxLogoSize     = 0.25
	MaxLogoPixels   = 240
	MaxCornerRadius = 0.5
	// MinContrast is how much lighter, in relative luminance, the background
	// must be than every dark module colour.
	MinContrast = 0.4
)

// Form field names accepted by ParseStyle.
const (
	FieldForeground    = "fg_color"
	FieldBackground    = "bg_color"
	FieldGradientStart = "gradient_start"
	FieldGradientEnd   = "gradient_end"
	FieldBorderRadius  = "border_radius"
	FieldLogoSize      = "logo_size"
	FieldLogoRadius    = "logo_radius"
)

// Gradient is a top-to-bottom linear gradient applied to dark modules.
type Gradient struct {
	Start color.NRGBA
	End   color.NRGBA
}

// Style controls how the QR symbol is drawn.
type Style struct {
	Foreground color.NRGBA
	Background color.NRGBA
	Gradient   *Gradient
	// CornerRadius is a fraction of the module size, 0 to 0.5.
	CornerRadius float64
	// LogoSize is the width of the logo and its pad as a fraction of the
	// symbol width, quiet zone excluded.
	LogoSize float64
	// LogoPixels, when set, is the logo width in image pixels. It overrides
	// LogoSize and is capped at render time to MaxLogoSize of the symbol.
	LogoPixels int
	// LogoRadius rounds the logo and its pad, as a fraction of their width.
	LogoRadius float64
}

// DefaultStyle is black modules on white with square corners.
func DefaultStyle() Style {
	return Style{
		Foreground: color.NRGBA{A: 0xff},
		Background: color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
		LogoSize:   DefaultLogoSize,
	}
}

// Validate checks the style bounds.
func (s Style) Validate() error {
	if math.IsNaN(s.CornerRadius) || s.CornerRadius < 0 || s.CornerRadius > MaxCornerRadius {
		return fmt.Errorf("%w: corner radius must be between 0 and %.1f", ErrInvalidStyle, MaxCornerRadius)
	}

	if math.IsNaN(s.LogoSize) || s.LogoSize <= 0 || s.LogoSize > MaxLogoSize {
		return fmt.Errorf("%w: logo size must be greater than 0 and at most %.2f", ErrInvalidStyle, MaxLogoSize)
	}

	if s.LogoPixels < 0 || s.LogoPixels > MaxLogoPixels {
		return fmt.Errorf("%w: logo size must be at most %dpx", ErrInvalidStyle, MaxLogoPixels)
	}

	if math.IsNaN(s.LogoRadius) || s.LogoRadius < 0 || s.LogoRadius > MaxCornerRadius {
		return fmt.Errorf("%w: logo radius must be between 0 and %.1f", ErrInvalidStyle, MaxCornerRadius)
	}

	darks := []color.NRGBA{s.Foreground}
	if s.Gradient != nil {
		darks = []color.NRGBA{s.Gradient.Start, s.Gradient.End}
	}

	bg := luminance(s.Background)

	for _, c := range darks {
		if bg-luminance(c) < MinContrast {
			return fmt.Errorf("%w: #%02x%02x%02x is too close to the background colour; dark modules need a lighter background",
				ErrInvalidStyle, c.R, c.G, c.B)
		}
	}

	return nil
}

// luminance is the relative luminance of an sRGB colour, 0 for black and 1
// for white. Alpha is ignored.
func luminance(c color.NRGBA) float64 {
	linear := func(v uint8) float64 {
		s := float64(v) / 0xff
		if s <= 0.04045 {
			return s / 12.92
		}

		return math.Pow((s+0.055)/1.055, 2.4)
	}

	return 0.2126*linear(c.R) + 0.7152*linear(c.G) + 0.0722*linear(c.B)
}

// key identifies the rendered output of a style.
func (s Style) key() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%x|%x|%g|%g|%d|%g", s.Foreground, s.Background, s.CornerRadius, s.LogoSize, s.LogoPixels, s.LogoRadius)

	if s.Gradient != nil {
		fmt.Fprintf(&b, "|%x|%x", s.Gradient.Start, s.Gradient.End)
	}

	return b.String()
}

// ParseStyle builds a style from form values. Missing fields keep their
// defaults. border_radius is a percentage of the module size (0 to 50,
// larger values are clamped). The logo fields are read only when withLogo is
// set: logo_size is a fraction when at most 1, a percentage with a % suffix
// and a pixel width otherwise (clamped to MaxLogoPixels); logo_radius is a
// percentage like border_radius and follows it when absent.
func ParseStyle(get func(name string) string, withLogo bool) (Style, error) {
	style := DefaultStyle()

	var err error

	if v := strings.TrimSpace(get(FieldForeground)); v != "" {
		if style.Foreground, err = ParseHexColor(v); err != nil {
			return Style{}, fmt.Errorf("%s: %w", FieldForeground, err)
		}
	}

	if v := strings.TrimSpace(get(FieldBackground)); v != "" {
		if style.Background, err = ParseHexColor(v); err != nil {
			return Style{}, fmt.Errorf("%s: %w", FieldBackground, err)
		}
	}

	start := strings.TrimSpace(get(FieldGradientStart))
	end := strings.TrimSpace(get(FieldGradientEnd))

	switch {
	case start != "" && end != "":
		g := &Gradient{}
		if g.Start, err = ParseHexColor(start); err != nil {
			return Style{}, fmt.Errorf("%s: %w", FieldGradientStart, err)
		}

		if g.End, err = ParseHexColor(end); err != nil {
			return Style{}, fmt.Errorf("%s: %w", FieldGradientEnd, err)
		}

		style.Gradient = g
	case start != "" || end != "":
		return Style{}, fmt.Errorf("%w: %s and %s must be given together", ErrInvalidStyle, FieldGradientStart, FieldGradientEnd)
	}

	if v := strings.TrimSpace(get(FieldBorderRadius)); v != "" {
		if style.CornerRadius, err = parseRadius(FieldBorderRadius, v); err != nil {
			return Style{}, err
		}
	}

	if withLogo {
		if err := parseLogoFields(get, &style); err != nil {
			return Style{}, err
		}
	}

	if err := style.Validate(); err != nil {
		return Style{}, err
	}

	return style, nil
}

func parseLogoFields(get func(name string) string, style *Style) error {
	style.LogoRadius = style.CornerRadius

	if v := strings.TrimSpace(get(FieldLogoRadius)); v != "" {
		r, err := parseRadius(FieldLogoRadius, v)
		if err != nil {
			return err
		}

		style.LogoRadius = r
	}

	v := strings.TrimSpace(get(FieldLogoSize))
	if v == "" {
		return nil
	}

	pct, isPct := strings.CutSuffix(v, "%")

	size, err := parseNumber(FieldLogoSize, pct)
	if err != nil {
		return err
	}

	switch {
	case isPct:
		style.LogoSize = size / 100
	case size > 1:
		style.LogoPixels = int(math.Round(min(size, MaxLogoPixels)))
	default:
		style.LogoSize = size
	}

	return nil
}

// parseRadius reads a percentage of a side length, clamped to MaxCornerRadius.
func parseRadius(field, v string) (float64, error) {
	pct, err := parseNumber(field, strings.TrimSuffix(v, "%"))
	if err != nil {
		return 0, err
	}

	if pct < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", ErrInvalidStyle, field)
	}

	return min(pct, 100*MaxCornerRadius) / 100, nil
}

func parseNumber(field, v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidStyle, field)
	}

	return f, nil
}

// ParseHexColor parses #RGB or #RRGGBB into an opaque colour.
func ParseHexColor(s string) (color.NRGBA, error) {
	hexDigits, ok := strings.CutPrefix(s, "#")
	if !ok {
		return color.NRGBA{}, fmt.Errorf("%w: colour %q must start with #", ErrInvalidStyle, s)
	}

	if len(hexDigits) == 3 {
		hexDigits = string([]byte{
			hexDigits[0], hexDigits[0],
			hexDigits[1], hexDigits[1],
			hexDigits[2], hexDigits[2],
		})
	}

	if len(hexDigits) != 6 {
		return color.NRGBA{}, fmt.Errorf("%w: colour %q must be #RGB or #RRGGBB", ErrInvalidStyle, s)
	}

	b, err := hex.DecodeString(hexDigits)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("%w: colour %q is not hexadecimal", ErrInvalidStyle, s)
	}

	return color.NRGBA{R: b[0], G: b[1], B: b[2], A: 0xff}, nil
}

func cacheKey(target string, style Style, logo []byte) string {
	h := sha256.New()
	h.Write([]byte(target))
	h.Write([]byte{0})
	h.Write([]byte(style.key()))
	h.Write([]byte{0})
	h.Write(logo)

	return hex.EncodeToString(h.Sum(nil))
}
