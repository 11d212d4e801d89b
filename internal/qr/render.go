package qr

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // logo decoding
	_ "image/jpeg" // logo decoding
	"image/png"
	"math"

	"github.com/skip2/go-qrcode"
	xdraw "golang.org/x/image/draw"
)

// Raster constants.
const (
	QuietZone           = 4
	MinImageSize        = 256
	DefaultModulePixels = 10
	MaxLogoDimension    = 2048
)

// Render encodes content as a styled PNG QR code. modulePx is the preferred
// module size; it grows when needed to keep the image at least MinImageSize.
func Render(content string, style Style, logo []byte, modulePx int) ([]byte, error) {
	if err := style.Validate(); err != nil {
		return nil, err
	}

	var logoImg image.Image

	if len(logo) > 0 {
		img, err := decodeLogo(logo)
		if err != nil {
			return nil, err
		}

		logoImg = img
	}

	modules, err := encode(content, logoImg != nil)
	if err != nil {
		return nil, err
	}

	img, px := rasterize(modules, style, modulePx)

	if logoImg != nil {
		overlayLogo(img, logoImg, style, len(modules)*px, px)
	}

	var buf bytes.Buffer

	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: encode png: %w", ErrRenderFailure, err)
	}

	return buf.Bytes(), nil
}

// encode builds the module matrix at the lowest version that fits. A logo
// occludes modules, so it raises error correction to the highest level.
func encode(content string, withLogo bool) ([][]bool, error) {
	level := qrcode.Medium
	if withLogo {
		level = qrcode.Highest
	}

	code, err := qrcode.New(content, level)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodingTooLarge, err)
	}

	code.DisableBorder = true

	return code.Bitmap(), nil
}

func decodeLogo(data []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: logo is not a png, jpeg or gif image", ErrInvalidStyle)
	}

	if cfg.Width > MaxLogoDimension || cfg.Height > MaxLogoDimension {
		return nil, fmt.Errorf("%w: logo larger than %dx%d", ErrInvalidStyle, MaxLogoDimension, MaxLogoDimension)
	}

	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("%w: logo is empty", ErrInvalidStyle)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode logo: %s", ErrInvalidStyle, err.Error())
	}

	return img, nil
}

func rasterize(modules [][]bool, style Style, modulePx int) (*image.NRGBA, int) {
	n := len(modules)
	total := n + 2*QuietZone

	if modulePx <= 0 {
		modulePx = DefaultModulePixels
	}

	px := max(modulePx, (MinImageSize+total-1)/total)
	size := total * px

	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	fill(img, img.Bounds(), style.Background)

	dark := func(r, c int) bool {
		return r >= 0 && r < n && c >= 0 && c < n && modules[r][c]
	}

	radius := style.CornerRadius * float64(px)

	for r := range n {
		for c := range n {
			if !modules[r][c] {
				continue
			}

			m := module{
				x0:     (c + QuietZone) * px,
				y0:     (r + QuietZone) * px,
				px:     px,
				radius: radius,
				// A corner is rounded only when both neighbours touching it are light.
				tl: !dark(r-1, c) && !dark(r, c-1),
				tr: !dark(r-1, c) && !dark(r, c+1),
				bl: !dark(r+1, c) && !dark(r, c-1),
				br: !dark(r+1, c) && !dark(r, c+1),
			}

			m.draw(img, style, size)
		}
	}

	return img, px
}

type module struct {
	x0, y0, px     int
	radius         float64
	tl, tr, bl, br bool
}

func (m module) draw(img *image.NRGBA, style Style, size int) {
	for dy := range m.px {
		y := m.y0 + dy
		fg := foregroundAt(style, y, size)

		for dx := range m.px {
			if m.outside(float64(dx)+0.5, float64(dy)+0.5) {
				continue
			}

			img.SetNRGBA(m.x0+dx, y, fg)
		}
	}
}

// outside reports whether the pixel centre (x, y), relative to the module
// origin, falls in a rounded-off corner.
func (m module) outside(x, y float64) bool {
	if m.radius <= 0 {
		return false
	}

	r := m.radius
	w := float64(m.px)

	var cx, cy float64

	switch {
	case m.tl && x < r && y < r:
		cx, cy = r, r
	case m.tr && x > w-r && y < r:
		cx, cy = w-r, r
	case m.bl && x < r && y > w-r:
		cx, cy = r, w-r
	case m.br && x > w-r && y > w-r:
		cx, cy = w-r, w-r
	default:
		return false
	}

	return math.Hypot(x-cx, y-cy) > r
}

func foregroundAt(style Style, y, size int) color.NRGBA {
	if style.Gradient == nil {
		return style.Foreground
	}

	t := 0.0
	if size > 1 {
		t = float64(y) / float64(size-1)
	}

	return lerp(style.Gradient.Start, style.Gradient.End, t)
}

func lerp(a, b color.NRGBA, t float64) color.NRGBA {
	mix := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*t))
	}

	return color.NRGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: mix(a.A, b.A)}
}

// overlayLogo centres the logo on a background pad one module wide. Logo and
// pad together span at most MaxLogoSize of the symbol width.
func overlayLogo(img *image.NRGBA, logo image.Image, style Style, symbol, px int) {
	size := img.Bounds().Dx()
	limit := int(MaxLogoSize*float64(symbol)) - 2*px

	box := int(math.Round(style.LogoSize*float64(symbol))) - 2*px
	if style.LogoPixels > 0 {
		box = style.LogoPixels
	}

	box = max(1, min(box, limit))

	src := logo.Bounds()
	w, h := box, box

	if src.Dx() >= src.Dy() {
		h = max(1, box*src.Dy()/src.Dx())
	} else {
		w = max(1, box*src.Dx()/src.Dy())
	}

	x0 := (size - w) / 2
	y0 := (size - h) / 2
	dst := image.Rect(x0, y0, x0+w, y0+h)
	pad := dst.Inset(-px)

	fillRounded(img, pad, style.LogoRadius*float64(min(pad.Dx(), pad.Dy())), style.Background)

	scaled := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), logo, src, xdraw.Src, nil)

	if style.LogoRadius > 0 {
		r := style.LogoRadius * float64(min(w, h))

		for y := range h {
			for x := range w {
				if !inRoundedRect(float64(x)+0.5, float64(y)+0.5, float64(w), float64(h), r) {
					scaled.SetNRGBA(x, y, color.NRGBA{})
				}
			}
		}
	}

	xdraw.Draw(img, dst, scaled, image.Point{}, xdraw.Over)
}

// inRoundedRect reports whether (x, y) lies inside a w by h rectangle at the
// origin whose corners are rounded with radius r.
func inRoundedRect(x, y, w, h, r float64) bool {
	if x < 0 || y < 0 || x > w || y > h {
		return false
	}

	r = min(r, w/2, h/2)
	cx := min(max(x, r), w-r)
	cy := min(max(y, r), h-r)

	return math.Hypot(x-cx, y-cy) <= r
}

func fillRounded(img *image.NRGBA, rect image.Rectangle, r float64, c color.NRGBA) {
	if r <= 0 {
		fill(img, rect, c)

		return
	}

	w, h := float64(rect.Dx()), float64(rect.Dy())
	clip := rect.Intersect(img.Bounds())

	for y := clip.Min.Y; y < clip.Max.Y; y++ {
		for x := clip.Min.X; x < clip.Max.X; x++ {
			if inRoundedRect(float64(x-rect.Min.X)+0.5, float64(y-rect.Min.Y)+0.5, w, h, r) {
				img.SetNRGBA(x, y, c)
			}
		}
	}
}

func fill(img *image.NRGBA, rect image.Rectangle, c color.NRGBA) {
	rect = rect.Intersect(img.Bounds())

	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}
