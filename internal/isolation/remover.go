package isolation

import (
	"context"
	"image"
	"image/color"
	"sort"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

// BackgroundRemover returns img with background pixels made transparent.
// inference.Client implements it with the model server's segmentation model.
type BackgroundRemover interface {
	RemoveBackground(ctx context.Context, img image.Image) (image.Image, error)
}

// ColorKeyRemover removes backgrounds locally by keying out pixels close to the
// dominant border colour. It suits catalog shots on plain backdrops and keeps
// the service usable without a segmentation model.
type ColorKeyRemover struct {
	// Tolerance is the CIE Lab distance under which a pixel counts as background.
	Tolerance float64
	// Feather is the Gaussian blur radius applied to the mask edges, 0 disables it.
	Feather float64
}

// NewColorKeyRemover returns a remover with sensible defaults
func NewColorKeyRemover() *ColorKeyRemover {
	return &ColorKeyRemover{Tolerance: 0.12, Feather: 1.5}
}

// RemoveBackground never fails; ctx is accepted to satisfy BackgroundRemover.
func (r *ColorKeyRemover) RemoveBackground(_ context.Context, img image.Image) (image.Image, error) {
	src := imaging.Clone(img)
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	key := borderColor(src)

	mask := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c, ok := colorful.MakeColor(src.NRGBAAt(x, y))
			if !ok {
				continue
			}
			if c.DistanceLab(key) >= r.Tolerance {
				mask.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	alpha := image.Image(mask)
	if r.Feather > 0 {
		alpha = blur.Gaussian(mask, r.Feather)
	}

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px := src.NRGBAAt(x, y)
			m, _, _, _ := alpha.At(x, y).RGBA()
			// a hard zero in the unblurred mask stays transparent
			if mask.GrayAt(x, y).Y == 0 && m>>8 < 128 {
				px.A = 0
			} else {
				px.A = uint8(uint32(px.A) * (m >> 8) / 255)
			}
			out.SetNRGBA(x, y, px)
		}
	}

	return out, nil
}

// borderColor returns the per-channel median of the outermost pixel ring.
func borderColor(img *image.NRGBA) colorful.Color {
	b := img.Bounds()
	var rs, gs, bs []float64
	add := func(x, y int) {
		c, ok := colorful.MakeColor(img.NRGBAAt(x, y))
		if !ok {
			return
		}
		rs = append(rs, c.R)
		gs = append(gs, c.G)
		bs = append(bs, c.B)
	}

	for x := b.Min.X; x < b.Max.X; x++ {
		add(x, b.Min.Y)
		add(x, b.Max.Y-1)
	}
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		add(b.Min.X, y)
		add(b.Max.X-1, y)
	}

	if len(rs) == 0 {
		return colorful.Color{R: 1, G: 1, B: 1}
	}
	return colorful.Color{R: median(rs), G: median(gs), B: median(bs)}
}

func median(xs []float64) float64 {
	sort.Float64s(xs)
	return xs[len(xs)/2]
}
