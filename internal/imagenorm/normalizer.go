// Package imagenorm turns user photos into bounded JPEG assets suitable for
// upload. The transform is deterministic and has no network dependency.
package imagenorm

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"postergen/internal/domain"
	"postergen/internal/infra"
)

const (
	DefaultMaxSide = 1200
	DefaultQuality = 85
)

// Options configures the Normalizer.
type Options struct {
	MaxSide int
	Quality int
	Logger  *infra.Logger
}

// Normalizer decodes, bounds and re-encodes images.
type Normalizer struct {
	maxSide int
	quality int
	logger  *infra.Logger
}

// New constructs a Normalizer, falling back to the defaults for unset or
// out-of-range values.
func New(opts Options) *Normalizer {
	maxSide := opts.MaxSide
	if maxSide <= 0 {
		maxSide = DefaultMaxSide
	}
	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &Normalizer{maxSide: maxSide, quality: quality, logger: logger}
}

// MaxSide returns the configured dimension bound.
func (n *Normalizer) MaxSide() int { return n.maxSide }

// Quality returns the configured JPEG quality.
func (n *Normalizer) Quality() int { return n.quality }

// Normalize decodes raw, scales it down so neither side exceeds MaxSide and
// encodes it as JPEG at the configured quality.
func (n *Normalizer) Normalize(ctx context.Context, raw domain.RawImage) (domain.NormalizedAsset, error) {
	if err := ctx.Err(); err != nil {
		return domain.NormalizedAsset{}, err
	}
	if err := raw.Validate(); err != nil {
		return domain.NormalizedAsset{}, err
	}
	src, format, err := image.Decode(bytes.NewReader(raw.Data))
	if err != nil {
		return domain.NormalizedAsset{}, domain.NewError(domain.KindDecode, "image could not be decoded", fmt.Errorf("imagenorm: decode: %w", err))
	}
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return domain.NormalizedAsset{}, domain.NewError(domain.KindDecode, "image has no pixels", nil)
	}
	tw, th := TargetSize(w, h, n.maxSide)

	if err := ctx.Err(); err != nil {
		return domain.NormalizedAsset{}, err
	}

	// JPEG has no alpha channel; transparent regions become white.
	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if tw == w && th == h {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
	} else {
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: n.quality}); err != nil {
		return domain.NormalizedAsset{}, domain.NewError(domain.KindDecode, "image could not be encoded", fmt.Errorf("imagenorm: encode: %w", err))
	}

	n.logger.Debug().
		Str("format", format).
		Int("source_width", w).
		Int("source_height", h).
		Int("width", tw).
		Int("height", th).
		Int64("source_bytes", raw.Size).
		Int("bytes", buf.Len()).
		Msg("imagenorm: normalized image")

	return domain.NormalizedAsset{
		Data:         buf.Bytes(),
		Width:        tw,
		Height:       th,
		SourceWidth:  w,
		SourceHeight: h,
		Quality:      n.quality,
	}, nil
}

// TargetSize returns the dimensions of a w×h image bounded by maxSide. Images
// already within the bound are returned unchanged.
func TargetSize(w, h, maxSide int) (int, int) {
	longest := w
	if h > longest {
		longest = h
	}
	if maxSide <= 0 || longest <= maxSide {
		return w, h
	}
	scale := float64(maxSide) / float64(longest)
	tw := int(math.Round(float64(w) * scale))
	th := int(math.Round(float64(h) * scale))
	if w >= h {
		tw = maxSide
	} else {
		th = maxSide
	}
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}
	return tw, th
}
