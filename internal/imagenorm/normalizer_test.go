package imagenorm

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"postergen/internal/domain"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	return img
}

func TestTargetSize(t *testing.T) {
	tests := []struct {
		name         string
		w, h, max    int
		wantW, wantH int
	}{
		{name: "landscape", w: 4000, h: 3000, max: 1200, wantW: 1200, wantH: 900},
		{name: "portrait", w: 3000, h: 4000, max: 1200, wantW: 900, wantH: 1200},
		{name: "square", w: 2400, h: 2400, max: 1200, wantW: 1200, wantH: 1200},
		{name: "within bound", w: 1200, h: 800, max: 1200, wantW: 1200, wantH: 800},
		{name: "small image untouched", w: 64, h: 48, max: 1200, wantW: 64, wantH: 48},
		{name: "rounding", w: 1999, h: 1333, max: 1080, wantW: 1080, wantH: 720},
		{name: "thin strip keeps one pixel", w: 5000, h: 1, max: 1200, wantW: 1200, wantH: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gotW, gotH := TargetSize(tc.w, tc.h, tc.max)
			if gotW != tc.wantW || gotH != tc.wantH {
				t.Fatalf("TargetSize(%d,%d,%d) = %dx%d, want %dx%d", tc.w, tc.h, tc.max, gotW, gotH, tc.wantW, tc.wantH)
			}
		})
	}
}

func TestNormalizeDoesNotUpscale(t *testing.T) {
	n := New(Options{MaxSide: 1200})
	raw := domain.NewRawImage("small.png", "image/png", encodePNG(t, gradient(640, 480)))

	asset, err := n.Normalize(context.Background(), raw)
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}
	if asset.Width != 640 || asset.Height != 480 {
		t.Fatalf("dimensions = %dx%d, want 640x480", asset.Width, asset.Height)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(asset.Data))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if format != "jpeg" {
		t.Fatalf("format = %q, want jpeg", format)
	}
	if cfg.Width != 640 || cfg.Height != 480 {
		t.Fatalf("encoded dimensions = %dx%d, want 640x480", cfg.Width, cfg.Height)
	}
	if asset.Quality != DefaultQuality {
		t.Fatalf("quality = %d, want %d", asset.Quality, DefaultQuality)
	}
}

func TestNormalizeBoundsLargeImage(t *testing.T) {
	n := New(Options{MaxSide: 1200, Quality: 85})
	raw := domain.NewRawImage("big.jpg", "image/jpeg", encodeJPEG(t, image.NewGray(image.Rect(0, 0, 4000, 3000))))

	asset, err := n.Normalize(context.Background(), raw)
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}
	if asset.Width != 1200 || asset.Height != 900 {
		t.Fatalf("dimensions = %dx%d, want 1200x900", asset.Width, asset.Height)
	}
	if asset.SourceWidth != 4000 || asset.SourceHeight != 3000 {
		t.Fatalf("source dimensions = %dx%d, want 4000x3000", asset.SourceWidth, asset.SourceHeight)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(asset.Data))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if cfg.Width != 1200 || cfg.Height != 900 {
		t.Fatalf("encoded dimensions = %dx%d, want 1200x900", cfg.Width, cfg.Height)
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	n := New(Options{MaxSide: 300})
	raw := domain.NewRawImage("photo.png", "image/png", encodePNG(t, gradient(800, 500)))

	first, err := n.Normalize(context.Background(), raw)
	if err != nil {
		t.Fatalf("first Normalize error: %v", err)
	}
	second, err := n.Normalize(context.Background(), raw)
	if err != nil {
		t.Fatalf("second Normalize error: %v", err)
	}
	if !bytes.Equal(first.Data, second.Data) {
		t.Fatalf("normalize output differs between calls")
	}
	if first.Width != 300 || first.Height != 188 {
		t.Fatalf("dimensions = %dx%d, want 300x188", first.Width, first.Height)
	}
}

func TestNormalizeFlattensTransparency(t *testing.T) {
	n := New(Options{})
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	raw := domain.NewRawImage("clear.png", "image/png", encodePNG(t, img))

	asset, err := n.Normalize(context.Background(), raw)
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}
	out, err := jpeg.Decode(bytes.NewReader(asset.Data))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	r, g, b, _ := out.At(16, 16).RGBA()
	if r>>8 < 240 || g>>8 < 240 || b>>8 < 240 {
		t.Fatalf("transparent pixel rendered as (%d,%d,%d), want near white", r>>8, g>>8, b>>8)
	}
}

func TestNormalizeDecodeError(t *testing.T) {
	n := New(Options{})
	raw := domain.NewRawImage("broken.png", "image/png", []byte("definitely not a png"))

	_, err := n.Normalize(context.Background(), raw)
	if domain.KindOf(err) != domain.KindDecode {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestNormalizeRejectsNonImage(t *testing.T) {
	n := New(Options{})
	raw := domain.NewRawImage("notes.txt", "text/plain", []byte("hello"))

	_, err := n.Normalize(context.Background(), raw)
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNormalizeHonorsCancellation(t *testing.T) {
	n := New(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	raw := domain.NewRawImage("photo.png", "image/png", encodePNG(t, gradient(10, 10)))

	if _, err := n.Normalize(ctx, raw); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewFallsBackToDefaults(t *testing.T) {
	n := New(Options{MaxSide: -1, Quality: 400})
	if n.MaxSide() != DefaultMaxSide {
		t.Fatalf("MaxSide = %d, want %d", n.MaxSide(), DefaultMaxSide)
	}
	if n.Quality() != DefaultQuality {
		t.Fatalf("Quality = %d, want %d", n.Quality(), DefaultQuality)
	}
}
