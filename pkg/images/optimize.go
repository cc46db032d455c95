// Optional e-reader optimization of localized images: downscale, flatten,
// grayscale, JPEG re-encode.
package images

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	_ "image/png"
	"math"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// OptimizeOpts controls image re-encoding.
type OptimizeOpts struct {
	MaxWidth  int  // max pixel width, height scales proportionally; default 800
	Quality   int  // JPEG quality 1-95; default 60
	Grayscale bool // convert to grayscale
}

// resize downscales an image using BiLinear resampling.
func resize(src image.Image, dstW, dstH int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, dstW, dstH))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return dst
}

func toGrayscale(src image.Image) *image.Gray {
	b := src.Bounds()
	gray := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(src.At(x, y)))
		}
	}
	return gray
}

// flattenAlpha composites src onto a white background.
func flattenAlpha(src image.Image) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(b)
	white := image.NewUniform(color.White)
	draw.Draw(dst, b, white, image.Point{}, draw.Src)
	draw.Draw(dst, b, src, b.Min, draw.Over)
	return dst
}

func isAnimatedGIF(data []byte) bool {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return false
	}
	return len(g.Image) > 1
}

// Optimize re-encodes an image as a downscaled JPEG. Returns ok=false for
// anything that should pass through untouched: undecodable formats
// (SVG, AVIF), animated GIFs, and re-encodings that came out larger than
// the original.
func Optimize(data []byte, opts OptimizeOpts) ([]byte, bool) {
	if isAnimatedGIF(data) {
		return nil, false
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false
	}

	flat := flattenAlpha(img)

	maxWidth := opts.MaxWidth
	if maxWidth <= 0 {
		maxWidth = 800
	}
	b := flat.Bounds()
	if w, h := b.Dx(), b.Dy(); w > maxWidth {
		newH := int(math.Round(float64(h) * float64(maxWidth) / float64(w)))
		if newH < 1 {
			newH = 1
		}
		flat = resize(flat, maxWidth, newH)
	}

	var encImg image.Image = flat
	if opts.Grayscale {
		encImg = toGrayscale(flat)
	}

	quality := opts.Quality
	if quality <= 0 {
		quality = 60
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, encImg, &jpeg.Options{Quality: quality}); err != nil {
		return nil, false
	}
	if buf.Len() >= len(data) {
		return nil, false
	}
	return buf.Bytes(), true
}
