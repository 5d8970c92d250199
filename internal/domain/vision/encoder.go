package vision

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"

	"golang.org/x/image/draw"

	"github.com/matiasleandrokruk/camvision/internal/infra/capture"
)

// DefaultQuality is used when the requested JPEG quality is outside [1,100].
const DefaultQuality = 80

// EncodedImage is a base64-encoded JPEG.
type EncodedImage string

// Encoder turns pixels into an EncodedImage. ok=false means "drop this
// frame"; it is not an error.
type Encoder interface {
	Encode(pixels []capture.Pixel, width, height, quality int) (img EncodedImage, ok bool)
}

// ClampQuality returns quality when it is within [1,100] and DefaultQuality otherwise.
func ClampQuality(quality int) int {
	if quality < 1 || quality > 100 {
		return DefaultQuality
	}
	return quality
}

// JPEGEncoder encodes with image/jpeg. When MaxDimension > 0, frames whose
// longer side exceeds it are downscaled first.
type JPEGEncoder struct {
	MaxDimension int
}

// Encode implements Encoder.
func (e JPEGEncoder) Encode(pixels []capture.Pixel, width, height, quality int) (EncodedImage, bool) {
	if width <= 0 || height <= 0 || len(pixels) != width*height {
		return "", false
	}

	var img image.Image = toRGBA(pixels, width, height)
	if e.MaxDimension > 0 && max(width, height) > e.MaxDimension {
		img = downscale(img, width, height, e.MaxDimension)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: ClampQuality(quality)}); err != nil {
		return "", false
	}
	if buf.Len() == 0 {
		return "", false
	}
	return EncodedImage(base64.StdEncoding.EncodeToString(buf.Bytes())), true
}

func toRGBA(pixels []capture.Pixel, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			p := pixels[y*width+x]
			img.SetRGBA(x, y, color.RGBA{R: p.R, G: p.G, B: p.B, A: 0xff})
		}
	}
	return img
}

func downscale(src image.Image, width, height, maxDim int) image.Image {
	w, h := maxDim, height*maxDim/width
	if height > width {
		w, h = width*maxDim/height, maxDim
	}
	dst := image.NewRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}
