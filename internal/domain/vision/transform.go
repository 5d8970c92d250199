// Package vision implements the capture → transform → dispatch pipeline:
// per-frame geometric correction, JPEG encoding, batching, the in-flight
// limited Dispatcher and the StreamController state machine.
package vision

import (
	"fmt"

	"github.com/matiasleandrokruk/camvision/internal/infra/capture"
)

// NormalizeAngle maps any integer angle into [0, 360).
func NormalizeAngle(angle int) int {
	return ((angle % 360) + 360) % 360
}

// Transform applies, in order, an optional vertical flip, a rotation by the
// device-reported angle and an optional horizontal mirror. At 90° source
// pixel (x,y) lands on (y, newH-1-x); 270° is its inverse. Angles that are
// not multiples of 90 after normalization leave the pixels unrotated.
// The input slice is never modified; len(pixels) must equal width*height.
func Transform(pixels []capture.Pixel, width, height int, flipVertically bool, rotationAngle int, mirrorHorizontally bool) ([]capture.Pixel, int, int) {
	if len(pixels) != width*height {
		panic(fmt.Sprintf("vision: transform got %d pixels for %dx%d", len(pixels), width, height))
	}

	work := make([]capture.Pixel, len(pixels))
	copy(work, pixels)
	if flipVertically {
		flipRows(work, width, height)
	}

	angle := NormalizeAngle(rotationAngle)
	newW, newH := width, height
	if angle == 90 || angle == 270 {
		newW, newH = height, width
	}

	out := work
	if angle == 90 || angle == 180 || angle == 270 {
		out = make([]capture.Pixel, len(work))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				var dx, dy int
				switch angle {
				case 90:
					dx, dy = y, newH-1-x
				case 180:
					dx, dy = newW-1-x, newH-1-y
				case 270:
					dx, dy = newW-1-y, x
				}
				out[dy*newW+dx] = work[y*width+x]
			}
		}
	}

	if mirrorHorizontally {
		mirrorRows(out, newW, newH)
	}
	return out, newW, newH
}

func flipRows(p []capture.Pixel, w, h int) {
	for top, bottom := 0, h-1; top < bottom; top, bottom = top+1, bottom-1 {
		a := p[top*w : (top+1)*w]
		b := p[bottom*w : (bottom+1)*w]
		for i := range a {
			a[i], b[i] = b[i], a[i]
		}
	}
}

func mirrorRows(p []capture.Pixel, w, h int) {
	for y := 0; y < h; y++ {
		row := p[y*w : (y+1)*w]
		for l, r := 0, w-1; l < r; l, r = l+1, r-1 {
			row[l], row[r] = row[r], row[l]
		}
	}
}
