package processor

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"

	"github.com/disintegration/imaging"
)

// roundCornerVersion must be bumped whenever the output of RoundCorner changes
// so previously cached variants stop matching.
const roundCornerVersion = 1

// RoundCorner scales an image to a fixed size and clips it to a rounded rectangle.
// Pixels outside the rounded rectangle become fully transparent.
type RoundCorner struct {
	width  int
	height int
	radius float64
}

var _ Processor = (*RoundCorner)(nil)

// NewRoundCorner creates a RoundCorner processor for the given target size and
// corner radius. The radius is clamped to half of the shorter side when processing.
func NewRoundCorner(width, height int, radius float64) *RoundCorner {
	return &RoundCorner{width: width, height: height, radius: radius}
}

// Identifier returns e.g. "round_w30_h30_cR15_v1".
func (r *RoundCorner) Identifier() string {
	return fmt.Sprintf("round_w%d_h%d_cR%s_v%d",
		r.width, r.height, strconv.FormatFloat(r.radius, 'f', -1, 64), roundCornerVersion)
}

// Process returns nil for a nil image or a non-positive target size.
func (r *RoundCorner) Process(img image.Image) image.Image {
	if img == nil || r.width <= 0 || r.height <= 0 {
		return nil
	}
	if img.Bounds().Empty() {
		return nil
	}

	dst := imaging.Resize(img, r.width, r.height, imaging.Lanczos)

	radius := math.Max(0, math.Min(r.radius, float64(min(r.width, r.height))/2))
	if radius == 0 {
		return dst
	}

	w, h := float64(r.width), float64(r.height)
	for y := 0; y < r.height; y++ {
		for x := 0; x < r.width; x++ {
			if !insideRoundedRect(float64(x)+0.5, float64(y)+0.5, w, h, radius) {
				dst.SetNRGBA(x, y, color.NRGBA{})
			}
		}
	}
	return dst
}

// insideRoundedRect reports whether (px, py) lies inside the w×h rectangle with
// corners rounded by radius.
func insideRoundedRect(px, py, w, h, radius float64) bool {
	cx := math.Min(math.Max(px, radius), w-radius)
	cy := math.Min(math.Max(py, radius), h-radius)
	dx, dy := px-cx, py-cy
	return dx*dx+dy*dy <= radius*radius
}
