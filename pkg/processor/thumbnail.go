package processor

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

const thumbnailVersion = 1

// Thumbnail scales and crops an image so that it fills the target box exactly.
type Thumbnail struct {
	width  int
	height int
}

var _ Processor = (*Thumbnail)(nil)

// NewThumbnail creates a Thumbnail processor for a width×height box.
func NewThumbnail(width, height int) *Thumbnail {
	return &Thumbnail{width: width, height: height}
}

func (t *Thumbnail) Identifier() string {
	return fmt.Sprintf("thumb_w%d_h%d_v%d", t.width, t.height, thumbnailVersion)
}

func (t *Thumbnail) Process(img image.Image) image.Image {
	if img == nil || t.width <= 0 || t.height <= 0 || img.Bounds().Empty() {
		return nil
	}
	return imaging.Thumbnail(img, t.width, t.height, imaging.Lanczos)
}
