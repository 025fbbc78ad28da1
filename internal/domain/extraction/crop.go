package extraction

import (
	"fmt"
	"image"
	"image/draw"
	"math"

	"github.com/okian/crease/internal/domain/model"
)

// maxSurfacePixels caps a single crop buffer.
const maxSurfacePixels = 1 << 26

// SurfaceFunc allocates a drawable buffer for a w x h crop.
type SurfaceFunc func(w, h int) (draw.Image, error)

// NewRGBASurface is the default SurfaceFunc.
func NewRGBASurface(w, h int) (draw.Image, error) {
	if w <= 0 || h <= 0 || w*h > maxSurfacePixels {
		return nil, fmt.Errorf("cannot allocate %dx%d surface", w, h)
	}
	return image.NewRGBA(image.Rect(0, 0, w, h)), nil
}

// CropRect converts a bbox into an integer rectangle: origin floored, extent
// ceiled and at least one pixel.
func CropRect(b model.BBox) image.Rectangle {
	x := int(math.Floor(b[0]))
	y := int(math.Floor(b[1]))
	w := int(math.Ceil(b[2] - b[0]))
	h := int(math.Ceil(b[3] - b[1]))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return image.Rect(x, y, x+w, y+h)
}

// cropInto renders only r of frame into a fresh surface. Parts of r outside the
// frame stay transparent.
func cropInto(frame image.Image, r image.Rectangle, surface SurfaceFunc) (image.Image, error) {
	dst, err := surface(r.Dx(), r.Dy())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSurface, err)
	}
	if dst == nil {
		return nil, ErrSurface
	}
	origin := frame.Bounds().Min.Add(r.Min)
	draw.Draw(dst, dst.Bounds(), frame, origin, draw.Src)
	return dst, nil
}

// Remap moves crop-local landmarks into full-frame normalized coordinates.
// Z passes through unscaled.
func Remap(lms []model.Landmark, crop image.Rectangle, frame image.Point) []model.Landmark {
	fw, fh := float64(frame.X), float64(frame.Y)
	cw, ch := float64(crop.Dx()), float64(crop.Dy())
	cx, cy := float64(crop.Min.X), float64(crop.Min.Y)

	out := make([]model.Landmark, len(lms))
	for i, lm := range lms {
		out[i] = model.Landmark{
			X:          (lm.X*cw + cx) / fw,
			Y:          (lm.Y*ch + cy) / fh,
			Z:          lm.Z,
			Visibility: lm.Visibility,
		}
	}
	return out
}
