//go:build gocv

package region

import (
	"fmt"
	"image"
	"runtime"

	"gocv.io/x/gocv"
	"golang.org/x/image/draw"

	"github.com/andresmejia3/hush/internal/types"
)

// MaskBackend names the implementation behind Mask.
const MaskBackend = "gocv"

// maskRect wraps the frame's pixels in a Mat without copying when it can, cuts
// out rect and thresholds it with inRange. Channels stay in RGBA order.
func maskRect(frame image.Image, rect image.Rectangle, lower, upper types.Color) (*image.Gray, error) {
	pix, bounds := rgbaPix(frame, rect)

	src, err := gocv.NewMatFromBytes(bounds.Dy(), bounds.Dx(), gocv.MatTypeCV8UC4, pix)
	if err != nil {
		return nil, fmt.Errorf("wrap frame: %w", err)
	}
	defer src.Close()

	roi := src.Region(rect.Sub(bounds.Min))
	defer roi.Close()

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.InRangeWithScalar(roi,
		gocv.NewScalar(float64(lower.R), float64(lower.G), float64(lower.B), 0),
		gocv.NewScalar(float64(upper.R), float64(upper.G), float64(upper.B), 255),
		&mask)

	out := image.NewGray(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	data := mask.ToBytes()
	if len(data) != len(out.Pix) {
		return nil, fmt.Errorf("inRange returned %d bytes for a %dx%d region", len(data), rect.Dx(), rect.Dy())
	}
	copy(out.Pix, data)
	runtime.KeepAlive(pix)
	return out, nil
}

// rgbaPix returns tightly packed RGBA bytes and the area they cover. Packed
// RGBA and NRGBA frames are shared as they are; anything else has just rect
// converted.
func rgbaPix(frame image.Image, rect image.Rectangle) ([]byte, image.Rectangle) {
	switch src := frame.(type) {
	case *image.RGBA:
		if src.Stride == 4*src.Rect.Dx() {
			return src.Pix[:src.Stride*src.Rect.Dy()], src.Rect
		}
	case *image.NRGBA:
		if src.Stride == 4*src.Rect.Dx() {
			return src.Pix[:src.Stride*src.Rect.Dy()], src.Rect
		}
	}
	crop := image.NewRGBA(rect)
	draw.Draw(crop, rect, frame, rect.Min, draw.Src)
	return crop.Pix, rect
}
