//go:build !gocv

package region

import (
	"image"

	"github.com/andresmejia3/hush/internal/types"
)

// MaskBackend names the implementation behind Mask.
const MaskBackend = "go"

func maskRect(frame image.Image, rect image.Rectangle, lower, upper types.Color) (*image.Gray, error) {
	out := image.NewGray(image.Rect(0, 0, rect.Dx(), rect.Dy()))

	switch src := frame.(type) {
	case *image.RGBA:
		maskPix(out, src.Pix, src.Stride, src.PixOffset(rect.Min.X, rect.Min.Y), lower, upper)
	case *image.NRGBA:
		maskPix(out, src.Pix, src.Stride, src.PixOffset(rect.Min.X, rect.Min.Y), lower, upper)
	default:
		for y := 0; y < rect.Dy(); y++ {
			row := out.Pix[y*out.Stride:]
			for x := 0; x < rect.Dx(); x++ {
				r, g, b, _ := frame.At(rect.Min.X+x, rect.Min.Y+y).RGBA()
				c := types.Color{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8)}
				if c.Within(lower, upper) {
					row[x] = 0xff
				}
			}
		}
	}
	return out, nil
}

// maskPix walks 4-byte RGBA rows starting at off.
func maskPix(out *image.Gray, pix []byte, stride, off int, lower, upper types.Color) {
	w, h := out.Rect.Dx(), out.Rect.Dy()
	for y := 0; y < h; y++ {
		src := pix[off+y*stride : off+y*stride+w*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+w]
		for x := range dst {
			c := types.Color{R: src[x*4], G: src[x*4+1], B: src[x*4+2]}
			if c.Within(lower, upper) {
				dst[x] = 0xff
			}
		}
	}
}
