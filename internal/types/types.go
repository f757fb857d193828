package types

import (
	"fmt"
	"image"
	"time"
)

// Bitmap is a raw pixel buffer handed to a recognition engine.
// Rows are tightly packed: stride = Width * BytesPerPixel.
type Bitmap struct {
	Width         int
	Height        int
	BytesPerPixel int
	Pix           []byte
}

// Stride returns the number of bytes per row.
func (b Bitmap) Stride() int {
	return b.Width * b.BytesPerPixel
}

// Validate checks that the dimensions describe the buffer exactly.
func (b Bitmap) Validate() error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d", b.Width, b.Height)
	}
	if b.BytesPerPixel < 1 || b.BytesPerPixel > 4 {
		return fmt.Errorf("unsupported depth %d bytes per pixel", b.BytesPerPixel)
	}
	if want := b.Stride() * b.Height; len(b.Pix) != want {
		return fmt.Errorf("buffer holds %d bytes, %dx%dx%d needs %d", len(b.Pix), b.Width, b.Height, b.BytesPerPixel, want)
	}
	return nil
}

// BitmapFromGray wraps a grayscale image as a 1 byte per pixel bitmap.
// The pixels are copied so the bitmap never aliases the image.
func BitmapFromGray(img *image.Gray) Bitmap {
	r := img.Bounds()
	w, h := r.Dx(), r.Dy()
	pix := make([]byte, w*h)
	for y := 0; y < h; y++ {
		off := img.PixOffset(r.Min.X, r.Min.Y+y)
		copy(pix[y*w:(y+1)*w], img.Pix[off:off+w])
	}
	return Bitmap{Width: w, Height: h, BytesPerPixel: 1, Pix: pix}
}

// Color is an 8-bit RGB triple.
type Color struct {
	R uint8 `yaml:"r"`
	G uint8 `yaml:"g"`
	B uint8 `yaml:"b"`
}

// Within reports whether c lies inside the inclusive per-channel range [lo, hi].
func (c Color) Within(lo, hi Color) bool {
	return c.R >= lo.R && c.R <= hi.R &&
		c.G >= lo.G && c.G <= hi.G &&
		c.B >= lo.B && c.B <= hi.B
}

// Rect is a rectangle in fractions of the frame size: (X1,Y1) top-left, (X2,Y2) bottom-right.
type Rect struct {
	X1 float64 `yaml:"x1"`
	Y1 float64 `yaml:"y1"`
	X2 float64 `yaml:"x2"`
	Y2 float64 `yaml:"y2"`
}

// AspectRect overrides a region's rectangle for frames of a given aspect ratio.
type AspectRect struct {
	Aspect string `yaml:"aspect"` // "16:10", "21:9", ...
	Rect   Rect   `yaml:"rect"`
}

// MatchRegion describes where a cue is drawn and what it looks like.
type MatchRegion struct {
	Name      string       `yaml:"name"`
	Rect      Rect         `yaml:"rect"`
	Variants  []AspectRect `yaml:"variants,omitempty"`
	Lower     Color        `yaml:"lower"`
	Upper     Color        `yaml:"upper"`
	Target    string       `yaml:"target"`
	// Tolerance is the largest fuzzy distance ratio that still counts as a
	// match. Nil inherits the configured default; 0 asks for an exact match.
	Tolerance *float64 `yaml:"tolerance,omitempty"`
}

// MaxDistance returns the region's tolerance, or fallback when it has none.
func (r MatchRegion) MaxDistance(fallback float64) float64 {
	if r.Tolerance == nil {
		return fallback
	}
	return *r.Tolerance
}

// EventKind is the direction of a cue transition.
type EventKind int

const (
	CueAppeared EventKind = iota + 1
	CueDisappeared
)

func (k EventKind) String() string {
	switch k {
	case CueAppeared:
		return "appeared"
	case CueDisappeared:
		return "disappeared"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is an edge-triggered cue transition.
type Event struct {
	Kind   EventKind
	// Tick is the 0-based index of the detection pass that saw the edge,
	// so [absent, absent, present, present, absent] yields 2 and 4.
	Tick   int
	At     time.Time
	Region string // region that matched (appeared events only)
	Text   string // recognized text that matched
	Forced bool   // final release emitted on shutdown
}
