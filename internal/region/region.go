// Package region turns a screen area into a binarized bitmap and asks the
// engine pool what it says.
package region

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"unicode"

	"golang.org/x/image/draw"

	"github.com/andresmejia3/hush/internal/pool"
	"github.com/andresmejia3/hush/internal/tesseract"
	"github.com/andresmejia3/hush/internal/types"
)

// ErrRegion is wrapped by every crop or mask failure.
var ErrRegion = errors.New("region: extract failed")

// aspectTolerance is how close a frame's width/height ratio must be to a variant's.
const aspectTolerance = 0.01

// Recognizer is the part of the engine pool the matcher needs.
type Recognizer interface {
	Recognize(ctx context.Context, job pool.Job) (string, error)
}

// PixelRect maps the region's fractional rectangle onto a frame with the given
// bounds. A variant whose aspect ratio matches the frame's takes precedence
// over the region's default rectangle. Coordinates are truncated.
func PixelRect(bounds image.Rectangle, region types.MatchRegion) (image.Rectangle, error) {
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return image.Rectangle{}, fmt.Errorf("%w: empty frame", ErrRegion)
	}

	r := SelectRect(w, h, region)
	for _, v := range []float64{r.X1, r.Y1, r.X2, r.Y2} {
		if v < 0 || v > 1 {
			return image.Rectangle{}, fmt.Errorf("%w: %q coordinate %v outside [0,1]", ErrRegion, region.Name, v)
		}
	}
	if r.X2 <= r.X1 || r.Y2 <= r.Y1 {
		return image.Rectangle{}, fmt.Errorf("%w: %q rectangle is inverted or empty", ErrRegion, region.Name)
	}

	px := image.Rect(
		bounds.Min.X+int(r.X1*float64(w)),
		bounds.Min.Y+int(r.Y1*float64(h)),
		bounds.Min.X+int(r.X2*float64(w)),
		bounds.Min.Y+int(r.Y2*float64(h)),
	)
	if px.Empty() {
		return image.Rectangle{}, fmt.Errorf("%w: %q is smaller than a pixel on a %dx%d frame", ErrRegion, region.Name, w, h)
	}
	return px, nil
}

// SelectRect returns the rectangle the region uses on a w x h frame.
func SelectRect(w, h int, region types.MatchRegion) types.Rect {
	frame := float64(w) / float64(h)
	for _, v := range region.Variants {
		ratio, err := ParseAspect(v.Aspect)
		if err != nil {
			continue
		}
		if diff := ratio - frame; diff < aspectTolerance && diff > -aspectTolerance {
			return v.Rect
		}
	}
	return region.Rect
}

// ParseAspect parses "W:H" into W/H.
func ParseAspect(s string) (float64, error) {
	ws, hs, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("aspect %q: want W:H", s)
	}
	w, err := strconv.ParseFloat(strings.TrimSpace(ws), 64)
	if err != nil {
		return 0, fmt.Errorf("aspect %q: %w", s, err)
	}
	h, err := strconv.ParseFloat(strings.TrimSpace(hs), 64)
	if err != nil {
		return 0, fmt.Errorf("aspect %q: %w", s, err)
	}
	if w <= 0 || h <= 0 {
		return 0, fmt.Errorf("aspect %q: sides must be positive", s)
	}
	return w / h, nil
}

// Mask crops rect out of frame and marks every pixel whose RGB value lies
// within [lower, upper] (inclusive, per channel) as 255 and everything else as 0.
// The result starts at the origin and shares no memory with frame.
func Mask(frame image.Image, rect image.Rectangle, lower, upper types.Color) (*image.Gray, error) {
	if rect.Empty() || !rect.In(frame.Bounds()) {
		return nil, fmt.Errorf("%w: %v not inside frame %v", ErrRegion, rect, frame.Bounds())
	}
	out, err := maskRect(frame, rect, lower, upper)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegion, err)
	}
	return out, nil
}

// Whitelist returns the distinct non-space runes of target, sorted.
func Whitelist(target string) string {
	var runes []rune
	for _, r := range target {
		if !unicode.IsSpace(r) {
			runes = append(runes, r)
		}
	}
	slices.Sort(runes)
	return string(slices.Compact(runes))
}

// Matcher extracts the text inside a MatchRegion.
type Matcher struct {
	Pool Recognizer
	// Scale enlarges the mask by an integer factor before recognition; values <= 1 disable it.
	Scale int
	// DebugDir, when set, receives every masked bitmap as a PNG.
	DebugDir string
	Logger   *slog.Logger

	seq atomic.Int64
}

func (m *Matcher) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// Extract returns the recognized text inside region, or "" if the region could
// not be cut out of the frame or nothing was recognized. It never fails.
func (m *Matcher) Extract(ctx context.Context, frame image.Image, region types.MatchRegion) string {
	bm, err := m.Bitmap(frame, region)
	if err != nil {
		m.logger().Debug("region skipped", "region", region.Name, "err", err)
		return ""
	}

	text, err := m.Pool.Recognize(ctx, pool.Job{
		Bitmap:    bm,
		Whitelist: Whitelist(region.Target),
		Mode:      tesseract.PSMAuto,
	})
	if err != nil {
		m.logger().Debug("recognition skipped", "region", region.Name, "err", err)
		return ""
	}
	return text
}

// Bitmap crops, masks and scales region out of frame.
func (m *Matcher) Bitmap(frame image.Image, region types.MatchRegion) (types.Bitmap, error) {
	rect, err := PixelRect(frame.Bounds(), region)
	if err != nil {
		return types.Bitmap{}, err
	}
	mask, err := Mask(frame, rect, region.Lower, region.Upper)
	if err != nil {
		return types.Bitmap{}, err
	}

	if m.Scale > 1 {
		big := image.NewGray(image.Rect(0, 0, mask.Rect.Dx()*m.Scale, mask.Rect.Dy()*m.Scale))
		// Nearest neighbour keeps the mask strictly black and white.
		draw.NearestNeighbor.Scale(big, big.Rect, mask, mask.Rect, draw.Src, nil)
		mask = big
	}

	if m.DebugDir != "" {
		m.dump(region.Name, mask)
	}
	return types.BitmapFromGray(mask), nil
}

func (m *Matcher) dump(name string, img *image.Gray) {
	path := filepath.Join(m.DebugDir, fmt.Sprintf("%s_%06d.png", name, m.seq.Add(1)))
	f, err := os.Create(path)
	if err != nil {
		m.logger().Warn("debug dump failed", "path", path, "err", err)
		return
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		m.logger().Warn("debug dump failed", "path", path, "err", err)
	}
}
