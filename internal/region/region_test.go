package region

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/hush/internal/pool"
	"github.com/andresmejia3/hush/internal/types"
)

var (
	gold  = color.RGBA{R: 240, G: 190, B: 5, A: 255}
	lower = types.Color{R: 230, G: 170, B: 0}
	upper = types.Color{R: 255, G: 210, B: 10}
)

// synthetic returns a w x h dark frame with a gold block at text.
func synthetic(w, h int, text image.Rectangle) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: 30, G: 30, B: 40, A: 255}
			if image.Pt(x, y).In(text) {
				c = gold
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestMaskMarksExactlyTheColoredPixels(t *testing.T) {
	text := image.Rect(12, 6, 20, 9)
	frame := synthetic(40, 20, text)
	crop := image.Rect(10, 5, 30, 15)

	run := func(t *testing.T, src image.Image) {
		out, err := Mask(src, crop, lower, upper)
		if err != nil {
			t.Fatalf("Mask failed: %v", err)
		}
		if out.Bounds() != image.Rect(0, 0, 20, 10) {
			t.Fatalf("Unexpected bounds %v", out.Bounds())
		}
		for y := 0; y < 10; y++ {
			for x := 0; x < 20; x++ {
				want := uint8(0)
				if image.Pt(x+crop.Min.X, y+crop.Min.Y).In(text) {
					want = 255
				}
				if got := out.GrayAt(x, y).Y; got != want {
					t.Fatalf("pixel (%d,%d) = %d, want %d", x, y, got, want)
				}
			}
		}
	}

	t.Run("RGBA", func(t *testing.T) { run(t, frame) })
	t.Run("NRGBA", func(t *testing.T) {
		n := image.NewNRGBA(frame.Bounds())
		copy(n.Pix, frame.Pix)
		run(t, n)
	})
	t.Run("Generic", func(t *testing.T) {
		run(t, opaque{frame})
	})
}

// opaque hides the concrete type so Mask takes the generic path.
type opaque struct{ image.Image }

func TestMaskBoundsAreInclusive(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 1))
	img.SetRGBA(0, 0, color.RGBA{R: lower.R, G: lower.G, B: lower.B, A: 255})
	img.SetRGBA(1, 0, color.RGBA{R: upper.R, G: upper.G, B: upper.B, A: 255})
	img.SetRGBA(2, 0, color.RGBA{R: upper.R, G: upper.G, B: upper.B + 1, A: 255})

	out, err := Mask(img, img.Bounds(), lower, upper)
	if err != nil {
		t.Fatal(err)
	}
	if got := out.Pix; got[0] != 255 || got[1] != 255 || got[2] != 0 {
		t.Errorf("Expected [255 255 0], got %v", got)
	}
}

// TestMaskAgreesWithColorWithin runs under both mask backends (go test and
// go test -tags gocv) and checks them against Color.Within pixel by pixel.
func TestMaskAgreesWithColorWithin(t *testing.T) {
	t.Logf("mask backend: %s", MaskBackend)
	rng := rand.New(rand.NewSource(1))
	frame := image.NewRGBA(image.Rect(0, 0, 64, 36))
	for i := 0; i < len(frame.Pix); i += 4 {
		// Half the pixels near the gold range, half anywhere.
		if rng.Intn(2) == 0 {
			frame.Pix[i] = uint8(220 + rng.Intn(36))
			frame.Pix[i+1] = uint8(160 + rng.Intn(60))
			frame.Pix[i+2] = uint8(rng.Intn(20))
		} else {
			frame.Pix[i] = uint8(rng.Intn(256))
			frame.Pix[i+1] = uint8(rng.Intn(256))
			frame.Pix[i+2] = uint8(rng.Intn(256))
		}
		frame.Pix[i+3] = 255
	}
	crop := image.Rect(7, 20, 41, 33)

	check := func(t *testing.T, src image.Image) {
		out, err := Mask(src, crop, lower, upper)
		if err != nil {
			t.Fatal(err)
		}
		for y := 0; y < crop.Dy(); y++ {
			for x := 0; x < crop.Dx(); x++ {
				r, g, b, _ := src.At(crop.Min.X+x, crop.Min.Y+y).RGBA()
				c := types.Color{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8)}
				want := uint8(0)
				if c.Within(lower, upper) {
					want = 255
				}
				if got := out.GrayAt(x, y).Y; got != want {
					t.Fatalf("pixel (%d,%d) colour %v = %d, want %d", x, y, c, got, want)
				}
			}
		}
	}

	t.Run("RGBA", func(t *testing.T) { check(t, frame) })
	t.Run("Full width sub-image", func(t *testing.T) {
		check(t, frame.SubImage(image.Rect(0, 10, 64, 36)))
	})
	t.Run("Narrow sub-image", func(t *testing.T) {
		check(t, frame.SubImage(image.Rect(5, 18, 50, 34)))
	})
	t.Run("YCbCr", func(t *testing.T) {
		ycc := image.NewYCbCr(frame.Bounds(), image.YCbCrSubsampleRatio444)
		for y := 0; y < 36; y++ {
			for x := 0; x < 64; x++ {
				c := frame.RGBAAt(x, y)
				yy, cb, cr := color.RGBToYCbCr(c.R, c.G, c.B)
				ycc.Y[ycc.YOffset(x, y)] = yy
				ycc.Cb[ycc.COffset(x, y)] = cb
				ycc.Cr[ycc.COffset(x, y)] = cr
			}
		}
		check(t, ycc)
	})
}

func TestMaskRejectsOutOfFrame(t *testing.T) {
	frame := synthetic(10, 10, image.Rectangle{})
	if _, err := Mask(frame, image.Rect(5, 5, 11, 8), lower, upper); !errors.Is(err, ErrRegion) {
		t.Errorf("Expected ErrRegion, got %v", err)
	}
}

func TestPixelRect(t *testing.T) {
	region := types.MatchRegion{
		Name: "dialogue",
		Rect: types.Rect{X1: 0.463, Y1: 0.787, X2: 0.537, Y2: 0.829},
		Variants: []types.AspectRect{
			{Aspect: "16:10", Rect: types.Rect{X1: 0.461, Y1: 0.809, X2: 0.538, Y2: 0.841}},
		},
	}

	tests := []struct {
		name   string
		bounds image.Rectangle
		want   image.Rectangle
	}{
		{"16:9 uses the default rectangle", image.Rect(0, 0, 1920, 1080), image.Rect(888, 849, 1031, 895)},
		{"16:10 uses the variant", image.Rect(0, 0, 1920, 1200), image.Rect(885, 970, 1032, 1009)},
		{"Offset origin", image.Rect(100, 50, 2020, 1130), image.Rect(988, 899, 1131, 945)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PixelRect(tt.bounds, region)
			if err != nil {
				t.Fatalf("PixelRect failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("PixelRect = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPixelRectErrors(t *testing.T) {
	tests := []struct {
		name   string
		rect   types.Rect
		bounds image.Rectangle
	}{
		{"Outside unit square", types.Rect{X1: 0.5, Y1: 0.5, X2: 1.2, Y2: 0.6}, image.Rect(0, 0, 100, 100)},
		{"Inverted", types.Rect{X1: 0.6, Y1: 0.5, X2: 0.4, Y2: 0.6}, image.Rect(0, 0, 100, 100)},
		{"Sub-pixel", types.Rect{X1: 0.50, Y1: 0.50, X2: 0.505, Y2: 0.6}, image.Rect(0, 0, 100, 100)},
		{"Empty frame", types.Rect{X1: 0.1, Y1: 0.1, X2: 0.2, Y2: 0.2}, image.Rectangle{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PixelRect(tt.bounds, types.MatchRegion{Name: "r", Rect: tt.rect})
			if !errors.Is(err, ErrRegion) {
				t.Errorf("Expected ErrRegion, got %v", err)
			}
		})
	}
}

func TestWhitelist(t *testing.T) {
	tests := map[string]string{
		"Paimon":  "Paimno",
		"":        "",
		"aabbcc":  "abc",
		"Dainsl ": "Dailns",
		"派蒙":      "派蒙",
	}
	for in, want := range tests {
		if got := Whitelist(in); got != want {
			t.Errorf("Whitelist(%q) = %q, want %q", in, got, want)
		}
	}
}

// readerStub plays the engine: it "reads" the target if the bitmap contains
// exactly one solid foreground block of the expected size.
type readerStub struct {
	want      image.Rectangle
	text      string
	jobs      []pool.Job
	returnErr error
}

func (r *readerStub) Recognize(ctx context.Context, job pool.Job) (string, error) {
	r.jobs = append(r.jobs, job)
	if r.returnErr != nil {
		return "", r.returnErr
	}
	bm := job.Bitmap
	var found image.Rectangle
	for y := 0; y < bm.Height; y++ {
		for x := 0; x < bm.Width; x++ {
			switch bm.Pix[y*bm.Stride()+x] {
			case 255:
				found = found.Union(image.Rect(x, y, x+1, y+1))
			case 0:
			default:
				return "", nil
			}
		}
	}
	if found != r.want {
		return "", nil
	}
	return r.text, nil
}

func TestExtractRoundTrip(t *testing.T) {
	// 100x100 frame, region covers [20,60) x [40,60), text block sits at (25..35, 45..50).
	frame := synthetic(100, 100, image.Rect(25, 45, 35, 50))
	region := types.MatchRegion{
		Name:   "dialogue",
		Rect:   types.Rect{X1: 0.2, Y1: 0.4, X2: 0.6, Y2: 0.6},
		Lower:  lower,
		Upper:  upper,
		Target: "Paimon",
	}

	stub := &readerStub{want: image.Rect(5, 5, 15, 10), text: "Paimon"}
	m := &Matcher{Pool: stub}

	if got := m.Extract(context.Background(), frame, region); got != "Paimon" {
		t.Fatalf("Extract = %q, want %q", got, "Paimon")
	}
	if job := stub.jobs[0]; job.Whitelist != "Paimno" || job.Bitmap.BytesPerPixel != 1 {
		t.Errorf("Unexpected job: whitelist %q, bpp %d", job.Whitelist, job.Bitmap.BytesPerPixel)
	}

	// Scaling keeps the image binary and scales the block with it.
	stub.want = image.Rect(15, 15, 45, 30)
	m.Scale = 3
	if got := m.Extract(context.Background(), frame, region); got != "Paimon" {
		t.Errorf("Extract with Scale=3 = %q, want %q", got, "Paimon")
	}
}

func TestExtractAbsorbsFailures(t *testing.T) {
	frame := synthetic(50, 50, image.Rect(0, 0, 5, 5))
	stub := &readerStub{text: "Paimon"}
	m := &Matcher{Pool: stub}

	bad := types.MatchRegion{Name: "bad", Rect: types.Rect{X1: 0.9, Y1: 0.9, X2: 0.1, Y2: 0.1}, Target: "Paimon"}
	if got := m.Extract(context.Background(), frame, bad); got != "" {
		t.Errorf("Bad region should yield empty text, got %q", got)
	}
	if len(stub.jobs) != 0 {
		t.Error("Bad region reached the pool")
	}

	stub.returnErr = pool.ErrClosed
	good := types.MatchRegion{Name: "good", Rect: types.Rect{X1: 0, Y1: 0, X2: 0.5, Y2: 0.5}, Target: "Paimon"}
	if got := m.Extract(context.Background(), frame, good); got != "" {
		t.Errorf("Pool error should yield empty text, got %q", got)
	}
}

func TestDebugDir(t *testing.T) {
	dir := t.TempDir()
	frame := synthetic(20, 20, image.Rect(2, 2, 6, 6))
	m := &Matcher{Pool: &readerStub{}, DebugDir: dir}

	m.Extract(context.Background(), frame, types.MatchRegion{Name: "dialogue", Rect: types.Rect{X2: 0.5, Y2: 0.5}})

	matches, _ := filepath.Glob(filepath.Join(dir, "dialogue_*.png"))
	if len(matches) != 1 {
		t.Fatalf("Expected one debug image, got %v", matches)
	}
	if info, err := os.Stat(matches[0]); err != nil || info.Size() == 0 {
		t.Errorf("Debug image missing or empty: %v", err)
	}
}
