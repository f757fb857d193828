package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andresmejia3/hush/internal/utils"
)

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestConsumeKeepsLatestFrame(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(encodeJPEG(t, 4, 4))
	stream.Write([]byte{0x00, 0x01}) // noise between frames
	stream.Write(encodeJPEG(t, 8, 2))

	f := &FFmpeg{logger: slog.New(slog.NewTextHandler(io.Discard, nil)), done: make(chan struct{})}
	if _, err := f.Frame(context.Background()); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("Expected ErrNoFrame before any data, got %v", err)
	}

	if err := f.consume(&stream); err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	img, err := f.Frame(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 2 {
		t.Errorf("Expected the newest 8x2 frame, got %v", img.Bounds())
	}
	if f.Frames() != 2 {
		t.Errorf("Expected 2 frames, got %d", f.Frames())
	}
}

func TestFileReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.png")
	write := func(c color.Gray, mod time.Time) {
		img := image.NewGray(image.Rect(0, 0, 2, 2))
		img.SetGray(0, 0, c)
		var buf bytes.Buffer
		png.Encode(&buf, img)
		if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(path, mod, mod); err != nil {
			t.Fatal(err)
		}
	}

	base := time.Now().Add(-time.Hour)
	write(color.Gray{Y: 10}, base)

	src := &File{Path: path}
	first, err := src.Frame(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	again, _ := src.Frame(context.Background())
	if again != first {
		t.Error("Unchanged file was decoded again")
	}

	write(color.Gray{Y: 200}, base.Add(time.Minute))
	next, err := src.Frame(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	r, _, _, _ := next.At(0, 0).RGBA()
	if r>>8 != 200 {
		t.Errorf("Expected reloaded pixel 200, got %d", r>>8)
	}
}

func TestFileMissing(t *testing.T) {
	src := &File{Path: filepath.Join(t.TempDir(), "missing.png")}
	if _, err := src.Frame(context.Background()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected ErrNotExist, got %v", err)
	}
}

// lockedBuffer lets the supervisor log while the test reads.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeFFmpeg puts an "ffmpeg" shell script first on PATH. The script sees the
// 1-based number of its invocation in $n and a JPEG file in $HUSH_FRAME.
// It returns how many times the script has run so far.
func fakeFFmpeg(t *testing.T, body string) func() int {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg is a shell script")
	}
	dir := t.TempDir()
	counter := filepath.Join(dir, "runs")
	frame := filepath.Join(dir, "frame.jpg")
	if err := os.WriteFile(frame, encodeJPEG(t, 4, 4), 0644); err != nil {
		t.Fatal(err)
	}
	script := "#!/bin/sh\n" +
		"n=$(cat \"$HUSH_RUNS\" 2>/dev/null || echo 0)\n" +
		"n=$((n+1))\n" +
		"echo $n > \"$HUSH_RUNS\"\n" +
		body
	if err := os.WriteFile(filepath.Join(dir, "ffmpeg"), []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	t.Setenv("HUSH_RUNS", counter)
	t.Setenv("HUSH_FRAME", frame)

	return func() int {
		data, _ := os.ReadFile(counter)
		n, _ := strconv.Atoi(strings.TrimSpace(string(data)))
		return n
	}
}

func fastRestarts(t *testing.T) {
	lo, hi := minRestartDelay, maxRestartDelay
	minRestartDelay, maxRestartDelay = 5*time.Millisecond, 20*time.Millisecond
	t.Cleanup(func() { minRestartDelay, maxRestartDelay = lo, hi })
}

// startFake runs StartFFmpeg against the fake and stops it when the test ends.
func startFake(t *testing.T) (*FFmpeg, *lockedBuffer) {
	t.Helper()
	logs := &lockedBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	f, err := StartFFmpeg(ctx, utils.CaptureSpec{Format: "lavfi", Input: "testsrc", FPS: 5}, slog.New(slog.NewTextHandler(logs, nil)))
	if err != nil {
		cancel()
		t.Fatalf("StartFFmpeg failed: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		if err := f.Wait(); !errors.Is(err, context.Canceled) {
			t.Errorf("Wait() = %v, want context.Canceled", err)
		}
	})
	return f, logs
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFFmpegRestartsUntilWindowAppears(t *testing.T) {
	runs := fakeFFmpeg(t, `
if [ "$n" -le 3 ]; then
  echo "Can't find window 'Genshin Impact'" >&2
  exit 1
fi
cat "$HUSH_FRAME"
exec sleep 30
`)
	fastRestarts(t)
	f, logs := startFake(t)

	eventually(t, "a frame after ffmpeg recovered", func() bool {
		img, err := f.Frame(context.Background())
		return err == nil && img.Bounds().Dx() == 4
	})
	if got := runs(); got != 4 {
		t.Errorf("ffmpeg ran %d times, want 4", got)
	}
	if f.Frames() != 1 {
		t.Errorf("Frames() = %d, want 1", f.Frames())
	}

	out := logs.String()
	if strings.Count(out, "waiting for the capture window") != 1 {
		t.Errorf("Expected a single waiting line for repeated failures:\n%s", out)
	}
	if !strings.Contains(out, "Can't find window") {
		t.Errorf("ffmpeg's complaint missing from the log:\n%s", out)
	}
	eventually(t, "the ready line", func() bool { return strings.Contains(logs.String(), "capture ready") })
}

func TestFFmpegDropsFrameWhenCaptureCloses(t *testing.T) {
	runs := fakeFFmpeg(t, `
if [ "$n" -eq 1 ]; then
  cat "$HUSH_FRAME"
  exit 0
fi
exit 1
`)
	fastRestarts(t)
	f, logs := startFake(t)

	eventually(t, "the first frame", func() bool { return f.Frames() == 1 })
	eventually(t, "the frame to be dropped", func() bool {
		_, err := f.Frame(context.Background())
		return errors.Is(err, ErrNoFrame)
	})
	eventually(t, "a restart", func() bool { return runs() >= 2 })
	if !strings.Contains(logs.String(), "capture closed") {
		t.Errorf("Expected the closed transition to be logged:\n%s", logs.String())
	}
}

func TestStartFFmpegWithoutBinary(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	_, err := StartFFmpeg(context.Background(), utils.CaptureSpec{Format: "lavfi", Input: "testsrc", FPS: 5}, nil)
	if err == nil {
		t.Fatal("Expected an error when ffmpeg is not installed")
	}
}
