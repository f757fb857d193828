package utils

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr.
// This ensures we don't lose the reason a helper process (ffmpeg, a mute command) failed.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command bound to ctx and attaches a buffer to its Stderr pipe.
// It prepares the command for execution but does not start it.
func NewSafeCommand(ctx context.Context, name string, args ...string) *SafeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// ShowError prints a formatted error box and dumps the helper's stderr if a SafeCommand is provided.
func ShowError(context string, err error, s *SafeCommand) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🚨 HUSH ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAILS: %v\n", err)
	}

	// If we have a SafeCommand and it captured logs, print them.
	if s != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(os.Stderr, "\nPROCESS LOGS (%s):\n%s\n", s.Path, s.Stderr.String())
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

// Die is ShowError followed by exit status 1.
func Die(context string, err error, s *SafeCommand) {
	ShowError(context, err, s)
	os.Exit(1)
}

// --- 2. Capture Stream ---

var (
	JpegSOI = []byte{0xFF, 0xD8} // Start of Image
	JpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// SplitJpeg is the custom splitter for bufio.Scanner
// It locates the Start Of Image (FFD8) and End Of Image (FFD9) markers to extract full JPEG frames.
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, JpegSOI)
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		// Drop the noise but keep a trailing 0xFF, it may open the next SOI.
		return len(data) - 1, nil, nil
	}
	end := bytes.Index(data[start:], JpegEOI)
	if end == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		// Skip any noise before the SOI while the frame is still arriving.
		return start, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// CaptureSpec describes what ffmpeg should grab.
type CaptureSpec struct {
	// Format is the ffmpeg input device (gdigrab, x11grab, avfoundation). Empty picks the platform default.
	Format string
	// Input is the device input. Empty picks the platform default, or the window title on Windows.
	Input string
	// Window is the window title used by gdigrab.
	Window string
	FPS    int
}

// CaptureInput resolves the ffmpeg input format and device for goos.
func CaptureInput(goos string, spec CaptureSpec) (format, input string) {
	format, input = spec.Format, spec.Input
	switch goos {
	case "windows":
		if format == "" {
			format = "gdigrab"
		}
		if input == "" {
			if spec.Window != "" {
				input = "title=" + spec.Window
			} else {
				input = "desktop"
			}
		}
	case "darwin":
		if format == "" {
			format = "avfoundation"
		}
		if input == "" {
			input = "1:none"
		}
	default:
		if format == "" {
			format = "x11grab"
		}
		if input == "" {
			input = os.Getenv("DISPLAY")
			if input == "" {
				input = ":0"
			}
		}
	}
	return format, input
}

// NewCaptureCmd creates a screen grabbing pipe
// It configures FFmpeg to output MJPEG frames to Stdout for ingestion.
func NewCaptureCmd(ctx context.Context, spec CaptureSpec) *SafeCommand {
	format, input := CaptureInput(runtime.GOOS, spec)
	args := []string{"-hide_banner", "-loglevel", "error",
		"-f", format,
		"-framerate", strconv.Itoa(spec.FPS),
		"-i", input,
		// Using -vcodec mjpeg ensures we get JPEGs Go can split
		"-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "3", "-"}
	return NewSafeCommand(ctx, "ffmpeg", args...)
}
