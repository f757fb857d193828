// Package capture provides frame sources for the monitor.
package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/andresmejia3/hush/internal/utils"
)

const megabyte = 1024 * 1024

// ErrNoFrame is returned while no running capture has delivered a frame.
var ErrNoFrame = errors.New("capture: no frame yet")

// Source returns the most recent frame.
type Source interface {
	Frame(ctx context.Context) (image.Image, error)
}

// Delays between ffmpeg runs. The delay doubles while runs keep failing and
// starts over after a run that delivered frames.
var (
	minRestartDelay = 500 * time.Millisecond
	maxRestartDelay = 10 * time.Second
)

// FFmpeg grabs the screen with an ffmpeg child process and keeps the newest
// decoded frame. Frame never waits for a capture to complete.
//
// ffmpeg is restarted whenever it exits, so the game window may be opened,
// closed and reopened while hush is running. Between runs Frame returns
// ErrNoFrame.
type FFmpeg struct {
	spec   utils.CaptureSpec
	logger *slog.Logger

	mu     sync.RWMutex
	cmd    *utils.SafeCommand
	latest image.Image
	err    error
	frames int
	done   chan struct{}
}

// StartFFmpeg launches ffmpeg for spec and keeps it running until ctx is
// cancelled. Only a failure to launch the first process is returned.
func StartFFmpeg(ctx context.Context, spec utils.CaptureSpec, logger *slog.Logger) (*FFmpeg, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f := &FFmpeg{spec: spec, logger: logger, done: make(chan struct{})}
	out, err := f.start(ctx)
	if err != nil {
		return nil, err
	}
	go f.supervise(ctx, out)
	return f, nil
}

// start launches one ffmpeg process and makes it the current command.
func (f *FFmpeg) start(ctx context.Context) (io.Reader, error) {
	cmd := utils.NewCaptureCmd(ctx, f.spec)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	f.mu.Lock()
	f.cmd = cmd
	f.mu.Unlock()
	return out, nil
}

// supervise consumes the current run, then restarts ffmpeg with backoff until ctx ends.
func (f *FFmpeg) supervise(ctx context.Context, out io.Reader) {
	defer close(f.done)

	delay := minRestartDelay
	waiting := false
	for {
		if out != nil {
			produced, reason := f.run(out)
			switch {
			case ctx.Err() != nil:
			case produced:
				f.logger.Info("capture closed, restarting ffmpeg", "reason", reason)
				delay, waiting = minRestartDelay, false
			case !waiting:
				f.logger.Info("waiting for the capture window", "reason", reason)
				waiting = true
			default:
				f.logger.Debug("ffmpeg produced no frames", "reason", reason, "retry_in", delay)
			}
		}

		select {
		case <-ctx.Done():
			f.mu.Lock()
			f.err = ctx.Err()
			f.mu.Unlock()
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, maxRestartDelay)

		var err error
		if out, err = f.start(ctx); err != nil {
			f.logger.Debug("ffmpeg restart failed", "err", err)
			out = nil
		}
	}
}

// run reads the current process until it exits. It reports whether any frame
// arrived and why the process ended.
func (f *FFmpeg) run(out io.Reader) (bool, error) {
	cmd := f.Command()
	before := f.Frames()
	readErr := f.consume(out)
	waitErr := cmd.Wait()

	f.mu.Lock()
	produced := f.frames > before
	f.latest = nil
	f.mu.Unlock()

	var reason error
	switch {
	case readErr != nil:
		reason = readErr
	case waitErr != nil:
		reason = fmt.Errorf("ffmpeg exited: %w", waitErr)
	default:
		reason = errors.New("ffmpeg exited")
	}
	if logs := strings.TrimSpace(cmd.Stderr.String()); logs != "" {
		reason = fmt.Errorf("%w: %s", reason, lastLine(logs))
	}
	return produced, reason
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// consume decodes every JPEG on r, publishing each one as the latest frame.
func (f *FFmpeg) consume(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)

	decoded := 0
	for scanner.Scan() {
		img, err := jpeg.Decode(bytes.NewReader(scanner.Bytes()))
		if err != nil {
			f.logger.Debug("dropping undecodable frame", "err", err)
			continue
		}
		f.mu.Lock()
		f.latest = img
		f.frames++
		f.mu.Unlock()

		if decoded++; decoded == 1 {
			b := img.Bounds()
			f.logger.Info("capture ready", "width", b.Dx(), "height", b.Dy())
		}
	}
	return scanner.Err()
}

// Frame returns the newest frame of the running ffmpeg, ErrNoFrame while
// there is none, or the context error once capture has stopped.
func (f *FFmpeg) Frame(ctx context.Context) (image.Image, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.latest == nil {
		return nil, ErrNoFrame
	}
	return f.latest, nil
}

// Frames is the number of frames decoded so far, across restarts.
func (f *FFmpeg) Frames() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.frames
}

// Wait blocks until capture has stopped and returns the context error that stopped it.
func (f *FFmpeg) Wait() error {
	<-f.done
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.err
}

// Command exposes the current process for error reports.
func (f *FFmpeg) Command() *utils.SafeCommand {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cmd
}
