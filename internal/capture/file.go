package capture

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"
	"time"
)

// File serves a still image from disk, decoding it again whenever the file's
// modification time changes. Useful for tuning regions against a screenshot.
type File struct {
	Path string

	mu      sync.Mutex
	img     image.Image
	modTime time.Time
}

func (f *File) Frame(ctx context.Context) (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := os.Stat(f.Path)
	if err != nil {
		return nil, err
	}
	if f.img != nil && info.ModTime().Equal(f.modTime) {
		return f.img, nil
	}

	img, err := DecodeFile(f.Path)
	if err != nil {
		return nil, err
	}
	f.img, f.modTime = img, info.ModTime()
	return img, nil
}

// DecodeFile decodes a PNG or JPEG image.
func DecodeFile(path string) (image.Image, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}
