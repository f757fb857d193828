//go:build gosseract

package tesseract

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync/atomic"

	"github.com/otiai10/gosseract/v2"

	"github.com/andresmejia3/hush/internal/types"
)

// ClientEngine is an Engine backed by gosseract, for builds that link
// Tesseract at compile time (-tags gosseract) instead of loading it at runtime.
type ClientEngine struct {
	client *gosseract.Client
	inUse  atomic.Bool
	closed bool

	whitelist string
	mode      PageSegMode
}

// OpenClient starts a gosseract session for language. gosseract initializes
// lazily, so a blank image is recognized once to surface init failures now.
func OpenClient(dataPath, language string) (*ClientEngine, error) {
	c := gosseract.NewClient()
	if dataPath != "" {
		if err := c.SetTessdataPrefix(dataPath); err != nil {
			c.Close()
			return nil, fmt.Errorf("%w: %v", ErrInitFailed, err)
		}
	}
	if err := c.SetLanguage(language); err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: %v", ErrInitFailed, err)
	}

	blank, err := encodePNG(types.Bitmap{Width: 1, Height: 1, BytesPerPixel: 1, Pix: []byte{0}})
	if err == nil {
		err = c.SetImageFromBytes(blank)
	}
	if err == nil {
		_, err = c.Text()
	}
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: language %q, data path %q: %v", ErrInitFailed, language, dataPath, err)
	}

	e := &ClientEngine{client: c, mode: PSMAuto}
	for _, kv := range sessionVariables() {
		_ = c.SetVariable(gosseract.SettableVariable(kv[0]), kv[1])
	}
	return e, nil
}

func (e *ClientEngine) enter() error {
	if !e.inUse.CompareAndSwap(false, true) {
		return ErrBusy
	}
	if e.closed {
		e.inUse.Store(false)
		return ErrClosed
	}
	return nil
}

// Configure applies the given options before the next Recognize.
func (e *ClientEngine) Configure(opts ...Option) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.inUse.Store(false)

	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	if s.whitelist != nil {
		if err := e.client.SetWhitelist(*s.whitelist); err != nil {
			return err
		}
		e.whitelist = *s.whitelist
	}
	if s.mode != nil {
		if err := e.client.SetPageSegMode(gosseract.PageSegMode(*s.mode)); err != nil {
			return err
		}
		e.mode = *s.mode
	}
	return nil
}

// Reset restores the defaults: no whitelist, automatic page segmentation.
func (e *ClientEngine) Reset() error {
	return e.Configure(WithWhitelist(""), WithPageSegMode(PSMAuto))
}

// Recognize encodes bm as PNG, hands it to gosseract and returns the trimmed text.
func (e *ClientEngine) Recognize(bm types.Bitmap) (string, error) {
	if err := e.enter(); err != nil {
		return "", err
	}
	defer e.inUse.Store(false)

	if err := bm.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadBitmap, err)
	}
	data, err := encodePNG(bm)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadBitmap, err)
	}
	if err := e.client.SetImageFromBytes(data); err != nil {
		return "", nil
	}
	text, err := e.client.Text()
	if err != nil {
		return "", nil
	}
	return strings.TrimSpace(text), nil
}

// Close releases the gosseract client. It is safe to call more than once.
func (e *ClientEngine) Close() error {
	if err := e.enter(); err != nil {
		if errors.Is(err, ErrClosed) {
			return nil
		}
		return err
	}
	defer e.inUse.Store(false)

	e.closed = true
	return e.client.Close()
}

func encodePNG(bm types.Bitmap) ([]byte, error) {
	var img image.Image
	r := image.Rect(0, 0, bm.Width, bm.Height)
	switch bm.BytesPerPixel {
	case 1:
		img = &image.Gray{Pix: bm.Pix, Stride: bm.Stride(), Rect: r}
	case 3:
		rgba := image.NewRGBA(r)
		for i, j := 0, 0; i < len(bm.Pix); i, j = i+3, j+4 {
			rgba.Pix[j], rgba.Pix[j+1], rgba.Pix[j+2], rgba.Pix[j+3] = bm.Pix[i], bm.Pix[i+1], bm.Pix[i+2], 0xff
		}
		img = rgba
	case 4:
		img = &image.RGBA{Pix: bm.Pix, Stride: bm.Stride(), Rect: r}
	default:
		return nil, fmt.Errorf("unsupported depth %d", bm.BytesPerPixel)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
