// Package tesseract binds one native Tesseract session (TessBaseAPI) through
// the library's C API.
//
// The shared library is loaded at runtime from an explicit path, so the
// binary carries no link-time dependency on Tesseract. An Engine owns exactly
// one native handle from Open until Close and must not be shared between
// goroutines; concurrent entry is rejected with ErrBusy instead of reaching
// the native layer.
//
//	eng, err := tesseract.Open(lib, data, "eng")
//	if err != nil { ... }
//	defer eng.Close()
//
//	eng.Configure(tesseract.WithWhitelist("Paimon"), tesseract.WithPageSegMode(tesseract.PSMAuto))
//	text, err := eng.Recognize(bitmap)
package tesseract

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"unsafe"

	"github.com/andresmejia3/hush/internal/types"
)

var (
	// ErrInitFailed means the native engine could not be created or initialized.
	ErrInitFailed = errors.New("tesseract: initialization failed")
	// ErrClosed is returned by every call made after Close.
	ErrClosed = errors.New("tesseract: engine closed")
	// ErrBusy is returned when a second caller enters an engine that is already running a call.
	ErrBusy = errors.New("tesseract: engine in use")
	// ErrBadBitmap is returned for bitmaps whose dimensions do not match their buffer.
	ErrBadBitmap = errors.New("tesseract: invalid bitmap")
	// ErrLibrary is returned when the shared library or one of its symbols cannot be loaded.
	ErrLibrary = errors.New("tesseract: library unavailable")
)

// PageSegMode is Tesseract's page segmentation mode (tessedit_pageseg_mode).
type PageSegMode int

const (
	PSMAuto        PageSegMode = 3
	PSMSingleBlock PageSegMode = 6
	PSMSingleLine  PageSegMode = 7
	PSMSingleWord  PageSegMode = 8
	PSMRawLine     PageSegMode = 13
)

func (m PageSegMode) String() string {
	switch m {
	case PSMAuto:
		return "auto"
	case PSMSingleBlock:
		return "single-block"
	case PSMSingleLine:
		return "single-line"
	case PSMSingleWord:
		return "single-word"
	case PSMRawLine:
		return "raw-line"
	default:
		return strconv.Itoa(int(m))
	}
}

const (
	varWhitelist   = "tessedit_char_whitelist"
	varPageSegMode = "tessedit_pageseg_mode"
)

// Option changes one recognition parameter. Parameters that are not passed keep their current value.
type Option func(*settings)

type settings struct {
	whitelist *string
	mode      *PageSegMode
}

// WithWhitelist restricts recognized characters to the runes of s. An empty string lifts the restriction.
func WithWhitelist(s string) Option {
	return func(o *settings) { o.whitelist = &s }
}

// WithPageSegMode sets the page segmentation mode.
func WithPageSegMode(m PageSegMode) Option {
	return func(o *settings) { o.mode = &m }
}

// Engine is one native Tesseract session.
type Engine struct {
	lib   *library
	api   uintptr
	inUse atomic.Bool

	whitelist string
	mode      PageSegMode
}

// Open loads the library at libraryPath (once per process) and starts a session for language.
// dataPath is the tessdata location; empty lets Tesseract fall back to TESSDATA_PREFIX.
func Open(libraryPath, dataPath, language string) (*Engine, error) {
	lib, err := loadLibrary(libraryPath)
	if err != nil {
		return nil, err
	}
	return newEngine(lib, dataPath, language)
}

func newEngine(lib *library, dataPath, language string) (*Engine, error) {
	api := lib.create()
	if api == 0 {
		return nil, fmt.Errorf("%w: TessBaseAPICreate returned null", ErrInitFailed)
	}

	data, lang := cStringOrNil(dataPath), cStringOrNil(language)
	rc := lib.init3(api, data, lang)
	runtime.KeepAlive(data)
	runtime.KeepAlive(lang)
	if rc != 0 {
		lib.end(api)
		lib.delete(api)
		return nil, fmt.Errorf("%w: language %q, data path %q (status %d)", ErrInitFailed, language, dataPath, rc)
	}

	e := &Engine{lib: lib, api: api, mode: PSMAuto}
	// Best effort: some of these are init-only on newer Tesseract versions and are
	// rejected after Init, which is harmless.
	for _, kv := range sessionVariables() {
		_ = e.setVariable(kv[0], kv[1])
	}
	return e, nil
}

func sessionVariables() [][2]string {
	devNull := "/dev/null"
	if runtime.GOOS == "windows" {
		devNull = "NUL"
	}
	return [][2]string{
		{"load_system_dawg", "0"},
		{"load_freq_dawg", "0"},
		{"tessedit_oem_mode", "3"},
		{"debug_file", devNull},
	}
}

func (e *Engine) enter() error {
	if !e.inUse.CompareAndSwap(false, true) {
		return ErrBusy
	}
	if e.api == 0 {
		e.inUse.Store(false)
		return ErrClosed
	}
	return nil
}

func (e *Engine) leave() {
	e.inUse.Store(false)
}

func (e *Engine) setVariable(name, value string) error {
	n, v := cString(name), cString(value)
	ok := e.lib.setVariable(e.api, n, v)
	runtime.KeepAlive(n)
	runtime.KeepAlive(v)
	if ok == 0 {
		return fmt.Errorf("tesseract: could not set %s=%q", name, value)
	}
	return nil
}

// Configure applies the given options before the next Recognize.
func (e *Engine) Configure(opts ...Option) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.leave()

	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	if s.whitelist != nil {
		if err := e.setVariable(varWhitelist, *s.whitelist); err != nil {
			return err
		}
		e.whitelist = *s.whitelist
	}
	if s.mode != nil {
		if err := e.setVariable(varPageSegMode, strconv.Itoa(int(*s.mode))); err != nil {
			return err
		}
		e.mode = *s.mode
	}
	return nil
}

// Reset restores the defaults: no whitelist, automatic page segmentation.
func (e *Engine) Reset() error {
	return e.Configure(WithWhitelist(""), WithPageSegMode(PSMAuto))
}

// Whitelist returns the whitelist currently applied.
func (e *Engine) Whitelist() string { return e.whitelist }

// PageSegMode returns the page segmentation mode currently applied.
func (e *Engine) PageSegMode() PageSegMode { return e.mode }

// Recognize runs the engine synchronously over bm and returns the trimmed UTF-8 text.
// A native failure yields an empty string, not an error. The engine's image and
// adaptive classifier state are cleared afterwards so calls do not bias each other.
func (e *Engine) Recognize(bm types.Bitmap) (string, error) {
	if err := e.enter(); err != nil {
		return "", err
	}
	defer e.leave()

	if err := bm.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadBitmap, err)
	}

	e.lib.setImage(e.api, unsafe.Pointer(&bm.Pix[0]),
		int32(bm.Width), int32(bm.Height), int32(bm.BytesPerPixel), int32(bm.Stride()))
	raw := e.lib.getUTF8Text(e.api)
	runtime.KeepAlive(bm.Pix)

	text := goString(raw)
	if raw != nil {
		e.lib.deleteText(raw)
	}
	e.lib.clear(e.api)
	e.lib.clearAdaptiveClassifier(e.api)

	return strings.TrimSpace(strings.ToValidUTF8(text, "")), nil
}

// Close ends the session and frees the native handle. It is safe to call more than once.
func (e *Engine) Close() error {
	if err := e.enter(); err != nil {
		if errors.Is(err, ErrClosed) {
			return nil
		}
		return err
	}
	defer e.leave()

	e.lib.clear(e.api)
	e.lib.end(e.api)
	e.lib.delete(e.api)
	e.api = 0
	return nil
}

// cString returns a NUL-terminated copy of s.
func cString(s string) *byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return &b[0]
}

// cStringOrNil is cString, except that the empty string maps to NULL so the
// engine falls back to its own default.
func cStringOrNil(s string) *byte {
	if s == "" {
		return nil
	}
	return cString(s)
}

// goString copies a NUL-terminated native string into Go memory.
func goString(p unsafe.Pointer) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(p), n))
}
