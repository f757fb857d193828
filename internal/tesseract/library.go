package tesseract

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// library is the subset of the Tesseract C API (capi.h) used by Engine.
// One table is shared by every Engine opened from the same path.
type library struct {
	path string

	create                  func() uintptr
	init3                   func(api uintptr, dataPath, language *byte) int32
	setVariable             func(api uintptr, name, value *byte) int32
	setImage                func(api uintptr, data unsafe.Pointer, width, height, bytesPerPixel, bytesPerLine int32)
	getUTF8Text             func(api uintptr) unsafe.Pointer
	deleteText              func(text unsafe.Pointer)
	clear                   func(api uintptr)
	clearAdaptiveClassifier func(api uintptr)
	end                     func(api uintptr)
	delete                  func(api uintptr)
}

var (
	librariesMu sync.Mutex
	libraries   = make(map[string]*library)
)

// loadLibrary opens the shared library at path and resolves the C API, once per path.
func loadLibrary(path string) (*library, error) {
	librariesMu.Lock()
	defer librariesMu.Unlock()

	if lib, ok := libraries[path]; ok {
		return lib, nil
	}

	handle, err := openLibrary(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrLibrary, path, err)
	}

	lib := &library{path: path}
	symbols := []struct {
		name string
		fptr any
	}{
		{"TessBaseAPICreate", &lib.create},
		{"TessBaseAPIInit3", &lib.init3},
		{"TessBaseAPISetVariable", &lib.setVariable},
		{"TessBaseAPISetImage", &lib.setImage},
		{"TessBaseAPIGetUTF8Text", &lib.getUTF8Text},
		{"TessDeleteText", &lib.deleteText},
		{"TessBaseAPIClear", &lib.clear},
		{"TessBaseAPIClearAdaptiveClassifier", &lib.clearAdaptiveClassifier},
		{"TessBaseAPIEnd", &lib.end},
		{"TessBaseAPIDelete", &lib.delete},
	}
	for _, sym := range symbols {
		addr, err := lookupSymbol(handle, sym.name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: symbol %s: %v", ErrLibrary, path, sym.name, err)
		}
		purego.RegisterFunc(sym.fptr, addr)
	}

	libraries[path] = lib
	return lib, nil
}
