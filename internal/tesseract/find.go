package tesseract

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// EnvLibrary overrides library discovery with an explicit file.
const EnvLibrary = "HUSH_TESSERACT_LIB"

func libraryNames() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"libtesseract-5.dll", "libtesseract-4.dll", "libtesseract-3.dll", "tesseract53.dll", "tesseract50.dll"}
	case "darwin":
		return []string{"libtesseract.5.dylib", "libtesseract.4.dylib", "libtesseract.dylib"}
	default:
		return []string{"libtesseract.so.5", "libtesseract.so.4", "libtesseract.so"}
	}
}

func librarySearchDirs() []string {
	var dirs []string
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	switch runtime.GOOS {
	case "windows":
		dirs = append(dirs,
			filepath.Join(os.Getenv("ProgramFiles"), "Tesseract-OCR"),
			filepath.Join(os.Getenv("LOCALAPPDATA"), "Programs", "Tesseract-OCR"),
		)
	case "darwin":
		dirs = append(dirs, "/opt/homebrew/lib", "/usr/local/lib", "/opt/local/lib")
	default:
		dirs = append(dirs,
			"/usr/lib/x86_64-linux-gnu", "/usr/lib/aarch64-linux-gnu",
			"/usr/lib64", "/usr/lib", "/usr/local/lib",
		)
	}
	return dirs
}

// FindLibrary locates the Tesseract shared library: $HUSH_TESSERACT_LIB first,
// then the executable's directory, the working directory and the platform's usual prefixes.
func FindLibrary() (string, error) {
	if p := os.Getenv(EnvLibrary); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("%w: %s=%s: %v", ErrLibrary, EnvLibrary, p, err)
		}
		return p, nil
	}
	return findIn(librarySearchDirs(), libraryNames())
}

func findIn(dirs, names []string) (string, error) {
	for _, dir := range dirs {
		for _, name := range names {
			p := filepath.Join(dir, name)
			if info, err := os.Stat(p); err == nil && !info.IsDir() {
				return p, nil
			}
		}
	}
	return "", fmt.Errorf("%w: none of %v found (set %s or --lib)", ErrLibrary, names, EnvLibrary)
}

// DefaultDataPath picks the tessdata location for a library: $TESSDATA_PREFIX if set,
// otherwise a tessdata directory next to the library, otherwise "" (engine default).
func DefaultDataPath(libraryPath string) string {
	if p := os.Getenv("TESSDATA_PREFIX"); p != "" {
		return p
	}
	dir := filepath.Join(filepath.Dir(libraryPath), "tessdata")
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir
	}
	return ""
}
