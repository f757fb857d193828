//go:build !gosseract

package cmd

import (
	"context"
	"fmt"

	"github.com/andresmejia3/hush/internal/config"
	"github.com/andresmejia3/hush/internal/pool"
	"github.com/andresmejia3/hush/internal/tesseract"
)

// engineFactory loads libtesseract at runtime and fetches missing language
// data. It returns the factory and a description of where the library and
// data were found.
func engineFactory(ctx context.Context, cfg *config.Config) (pool.Factory, string, error) {
	lib := cfg.Tesseract.Library
	if lib == "" {
		found, err := tesseract.FindLibrary()
		if err != nil {
			return nil, "", err
		}
		lib = found
	}
	data := cfg.Tesseract.Data
	if data == "" {
		data = tesseract.DefaultDataPath(lib)
	}
	if err := ensureData(ctx, cfg, data); err != nil {
		return nil, "", err
	}

	lang := cfg.Language
	factory := func(id int) (pool.Engine, error) {
		e, err := tesseract.Open(lib, data, lang)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
	return factory, fmt.Sprintf("%s (data: %s)", lib, orDefault(data, "built-in")), nil
}
