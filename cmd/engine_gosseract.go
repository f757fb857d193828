//go:build gosseract

package cmd

import (
	"context"
	"fmt"

	"github.com/andresmejia3/hush/internal/config"
	"github.com/andresmejia3/hush/internal/pool"
	"github.com/andresmejia3/hush/internal/tesseract"
)

// engineFactory uses the Tesseract linked in through gosseract.
func engineFactory(ctx context.Context, cfg *config.Config) (pool.Factory, string, error) {
	data, lang := cfg.Tesseract.Data, cfg.Language
	if err := ensureData(ctx, cfg, data); err != nil {
		return nil, "", err
	}
	factory := func(id int) (pool.Engine, error) {
		e, err := tesseract.OpenClient(data, lang)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
	return factory, fmt.Sprintf("gosseract (data: %s)", orDefault(data, "built-in")), nil
}
