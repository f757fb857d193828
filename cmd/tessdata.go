package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/andresmejia3/hush/internal/config"
	"github.com/andresmejia3/hush/internal/tesseract"
	"github.com/schollz/progressbar/v3"
)

// ensureData downloads the configured languages into dir when they are
// missing. An empty dir is the library's built-in path, which is left alone.
func ensureData(ctx context.Context, cfg *config.Config, dir string) error {
	if dir == "" || cfg.Tesseract.DownloadURL == "" {
		return nil
	}
	fetched, err := tesseract.EnsureData(ctx, dir, cfg.Language, cfg.Tesseract.DownloadURL,
		tesseract.WithProgress(downloadBar))
	for _, path := range fetched {
		logger.Info("Downloaded language data", "path", path)
	}
	return err
}

func downloadBar(name string, size int64) io.Writer {
	return progressbar.NewOptions64(size,
		progressbar.OptionSetDescription(fmt.Sprintf("📥 Downloading %s", name)),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowBytes(true),
		progressbar.OptionClearOnFinish(),
	)
}
