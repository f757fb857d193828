package tesseract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ErrDataDownload is wrapped by every failed traineddata download.
var ErrDataDownload = errors.New("tesseract: traineddata download failed")

// DataOption configures EnsureData.
type DataOption func(*dataFetcher)

type dataFetcher struct {
	client   *http.Client
	progress func(name string, size int64) io.Writer
}

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) DataOption {
	return func(f *dataFetcher) { f.client = c }
}

// WithProgress receives every download as it starts. The returned writer, if
// any, is fed the bytes as they arrive; size is -1 when the server does not say.
func WithProgress(fn func(name string, size int64) io.Writer) DataOption {
	return func(f *dataFetcher) { f.progress = fn }
}

// EnsureData makes sure dir holds <lang>.traineddata for every language in
// lang ("eng+jpn" names two), fetching the missing ones from baseURL.
// It returns the paths it downloaded.
func EnsureData(ctx context.Context, dir, lang, baseURL string, opts ...DataOption) ([]string, error) {
	f := &dataFetcher{client: http.DefaultClient}
	for _, opt := range opts {
		opt(f)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataDownload, err)
	}

	var fetched []string
	for _, l := range strings.Split(lang, "+") {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		path := filepath.Join(dir, l+".traineddata")
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			continue
		}
		url := strings.TrimRight(baseURL, "/") + "/" + l + ".traineddata"
		if err := f.fetch(ctx, url, path); err != nil {
			return fetched, fmt.Errorf("%w: %s: %v", ErrDataDownload, l, err)
		}
		fetched = append(fetched, path)
	}
	return fetched, nil
}

// fetch downloads url next to path and renames it into place once complete,
// so an interrupted download never leaves a truncated model behind.
func (f *dataFetcher) fetch(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.part")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	var dst io.Writer = tmp
	if f.progress != nil {
		if w := f.progress(filepath.Base(path), resp.ContentLength); w != nil {
			dst = io.MultiWriter(tmp, w)
		}
	}
	n, err := io.Copy(dst, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("GET %s: empty body", url)
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		return fmt.Errorf("GET %s: got %d of %d bytes", url, n, resp.ContentLength)
	}
	return os.Rename(tmp.Name(), path)
}
