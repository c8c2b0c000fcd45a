// ABOUTME: Logo downloader with retry, disk cache, and square JPEG recompression
// ABOUTME: Produces contact-photo-sized images from brand logo URLs
package images

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
)

const (
	// PhotoSize is the square edge applied to every contact photo. Contacts
	// stores downscale anyway; recompressing up front keeps the managed
	// records small.
	PhotoSize = 256

	jpegQuality  = 85
	maxBodyBytes = 5 << 20

	retryDelay = 500 * time.Millisecond
)

// Fetcher downloads brand logos and converts them into contact photos.
// Downloads get exactly one retry after a short fixed delay; after that the
// logo is treated as a permanent failure for the cycle.
type Fetcher struct {
	client   *http.Client
	cacheDir string
	log      *slog.Logger
}

// NewFetcher creates a fetcher. cacheDir may be empty to disable the disk
// cache. A nil client gets a 10-second-timeout default.
func NewFetcher(client *http.Client, cacheDir string, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{client: client, cacheDir: cacheDir, log: logger}
}

// Fetch returns the processed photo bytes for a logo URL, consulting the
// disk cache first. The returned bytes are always a PhotoSize×PhotoSize JPEG.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("empty logo url")
	}

	cachePath := f.cachePath(url)
	if cachePath != "" {
		if data, err := os.ReadFile(cachePath); err == nil {
			return data, nil
		}
	}

	raw, err := f.download(ctx, url)
	if err != nil {
		return nil, err
	}
	photo, err := Square(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to process logo %s: %w", url, err)
	}

	if cachePath != "" {
		if err := os.MkdirAll(f.cacheDir, 0o755); err == nil {
			tmp := cachePath + ".tmp"
			if err := os.WriteFile(tmp, photo, 0o644); err == nil {
				_ = os.Rename(tmp, cachePath)
			}
		}
	}
	return photo, nil
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	data, err := f.downloadOnce(ctx, url)
	if err == nil {
		return data, nil
	}
	f.log.Debug("logo download failed, retrying once", "url", url, "err", err)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(retryDelay):
	}
	data, retryErr := f.downloadOnce(ctx, url)
	if retryErr != nil {
		return nil, fmt.Errorf("logo download failed after retry: %w", retryErr)
	}
	return data, nil
}

func (f *Fetcher) downloadOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

func (f *Fetcher) cachePath(url string) string {
	if f.cacheDir == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:])+".jpg")
}

// Square decodes image bytes, center-crops/fills to PhotoSize×PhotoSize, and
// re-encodes as JPEG.
func Square(data []byte) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("undecodable image: %w", err)
	}
	square := imaging.Fill(src, PhotoSize, PhotoSize, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, square, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode photo: %w", err)
	}
	return buf.Bytes(), nil
}
