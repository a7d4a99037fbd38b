// Package thumbnail resolves a video's thumbnail through the extraction engine
// and downloads the image.
package thumbnail

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/example/ytfetch/internal/downloader"
	"github.com/example/ytfetch/internal/models"
)

const (
	// DefaultTimeout bounds the whole image request.
	DefaultTimeout = 10 * time.Second

	// MaxSize caps the image body.
	MaxSize = 10 * 1024 * 1024

	userAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/121.0"
)

// InfoSource resolves engine metadata for a URL.
type InfoSource interface {
	Info(ctx context.Context, url string) (*models.MediaInfo, error)
}

// Image is a downloaded thumbnail.
type Image struct {
	Filename string
	Data     []byte
}

// Fetcher downloads thumbnails.
type Fetcher struct {
	source InfoSource
	client *http.Client
}

// NewFetcher returns a fetcher whose HTTP requests time out after timeout.
// Zero uses DefaultTimeout.
func NewFetcher(source InfoSource, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		source: source,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				ForceAttemptHTTP2:   true,
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 5,
			},
		},
	}
}

// Fetch resolves and downloads the thumbnail for req.URL. The image is named
// after req.Title with a .jpg extension. A non-200 response is ErrUpstream;
// a timeout or transport failure is returned unclassified.
func (f *Fetcher) Fetch(ctx context.Context, req models.ThumbnailRequest) (*Image, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	info, err := f.source.Info(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	if info.Thumbnail == "" {
		return nil, fmt.Errorf("%w: No thumbnail found", models.ErrNotFound)
	}

	data, err := f.get(ctx, info.Thumbnail)
	if err != nil {
		return nil, err
	}

	return &Image{
		Filename: downloader.SanitizeStem(req.Title, "thumbnail") + ".jpg",
		Data:     data,
	}, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: Failed to download thumbnail", models.ErrUpstream)
	}
	httpReq.Header.Set("User-Agent", userAgent)

	// timeouts and transport errors are server-side failures, only a bad status is ErrUpstream
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetching thumbnail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: Failed to download thumbnail", models.ErrUpstream)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: Failed to download thumbnail", models.ErrUpstream)
	}
	if len(data) > MaxSize {
		return nil, fmt.Errorf("%w: Failed to download thumbnail", models.ErrUpstream)
	}
	return data, nil
}
