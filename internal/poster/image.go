package poster

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/zulandar/airminal/internal/dom"
)

// MaxImageBytes bounds a downloaded image.
const MaxImageBytes = 20 << 20

// Downloader fetches post images.
type Downloader struct {
	http *http.Client
}

// NewDownloader returns a Downloader using c, or a client with a 30s
// timeout when c is nil.
func NewDownloader(c *http.Client) *Downloader {
	if c == nil {
		c = &http.Client{Timeout: 30 * time.Second}
	}
	return &Downloader{http: c}
}

// Download fetches url into a file called name. The MIME type comes from
// the response and defaults to image/jpeg.
func (d *Downloader) Download(ctx context.Context, url, name string) (dom.File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return dom.File{}, fmt.Errorf("poster: image: %w", err)
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return dom.File{}, fmt.Errorf("poster: image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return dom.File{}, fmt.Errorf("poster: image: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return dom.File{}, fmt.Errorf("poster: image: read: %w", err)
	}
	if len(data) > MaxImageBytes {
		return dom.File{}, fmt.Errorf("poster: image: larger than %d bytes", MaxImageBytes)
	}
	return dom.File{Name: name, MIME: imageType(resp.Header.Get("Content-Type")), Data: data}, nil
}

func imageType(header string) string {
	mt, _, err := mime.ParseMediaType(header)
	if err != nil || !strings.HasPrefix(mt, "image/") {
		return "image/jpeg"
	}
	return mt
}

func fileName(prefix string, now time.Time) string {
	return fmt.Sprintf("%s%d.jpg", prefix, now.UnixMilli())
}
