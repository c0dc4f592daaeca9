package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/noah-andersen/ebay-card-scraper/internal/metrics"
)

const (
	defaultImageFetchTimeout = 10 * time.Second
	maxImageBytes            = 20 << 20
)

// ImageFetcher downloads one image. Implementations must honour ctx.
type ImageFetcher interface {
	Fetch(ctx context.Context, imageURL string) (data []byte, contentType string, err error)
}

// HTTPImageFetcher fetches images over HTTP, spacing requests with a token
// bucket so one marketplace CDN is not hammered.
type HTTPImageFetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// NewHTTPImageFetcher allows perSecond requests with the given burst.
// A non-positive perSecond disables limiting.
func NewHTTPImageFetcher(timeout time.Duration, perSecond float64, burst int) *HTTPImageFetcher {
	if timeout <= 0 {
		timeout = defaultImageFetchTimeout
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &HTTPImageFetcher{
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(limit, burst),
		userAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	}
}

func (f *HTTPImageFetcher) Fetch(ctx context.Context, imageURL string) ([]byte, string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}

	start := time.Now()
	defer func() {
		metrics.ImageDownloadDuration.Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/*,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image body: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}

	return data, resp.Header.Get("Content-Type"), nil
}
