package content

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MimeLyc/content-orchestrator/internal/docstore"
	"github.com/MimeLyc/content-orchestrator/pkg/log"
)

const maxMediaBytes = 20 << 20

// MediaUploader downloads generated image URLs and stores them as assets. A failing URL falls
// back to the stock image, then to the placeholder.
type MediaUploader struct {
	client    *http.Client
	assets    docstore.AssetStore
	fallbacks []string
	maxBytes  int64
	now       func() time.Time
}

func NewMediaUploader(assets docstore.AssetStore, timeout time.Duration, stockURL, placeholderURL string) *MediaUploader {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var fallbacks []string
	for _, u := range []string{stockURL, placeholderURL} {
		if u != "" {
			fallbacks = append(fallbacks, u)
		}
	}
	return &MediaUploader{
		client:    &http.Client{Timeout: timeout},
		assets:    assets,
		fallbacks: fallbacks,
		maxBytes:  maxMediaBytes,
		now:       time.Now,
	}
}

// Upload returns the asset id for the first URL in the fallback chain that downloads.
func (m *MediaUploader) Upload(ctx context.Context, url string) (string, error) {
	chain := append([]string{url}, m.fallbacks...)
	var lastErr error
	for i, candidate := range chain {
		if i > 0 && candidate == chain[i-1] {
			continue
		}
		log.Debug("[PostProcessor] uploading media (attempt %d): %s", i+1, candidate)
		id, err := m.fetchAndStore(ctx, candidate, i+1)
		if err == nil {
			return id, nil
		}
		log.Warn("[PostProcessor] media upload failed for %s: %v", candidate, err)
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("media unavailable after %d attempts: %w", len(chain), lastErr)
}

func (m *MediaUploader) fetchAndStore(ctx context.Context, url string, attempt int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, m.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(data)) > m.maxBytes {
		return "", fmt.Errorf("body exceeds %d bytes", m.maxBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	return m.assets.PutAsset(ctx, docstore.Asset{
		Filename:    fmt.Sprintf("ai-gen-%d-%d.%s", m.now().UnixMilli(), attempt, extensionFor(contentType)),
		ContentType: contentType,
		Alt:         "AI Generated Image",
		SourceURL:   url,
		Data:        data,
	})
}

// extensionFor maps "image/svg+xml; charset=utf-8" to "svg".
func extensionFor(contentType string) string {
	mediaType := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	_, sub, ok := strings.Cut(mediaType, "/")
	if !ok || sub == "" {
		return "jpg"
	}
	sub, _, _ = strings.Cut(sub, "+")
	if sub == "jpeg" {
		return "jpg"
	}
	return sub
}
