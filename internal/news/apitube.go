// Package news pulls industry articles from APITube and rewrites them into blog posts.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/content-orchestrator/pkg/log"
)

type Article struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	URL         string `json:"url"`
	Source      string `json:"source"`
	PublishedAt string `json:"publishedAt"`
}

// Source returns articles matching a search query.
type Source interface {
	Fetch(ctx context.Context, query string, limit int) ([]Article, error)
}

type APITubeClient struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
}

func NewAPITubeClient(apiURL, apiKey string) *APITubeClient {
	return &APITubeClient{
		apiURL:     apiURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *APITubeClient) Fetch(ctx context.Context, query string, limit int) ([]Article, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("APITube key is not configured")
	}

	params := url.Values{}
	params.Set("per_page", strconv.Itoa(limit))
	params.Set("q", query)
	params.Set("industry", "auto")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("APITube request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("APITube error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var page struct {
		Results []map[string]any `json:"results"`
		Data    []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to parse APITube response: %w", err)
	}
	items := page.Results
	if len(items) == 0 {
		items = page.Data
	}

	articles := make([]Article, 0, len(items))
	for _, item := range items {
		a := toArticle(item)
		if a.Title == "" {
			continue
		}
		articles = append(articles, a)
	}
	log.Debug("[APITube] query %q returned %d articles", query, len(articles))
	return articles, nil
}

func toArticle(item map[string]any) Article {
	return Article{
		ID:          firstOf(item, "id", "article_id", "url"),
		Title:       firstOf(item, "title"),
		Description: firstOf(item, "description"),
		Content:     firstOf(item, "content", "body", "description"),
		URL:         firstOf(item, "href", "url"),
		Source:      orDefault(firstOf(item, "source_name", "source"), "unknown"),
		PublishedAt: orDefault(firstOf(item, "published_at", "date"), time.Now().UTC().Format(time.RFC3339)),
	}
}

// firstOf returns the first non-empty value among keys, with numbers rendered as text.
func firstOf(item map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := item[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case map[string]any:
			// APITube nests some fields, e.g. source: {"domain": ...}
			if name, ok := v["domain"].(string); ok && name != "" {
				return name
			}
		}
	}
	return ""
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
