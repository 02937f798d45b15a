package news

import (
	"context"
	"fmt"
	"time"

	"github.com/MimeLyc/content-orchestrator/internal/config"
	"github.com/MimeLyc/content-orchestrator/internal/docstore"
	"github.com/MimeLyc/content-orchestrator/pkg/log"
)

const (
	perQueryLimit    = 20
	recentTitleCount = 50
	defaultDailyCap  = 100
	defaultThreshold = 0.85
)

type FetchStats struct {
	Saved      int `json:"saved"`
	Duplicates int `json:"duplicates"`
	Errors     int `json:"errors"`
}

// Fetcher stores new, non-duplicate articles in news_raw.
type Fetcher struct {
	docs   docstore.Store
	source Source
	now    func() time.Time
}

func NewFetcher(docs docstore.Store, source Source) *Fetcher {
	return &Fetcher{docs: docs, source: source, now: time.Now}
}

// Run fetches every configured query until the daily cap is reached. A failing query is
// logged and skipped.
func (f *Fetcher) Run(ctx context.Context, settings config.RuntimeSettings) (FetchStats, error) {
	var stats FetchStats
	dailyCap := settings.DailyCap
	if dailyCap <= 0 {
		dailyCap = defaultDailyCap
	}
	threshold := settings.SimilarityThreshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}

	recent, err := f.docs.Find(ctx, docstore.CollectionNewsRaw, docstore.Query{Sort: "-published_at", Limit: recentTitleCount})
	if err != nil {
		return stats, fmt.Errorf("failed to load recent news: %w", err)
	}
	titles := make([]string, 0, len(recent))
	for _, doc := range recent {
		titles = append(titles, doc.String("title"))
	}

	for _, query := range settings.SearchQueries {
		if stats.Saved >= dailyCap {
			break
		}
		log.Info("[NewsFetcher] fetching for query: %s", query)
		articles, err := f.source.Fetch(ctx, query, perQueryLimit)
		if err != nil {
			log.Error("[NewsFetcher] query %q failed: %v", query, err)
			stats.Errors++
			continue
		}

		for _, article := range articles {
			if stats.Saved >= dailyCap {
				break
			}
			if isDuplicate(article.Title, titles, threshold) {
				log.Debug("[NewsFetcher] skipping duplicate title: %s", article.Title)
				stats.Duplicates++
				continue
			}

			_, err := f.docs.Create(ctx, docstore.CollectionNewsRaw, docstore.Document{
				"source":       "apitube",
				"external_id":  article.ID,
				"title":        article.Title,
				"description":  article.Description,
				"content":      article.Content,
				"url":          article.URL,
				"published_at": article.PublishedAt,
				"fetched_at":   f.now().UTC().Format(time.RFC3339),
				"processed":    false,
			})
			if err != nil {
				log.Error("[NewsFetcher] failed to save article %q: %v", article.Title, err)
				stats.Errors++
				continue
			}
			titles = append(titles, article.Title)
			stats.Saved++
		}
	}

	log.Info("[NewsFetcher] completed, saved %d new articles (%d duplicates)", stats.Saved, stats.Duplicates)
	return stats, nil
}

func isDuplicate(title string, existing []string, threshold float64) bool {
	for _, t := range existing {
		if TitleSimilarity(t, title) >= threshold {
			return true
		}
	}
	return false
}
