package content

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/content-orchestrator/internal/llm/llmtest"
)

func TestReviewStructuralOnly(t *testing.T) {
	gen := llmtest.New()
	r := NewReviewer(gen)

	layout := []Block{
		{"blockType": "hero", "title": "Short", "subTitle": "tiny"},
		{"blockType": "faq", "questions": []any{}},
	}
	result := r.Review(context.Background(), layout, ReviewContext{PageTitle: "Pricing", SkipAI: true})

	// 100 - 10 (blocks) - 5 (title) - 2 (subtitle) - 5 (links)
	assert.Equal(t, 78, result.Score)
	assert.True(t, result.Approved)
	assert.Len(t, result.SEOIssues, 4)
	assert.Empty(t, result.ContentIssues)
	assert.Equal(t, 0, gen.Calls())
}

func TestReviewMissingHeroAndFAQ(t *testing.T) {
	r := NewReviewer(nil)

	layout := []Block{
		{"blockType": "cta", "links": []any{map[string]any{"link": map[string]any{"type": "custom", "url": "/contact"}}}},
		{"blockType": "content"},
		{"blockType": "stats"},
	}
	result := r.Review(context.Background(), layout, ReviewContext{})

	assert.Equal(t, 95, result.Score)
	var messages []string
	for _, issue := range result.SEOIssues {
		messages = append(messages, issue.Message)
	}
	assert.Contains(t, messages, "Missing recommended block type: hero")
	assert.Contains(t, messages, "Consider adding an FAQ block for better SEO schema markup.")
}

func TestReviewWithAIDeductions(t *testing.T) {
	gen := llmtest.New().On("expert SEO and content quality reviewer", llmtest.JSON(map[string]any{
		"contentIssues": []map[string]any{
			{"severity": "error", "category": "tone", "message": "Too casual"},
			{"severity": "warning", "category": "length", "message": "Thin FAQ"},
		},
		"suggestions":    []string{"Add pricing table"},
		"overallQuality": "acceptable",
		"toneMatch":      false,
		"seoRecommendations": map[string]any{
			"primaryKeyword": "crm pricing",
		},
	}))
	r := NewReviewer(gen)

	layout := []Block{
		{"blockType": "hero", "title": "Transparent CRM pricing for every growing team", "links": []any{map[string]any{"type": "reference", "reference": "about"}}},
		{"blockType": "faq"},
		{"blockType": "cta"},
	}
	result := r.Review(context.Background(), layout, ReviewContext{PageTitle: "Pricing", BrandTone: "friendly", Industry: "saas"})

	// AI: 10 (acceptable) + 10 (tone) + 5 (error) + 2 (warning)
	assert.Equal(t, 73, result.Score)
	assert.True(t, result.Approved)
	assert.Len(t, result.ContentIssues, 2)
	assert.Equal(t, []string{"Add pricing table"}, result.Suggestions)
	require.NotNil(t, result.SEORecommendations)
	assert.Equal(t, "crm pricing", result.SEORecommendations.PrimaryKeyword)
	assert.Equal(t, 1, gen.Calls())

	issues := result.Issues()
	assert.Contains(t, issues, "seoRecommendations")
	assert.Empty(t, issues["seoIssues"])
}

func TestReviewIgnoresFailedAIReview(t *testing.T) {
	gen := llmtest.New()
	r := NewReviewer(gen)

	layout := []Block{
		{"blockType": "hero", "title": "Transparent CRM pricing for every growing team", "links": []any{map[string]any{"type": "reference", "reference": "about"}}},
		{"blockType": "faq"},
		{"blockType": "cta"},
	}
	result := r.Review(context.Background(), layout, ReviewContext{})
	assert.Equal(t, 100, result.Score)
	assert.Equal(t, 1, gen.Calls())
}
