package content

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MimeLyc/content-orchestrator/internal/llm"
	"github.com/MimeLyc/content-orchestrator/pkg/log"
)

const (
	titleMinLength    = 30
	titleMaxLength    = 60
	subtitleMinLength = 50
	minBlocksPerPage  = 3
	maxBlocksPerPage  = 15
	approvalScore     = 70
)

type Issue struct {
	Severity   string `json:"severity"`
	Category   string `json:"category"`
	Message    string `json:"message"`
	BlockIndex *int   `json:"blockIndex,omitempty"`
}

type SEORecommendations struct {
	PrimaryKeyword           string   `json:"primaryKeyword,omitempty"`
	SecondaryKeywords        []string `json:"secondaryKeywords,omitempty"`
	SuggestedTitle           string   `json:"suggestedTitle,omitempty"`
	SuggestedMetaDescription string   `json:"suggestedMetaDescription,omitempty"`
	InternalLinkSuggestions  []string `json:"internalLinkSuggestions,omitempty"`
}

type ReviewResult struct {
	Approved           bool                `json:"approved"`
	Score              int                 `json:"score"`
	SEOIssues          []Issue             `json:"seoIssues"`
	ContentIssues      []Issue             `json:"contentIssues"`
	Suggestions        []string            `json:"suggestions"`
	SEORecommendations *SEORecommendations `json:"seoRecommendations,omitempty"`
}

// Issues is the shape stored in a job's review_issues.
func (r ReviewResult) Issues() map[string]any {
	issues := map[string]any{
		"seoIssues":     nonNil(r.SEOIssues),
		"contentIssues": nonNil(r.ContentIssues),
		"suggestions":   nonNilStrings(r.Suggestions),
	}
	if r.SEORecommendations != nil {
		issues["seoRecommendations"] = r.SEORecommendations
	}
	return issues
}

type ReviewContext struct {
	PageTitle string
	PageSlug  string
	BrandTone string
	Industry  string
	SkipAI    bool
}

// Reviewer scores a generated layout out of 100. Structural SEO checks always run; the
// generator-backed content review is optional.
type Reviewer struct {
	gen llm.Generator
}

func NewReviewer(gen llm.Generator) *Reviewer {
	return &Reviewer{gen: gen}
}

func (r *Reviewer) Review(ctx context.Context, layout []Block, rc ReviewContext) ReviewResult {
	log.Info("[Reviewer] starting review for page: %s", rc.PageTitle)

	score := 100
	seoIssues, deductions := structuralChecks(layout)
	score -= deductions

	result := ReviewResult{SEOIssues: seoIssues}
	if !rc.SkipAI && r.gen != nil {
		ai := r.aiReview(ctx, layout, rc)
		result.ContentIssues = ai.issues
		result.Suggestions = ai.suggestions
		result.SEORecommendations = ai.recommendations
		score -= ai.deductions
	}

	result.Score = max(0, min(100, score))
	result.Approved = result.Score >= approvalScore
	log.Info("[Reviewer] review complete, score: %d, approved: %v", result.Score, result.Approved)
	return result
}

func structuralChecks(layout []Block) ([]Issue, int) {
	var issues []Issue
	deductions := 0
	heroIndex := 0

	if layout == nil {
		return []Issue{{Severity: "error", Category: "structure", Message: "Layout is missing or invalid"}}, 50
	}

	if len(layout) < minBlocksPerPage {
		issues = append(issues, Issue{Severity: "warning", Category: "structure",
			Message: fmt.Sprintf("Page has only %d blocks. Recommended minimum is %d.", len(layout), minBlocksPerPage)})
		deductions += 10
	}
	if len(layout) > maxBlocksPerPage {
		issues = append(issues, Issue{Severity: "warning", Category: "structure",
			Message: fmt.Sprintf("Page has %d blocks. Consider reducing to %d for better UX.", len(layout), maxBlocksPerPage)})
		deductions += 5
	}

	var hero Block
	for _, b := range layout {
		if b["blockType"] == "hero" {
			hero = b
			break
		}
	}
	if hero == nil {
		issues = append(issues, Issue{Severity: "warning", Category: "structure", Message: "Missing recommended block type: hero"})
		deductions += 5
	} else {
		if title, _ := hero["title"].(string); title != "" {
			n := utf8.RuneCountInString(title)
			if n < titleMinLength {
				issues = append(issues, Issue{Severity: "warning", Category: "title", BlockIndex: &heroIndex,
					Message: fmt.Sprintf("Hero title is too short (%d chars). Aim for %d-%d chars.", n, titleMinLength, titleMaxLength)})
				deductions += 5
			}
			if n > titleMaxLength {
				issues = append(issues, Issue{Severity: "warning", Category: "title", BlockIndex: &heroIndex,
					Message: fmt.Sprintf("Hero title is too long (%d chars). Keep under %d chars for SEO.", n, titleMaxLength)})
				deductions += 5
			}
		} else {
			issues = append(issues, Issue{Severity: "error", Category: "title", BlockIndex: &heroIndex, Message: "Hero block is missing a title"})
			deductions += 15
		}
		if sub, _ := hero["subTitle"].(string); sub != "" {
			if n := utf8.RuneCountInString(sub); n < subtitleMinLength {
				issues = append(issues, Issue{Severity: "info", Category: "meta", BlockIndex: &heroIndex,
					Message: fmt.Sprintf("Hero subtitle is short (%d chars). Consider expanding for better engagement.", n)})
				deductions += 2
			}
		}
	}

	if !hasInternalLinks(layout) {
		issues = append(issues, Issue{Severity: "info", Category: "links",
			Message: "No internal links found. Consider adding links to other pages for better navigation and SEO."})
		deductions += 5
	}

	hasFAQ := false
	for _, b := range layout {
		if b["blockType"] == "faq" {
			hasFAQ = true
			break
		}
	}
	if !hasFAQ {
		issues = append(issues, Issue{Severity: "info", Category: "structure", Message: "Consider adding an FAQ block for better SEO schema markup."})
	}

	return issues, deductions
}

func hasInternalLinks(layout []Block) bool {
	for _, b := range layout {
		links, _ := b["links"].([]any)
		for _, l := range links {
			link, ok := l.(map[string]any)
			if !ok {
				continue
			}
			if isInternalLink(link) {
				return true
			}
			if inner, ok := link["link"].(map[string]any); ok && isInternalLink(inner) {
				return true
			}
		}
	}
	return false
}

func isInternalLink(link map[string]any) bool {
	if link["type"] == "reference" {
		return true
	}
	url, _ := link["url"].(string)
	return strings.HasPrefix(url, "/")
}

type aiReviewOutcome struct {
	issues          []Issue
	suggestions     []string
	recommendations *SEORecommendations
	deductions      int
}

func (r *Reviewer) aiReview(ctx context.Context, layout []Block, rc ReviewContext) aiReviewOutcome {
	layoutJSON, err := json.MarshalIndent(layout, "", "  ")
	if err != nil {
		log.Warn("[Reviewer] cannot encode layout for review: %v", err)
		return aiReviewOutcome{}
	}

	prompt := fmt.Sprintf(`You are an expert SEO and content quality reviewer. Analyze the following webpage content and provide a structured review.

PAGE TITLE: %s
BRAND TONE: %s
INDUSTRY: %s

CONTENT TO REVIEW:
%s

Provide your review as JSON with this exact structure:
{
    "contentIssues": [{"severity": "error|warning|info", "category": "tone|length|clarity|relevance", "message": "...", "blockIndex": 0}],
    "suggestions": ["..."],
    "overallQuality": "excellent|good|acceptable|poor",
    "toneMatch": true,
    "seoRecommendations": {
        "primaryKeyword": "string",
        "secondaryKeywords": ["string"],
        "suggestedTitle": "string",
        "suggestedMetaDescription": "string",
        "internalLinkSuggestions": ["slug"]
    }
}

REVIEW CRITERIA:
1. Does the content match the brand tone (%s)?
2. Is the content relevant to the industry (%s)?
3. Is the content clear and engaging?
4. Are there any grammatical or clarity issues?
5. Is the content length appropriate for each section?

Be constructive and specific. Limit to top 5 most important issues.`,
		rc.PageTitle, rc.BrandTone, rc.Industry, layoutJSON, rc.BrandTone, rc.Industry)

	res := r.gen.Generate(ctx, llm.Request{Prompt: prompt, Mode: llm.ModeJSON})
	var review struct {
		ContentIssues      []Issue             `json:"contentIssues"`
		Suggestions        []string            `json:"suggestions"`
		OverallQuality     string              `json:"overallQuality"`
		ToneMatch          *bool               `json:"toneMatch"`
		SEORecommendations *SEORecommendations `json:"seoRecommendations"`
	}
	if err := res.Decode(&review); err != nil {
		log.Warn("[Reviewer] AI review failed, using structural checks only: %v", err)
		return aiReviewOutcome{}
	}

	out := aiReviewOutcome{
		issues:          review.ContentIssues,
		suggestions:     review.Suggestions,
		recommendations: review.SEORecommendations,
	}
	switch review.OverallQuality {
	case "poor":
		out.deductions += 20
	case "acceptable":
		out.deductions += 10
	case "good":
		out.deductions += 5
	}
	if review.ToneMatch != nil && !*review.ToneMatch {
		out.deductions += 10
	}
	for _, issue := range review.ContentIssues {
		switch issue.Severity {
		case "error":
			out.deductions += 5
		case "warning":
			out.deductions += 2
		}
	}
	return out
}

func nonNil(issues []Issue) []Issue {
	if issues == nil {
		return []Issue{}
	}
	return issues
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
