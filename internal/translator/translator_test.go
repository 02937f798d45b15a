package translator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/content-orchestrator/internal/llm"
	"github.com/MimeLyc/content-orchestrator/internal/llm/llmtest"
)

// prefixingGenerator answers every translation request with "es:" prepended to each value.
func prefixingGenerator() *llmtest.Generator {
	gen := llmtest.New()
	gen.Respond = func(req llm.Request) llm.Result {
		var in map[string]string
		if err := json.Unmarshal([]byte(req.Prompt), &in); err != nil {
			return llmtest.Failure(err.Error())
		}
		out := make(map[string]string, len(in))
		for k, v := range in {
			out[k] = "es:" + v
		}
		return llmtest.JSON(out)
	}
	return gen
}

func sampleLayout() []any {
	return []any{
		map[string]any{
			"blockType": "hero",
			"id":        "Welcome",
			"title":     "Welcome",
			"subTitle":  "Grow faster",
			"media":     map[string]any{"title": "Photo title"},
			"links": []any{
				map[string]any{"link": map[string]any{"label": "Contact us", "url": "/contact"}},
			},
		},
		map[string]any{
			"blockType": "cta",
			"title":     "Welcome",
			"slug":      "welcome",
			"variant":   "primary",
		},
	}
}

func TestTranslateLayout(t *testing.T) {
	t.Parallel()

	gen := prefixingGenerator()
	tr := New(gen, nil)
	layout := sampleLayout()

	out, stats := tr.Translate(context.Background(), layout, "es", Options{})
	blocks := out.([]any)

	hero := blocks[0].(map[string]any)
	assert.Equal(t, "es:Welcome", hero["title"])
	assert.Equal(t, "es:Grow faster", hero["subTitle"])
	assert.Equal(t, "Welcome", hero["id"])
	assert.Equal(t, "hero", hero["blockType"])
	assert.Equal(t, map[string]any{"title": "Photo title"}, hero["media"])

	link := hero["links"].([]any)[0].(map[string]any)["link"].(map[string]any)
	assert.Equal(t, "es:Contact us", link["label"])
	assert.Equal(t, "/contact", link["url"])

	cta := blocks[1].(map[string]any)
	assert.Equal(t, "es:Welcome", cta["title"])
	assert.Equal(t, "welcome", cta["slug"])

	// the source layout is untouched
	assert.Equal(t, "Welcome", layout[0].(map[string]any)["title"])

	assert.Equal(t, 3, stats.Strings)
	assert.Equal(t, 3, stats.Requested)
	assert.Equal(t, 1, gen.Calls())
}

func TestTranslateSharesIdenticalStrings(t *testing.T) {
	t.Parallel()

	gen := prefixingGenerator()
	tr := New(gen, nil)

	layout := []any{
		map[string]any{"blockType": "content", "title": "Same text"},
		map[string]any{"blockType": "content", "title": "Same text"},
	}
	out, _ := tr.Translate(context.Background(), layout, "es", Options{})
	blocks := out.([]any)
	assert.Equal(t, "es:Same text", blocks[0].(map[string]any)["title"])
	assert.Equal(t, "es:Same text", blocks[1].(map[string]any)["title"])

	reqs := gen.Requests()
	require.Len(t, reqs, 1)
	var entries map[string]string
	require.NoError(t, json.Unmarshal([]byte(reqs[0].Prompt), &entries))
	assert.Len(t, entries, 1)
	assert.Contains(t, reqs[0].System, "Spanish (es)")
}

func TestTranslateUsesCache(t *testing.T) {
	t.Parallel()

	gen := prefixingGenerator()
	cache := NewMemoryCache()
	tr := New(gen, cache)

	_, _ = tr.Translate(context.Background(), sampleLayout(), "es", Options{})
	out, stats := tr.Translate(context.Background(), sampleLayout(), "es", Options{})

	assert.Equal(t, 1, gen.Calls())
	assert.Equal(t, 3, stats.CacheHits)
	assert.Equal(t, 0, stats.Requested)
	assert.Equal(t, "es:Welcome", out.([]any)[0].(map[string]any)["title"])
	assert.Equal(t, 3, cache.Len())

	// a different target language does not reuse the entries
	_, stats = tr.Translate(context.Background(), sampleLayout(), "fr", Options{})
	assert.Equal(t, 0, stats.CacheHits)
	assert.Equal(t, 2, gen.Calls())
}

func TestTranslateKeepsOriginalOnFailure(t *testing.T) {
	t.Parallel()

	tr := New(llmtest.New(), nil)

	out, stats := tr.Translate(context.Background(), sampleLayout(), "es", Options{})
	assert.Equal(t, "Welcome", out.([]any)[0].(map[string]any)["title"])
	assert.Equal(t, 3, stats.Failed)
}

func TestTranslatePostKeepsLexicalStructure(t *testing.T) {
	t.Parallel()

	tr := New(prefixingGenerator(), nil)
	post := map[string]any{
		"title": "News",
		"content": map[string]any{
			"root": map[string]any{
				"type": "root",
				"children": []any{
					map[string]any{
						"type":     "paragraph",
						"children": []any{map[string]any{"type": "text", "text": "Hello world", "version": float64(1)}},
					},
				},
			},
		},
	}

	out, _ := tr.Translate(context.Background(), post, "es", Options{})
	translated := out.(map[string]any)
	assert.Equal(t, "es:News", translated["title"])

	root := translated["content"].(map[string]any)["root"].(map[string]any)
	assert.Equal(t, "root", root["type"])
	para := root["children"].([]any)[0].(map[string]any)
	assert.Equal(t, "paragraph", para["type"])
	text := para["children"].([]any)[0].(map[string]any)
	assert.Equal(t, "es:Hello world", text["text"])
	assert.Equal(t, "text", text["type"])
}

func TestCacheKeyDependsOnLanguage(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t, CacheKey("es", "Hello"), CacheKey("fr", "Hello"))
	assert.Equal(t, CacheKey("es", "Hello"), CacheKey("es", "Hello"))
	assert.Len(t, CacheKey("es", "Hello"), 64)
}
