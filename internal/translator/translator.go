// Package translator translates the copy inside content layouts while leaving structure,
// identifiers and media untouched.
package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/MimeLyc/content-orchestrator/internal/llm"
	"github.com/MimeLyc/content-orchestrator/pkg/log"
)

var translatableKeys = map[string]bool{
	"title":        true,
	"subTitle":     true,
	"heading":      true,
	"label":        true,
	"text":         true,
	"description":  true,
	"introContent": true,
	"buttonText":   true,
	"ctaText":      true,
}

var mediaKeys = map[string]bool{
	"image":     true,
	"images":    true,
	"icon":      true,
	"icons":     true,
	"video":     true,
	"videos":    true,
	"media":     true,
	"upload":    true,
	"thumbnail": true,
	"file":      true,
}

var structuralKeys = map[string]bool{
	"blockType": true,
	"id":        true,
	"_uuid":     true,
	"slug":      true,
	"status":    true,
	"variant":   true,
}

// Options carry prompt context for one translation run.
type Options struct {
	SourceLanguage string
	BrandTone      string
}

// Stats describes how a run was served.
type Stats struct {
	Strings   int `json:"strings"`
	CacheHits int `json:"cache_hits"`
	Requested int `json:"requested"`
	Failed    int `json:"failed"`
}

// Translator translates allow-listed strings through a single generation call per run,
// reusing earlier translations from the cache.
type Translator struct {
	gen   llm.Generator
	cache Cache
}

func New(gen llm.Generator, cache Cache) *Translator {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Translator{gen: gen, cache: cache}
}

// Translate returns a translated deep copy of value. Strings without a translation keep their
// original text; value itself is never modified.
func (t *Translator) Translate(ctx context.Context, value any, targetLang string, opts Options) (any, Stats) {
	var stats Stats
	paths := map[string]string{}
	collect(value, "", paths)

	translated := map[string]string{}
	pending := map[string]string{}
	seen := map[string]bool{}
	for _, path := range sortedKeys(paths) {
		text := paths[path]
		if seen[text] {
			continue
		}
		seen[text] = true
		stats.Strings++

		cached, ok, err := t.cache.Get(ctx, CacheKey(targetLang, text))
		if err != nil {
			log.Warn("[Translator] cache lookup failed: %v", err)
		}
		if ok {
			translated[text] = cached
			stats.CacheHits++
			continue
		}
		pending[path] = text
	}

	if len(pending) > 0 {
		stats.Requested = len(pending)
		results, err := t.request(ctx, pending, targetLang, opts)
		if err != nil {
			log.Warn("[Translator] generation failed, keeping original text: %v", err)
			stats.Failed = len(pending)
		}
		for path, text := range pending {
			out := strings.TrimSpace(results[path])
			if out == "" {
				if err == nil {
					stats.Failed++
				}
				continue
			}
			translated[text] = out
			if err := t.cache.Set(ctx, CacheKey(targetLang, text), out); err != nil {
				log.Warn("[Translator] cache write failed: %v", err)
			}
		}
	}

	log.Info("[Translator] %s: %d strings, %d cached, %d requested, %d failed",
		targetLang, stats.Strings, stats.CacheHits, stats.Requested, stats.Failed)
	return apply(deepCopy(value), translated), stats
}

func (t *Translator) request(ctx context.Context, texts map[string]string, targetLang string, opts Options) (map[string]string, error) {
	if t.gen == nil {
		return nil, fmt.Errorf("no generator configured")
	}
	payload, err := json.Marshal(texts)
	if err != nil {
		return nil, fmt.Errorf("encode texts: %w", err)
	}

	source := opts.SourceLanguage
	if source == "" {
		source = "en"
	}
	tone := opts.BrandTone
	if tone == "" {
		tone = "Professional"
	}
	system := fmt.Sprintf(`You are a professional translator for web content.
Translate the values of the JSON object from %s to %s.
Maintain brand tone: %q.
Keep every key unchanged. Return a JSON object mapping the same keys to the translated texts.`,
		languageName(source), languageName(targetLang), tone)

	res := t.gen.Generate(ctx, llm.Request{System: system, Prompt: string(payload), Mode: llm.ModeJSON})
	var out map[string]string
	if err := res.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// languageName renders a code like "es" as "Spanish (es)" for prompts.
func languageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	name := display.English.Tags().Name(tag)
	if name == "" {
		return code
	}
	return fmt.Sprintf("%s (%s)", name, code)
}

func collect(v any, path string, out map[string]string) {
	switch node := v.(type) {
	case map[string]any:
		for key, child := range node {
			if mediaKeys[strings.ToLower(key)] {
				continue
			}
			childPath := joinPath(path, key)
			if s, ok := child.(string); ok {
				if translatableKeys[key] && strings.TrimSpace(s) != "" {
					out[childPath] = s
				}
				continue
			}
			collect(child, childPath, out)
		}
	case []any:
		for i, child := range node {
			collect(child, joinPath(path, strconv.Itoa(i)), out)
		}
	}
}

func apply(v any, translated map[string]string) any {
	switch node := v.(type) {
	case map[string]any:
		for key, child := range node {
			if mediaKeys[strings.ToLower(key)] || structuralKeys[key] {
				continue
			}
			if s, ok := child.(string); ok {
				if tr, ok := translated[s]; ok {
					node[key] = tr
				}
				continue
			}
			node[key] = apply(child, translated)
		}
		return node
	case []any:
		for i, child := range node {
			node[i] = apply(child, translated)
		}
		return node
	default:
		return v
	}
}

func deepCopy(v any) any {
	switch node := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for k, child := range node {
			out[k] = deepCopy(child)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, child := range node {
			out[i] = deepCopy(child)
		}
		return out
	default:
		return v
	}
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
