package content

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/content-orchestrator/internal/docstore"
	"github.com/MimeLyc/content-orchestrator/pkg/log"
)

// BlockError records why a block was dropped.
type BlockError struct {
	Index int    `json:"index"`
	Type  string `json:"type"`
	Error string `json:"error"`
}

// MediaStorer turns a remote media URL into a stored asset id.
type MediaStorer interface {
	Upload(ctx context.Context, url string) (string, error)
}

var (
	volatileKeys = map[string]bool{"id": true, "_uuid": true, "createdAt": true, "updatedAt": true, "blockName": true}
	mediaFields  = []string{"media", "icon", "logo", "image"}
	lexicalKeys  = []string{"richText", "answer", "introContent"}
	numericID    = regexp.MustCompile(`^\d+$`)
)

const nestedItemConcurrency = 4

// PostProcessor validates generated layouts and resolves their references against the store.
type PostProcessor struct {
	registry *Registry
	docs     docstore.Store
	media    MediaStorer
}

func NewPostProcessor(registry *Registry, docs docstore.Store, media MediaStorer) *PostProcessor {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &PostProcessor{registry: registry, docs: docs, media: media}
}

func (p *PostProcessor) Registry() *Registry {
	return p.registry
}

// Process returns the surviving blocks and one BlockError per dropped block. A failing block
// never fails the layout.
func (p *PostProcessor) Process(ctx context.Context, layout []any) ([]Block, []BlockError) {
	log.Info("[PostProcessor] cleaning and processing %d blocks", len(layout))

	cleaned, _ := cleanValue(layout, true).([]any)
	processed := make([]Block, 0, len(cleaned))
	var blockErrors []BlockError

	for i, raw := range cleaned {
		blockType := "unknown"
		if m, ok := raw.(map[string]any); ok {
			if t, ok := m["blockType"].(string); ok && t != "" {
				blockType = t
			}
		}

		if err := p.registry.Validate(raw); err != nil {
			log.Warn("[PostProcessor] block %d (%s) failed validation: %v", i, blockType, err)
			blockErrors = append(blockErrors, BlockError{Index: i, Type: blockType, Error: err.Error()})
			continue
		}

		block, err := p.processBlock(ctx, raw.(map[string]any))
		if err != nil {
			log.Error("[PostProcessor] block %d (%s) processing error: %v", i, blockType, err)
			blockErrors = append(blockErrors, BlockError{Index: i, Type: blockType, Error: "processing error: " + err.Error()})
			continue
		}
		final, _ := cleanValue(block, false).(map[string]any)
		// a cleared media field can break the contract again
		if err := p.registry.Validate(final); err != nil {
			log.Warn("[PostProcessor] block %d (%s) invalid after processing: %v", i, blockType, err)
			blockErrors = append(blockErrors, BlockError{Index: i, Type: blockType, Error: err.Error()})
			continue
		}
		processed = append(processed, final)
	}

	return processed, blockErrors
}

func (p *PostProcessor) processBlock(ctx context.Context, raw map[string]any) (Block, error) {
	schema, _ := p.registry.Lookup(raw["blockType"].(string))
	block := schema.Project(raw)
	log.Debug("[PostProcessor] processing block %s", schema.Slug)

	if links, ok := block["links"].([]any); ok {
		block["links"] = p.transformLinks(ctx, links)
	}
	if link, ok := block["link"].(map[string]any); ok {
		block["link"] = p.transformLink(ctx, link)
	}
	wrapLexical(block)

	switch v := block["columns"].(type) {
	case float64:
		block["columns"] = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		block["columns"] = strconv.Itoa(v)
	}

	p.uploadMediaFields(ctx, block)

	switch schema.Slug {
	case "archive":
		if cats, ok := block["categories"].([]any); ok {
			block["categories"] = p.resolveCategories(ctx, cats)
		}
	case "formBlock":
		if err := p.resolveForm(ctx, block); err != nil {
			return nil, err
		}
	}

	for key, value := range block {
		if key == "links" || key == "formFields" || key == "categories" {
			continue
		}
		items, ok := value.([]any)
		if !ok {
			continue
		}
		processedItems, err := p.processItems(ctx, items)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		block[key] = processedItems
	}

	return block, nil
}

// processItems runs link, media and rich text handling over nested array items concurrently.
func (p *PostProcessor) processItems(ctx context.Context, items []any) ([]any, error) {
	out := make([]any, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(nestedItemConcurrency)
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			out[i] = item
			continue
		}
		g.Go(func() error {
			next := make(map[string]any, len(obj))
			for k, v := range obj {
				next[k] = v
			}
			if links, ok := next["links"].([]any); ok {
				next["links"] = p.transformLinks(gctx, links)
			}
			if link, ok := next["link"].(map[string]any); ok {
				next["link"] = p.transformLink(gctx, link)
			}
			p.uploadMediaFields(gctx, next)
			wrapLexical(next)
			out[i] = next
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ret := out[:0]
	for _, item := range out {
		if item != nil {
			ret = append(ret, item)
		}
	}
	return ret, nil
}

func wrapLexical(m map[string]any) {
	for _, key := range lexicalKeys {
		if s, ok := m[key].(string); ok && s != "" {
			m[key] = ToLexical(s)
		}
	}
}

func (p *PostProcessor) uploadMediaFields(ctx context.Context, m map[string]any) {
	for _, field := range mediaFields {
		url, ok := m[field].(string)
		if !ok || !strings.HasPrefix(url, "http") {
			continue
		}
		if p.media == nil {
			delete(m, field)
			continue
		}
		id, err := p.media.Upload(ctx, url)
		if err != nil {
			log.Warn("[PostProcessor] dropping media field %s: %v", field, err)
			delete(m, field)
			continue
		}
		m[field] = id
	}
}

func (p *PostProcessor) transformLinks(ctx context.Context, links []any) []any {
	out := make([]any, 0, len(links))
	for _, item := range links {
		obj, ok := item.(map[string]any)
		if !ok {
			out = append(out, item)
			continue
		}
		inner := obj
		if l, ok := obj["link"].(map[string]any); ok {
			inner = l
		}
		out = append(out, map[string]any{"link": p.transformLink(ctx, inner)})
	}
	return out
}

// transformLink normalizes a generated link into a reference to a page or a custom URL.
func (p *PostProcessor) transformLink(ctx context.Context, item map[string]any) map[string]any {
	reference := firstPresent(item, "reference", "page", "url")
	label := firstString(item, "label", "text", "title")
	if label == "" {
		label = "Learn More"
	}
	appearance := "default"
	if a, _ := item["appearance"].(string); a == "outline" || a == "secondary" {
		appearance = "outline"
	}
	newTab := truthy(item["newTab"])

	if t, _ := item["type"].(string); t == "reference" && reference != nil {
		if value, ok := p.resolveReference(ctx, reference); ok {
			return map[string]any{
				"type":       "reference",
				"reference":  value,
				"label":      label,
				"appearance": appearance,
				"newTab":     newTab,
			}
		}
	}

	url, _ := item["url"].(string)
	if url == "" {
		if slug, ok := reference.(string); ok && slug != "" {
			url = "/" + strings.TrimPrefix(slug, "/")
		} else {
			url = "#"
		}
	}
	return map[string]any{
		"type":       "custom",
		"url":        url,
		"label":      label,
		"appearance": appearance,
		"newTab":     newTab,
	}
}

func (p *PostProcessor) resolveReference(ctx context.Context, reference any) (map[string]any, bool) {
	switch ref := reference.(type) {
	case float64:
		return map[string]any{"relationTo": docstore.CollectionPages, "value": ref}, true
	case map[string]any:
		if _, ok := ref["value"]; ok {
			if _, ok := ref["relationTo"]; !ok {
				ref["relationTo"] = docstore.CollectionPages
			}
			return ref, true
		}
	case string:
		slug := strings.Trim(ref, "/")
		id, ok := p.resolveSlug(ctx, docstore.CollectionPages, slug)
		if ok {
			return map[string]any{"relationTo": docstore.CollectionPages, "value": id}, true
		}
	}
	return nil, false
}

// resolveSlug maps a slug to a document id. Numeric references pass through as numbers.
func (p *PostProcessor) resolveSlug(ctx context.Context, collection, slug string) (any, bool) {
	if slug == "" {
		return nil, false
	}
	if numericID.MatchString(slug) {
		n, err := strconv.Atoi(slug)
		if err == nil {
			return n, true
		}
	}
	doc, found, err := docstore.FindOne(ctx, p.docs, collection, map[string]any{"slug": slug})
	if err != nil {
		log.Error("[PostProcessor] failed to resolve slug %q in %s: %v", slug, collection, err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	return doc.ID(), true
}

// resolveCategories maps category slugs to ids, creating categories that do not exist yet.
func (p *PostProcessor) resolveCategories(ctx context.Context, slugs []any) []any {
	ids := make([]any, 0, len(slugs))
	for _, item := range slugs {
		slug, ok := item.(string)
		if !ok {
			ids = append(ids, item)
			continue
		}
		existing, found, err := docstore.FindOne(ctx, p.docs, docstore.CollectionCategories, map[string]any{"slug": slug})
		if err != nil {
			log.Error("[PostProcessor] failed to resolve category %s: %v", slug, err)
			continue
		}
		if found {
			ids = append(ids, existing.ID())
			continue
		}

		log.Info("[PostProcessor] creating missing category: %s", slug)
		created, err := p.docs.Create(ctx, docstore.CollectionCategories, docstore.Document{
			"title":                categoryTitle(slug),
			"slug":                 slug,
			"language":             "en",
			"translation_group_id": uuid.NewString(),
		})
		if err != nil {
			log.Error("[PostProcessor] failed to create category %s: %v", slug, err)
			continue
		}
		ids = append(ids, created.ID())
	}
	return ids
}

func categoryTitle(slug string) string {
	if slug == "" {
		return slug
	}
	title := strings.ReplaceAll(slug, "-", " ")
	return strings.ToUpper(title[:1]) + title[1:]
}

func (p *PostProcessor) resolveForm(ctx context.Context, block map[string]any) error {
	hasDefinition := !isEmpty(block["formTitle"]) || !isEmpty(block["formFields"])

	formSlug, isSlug := block["form"].(string)
	switch {
	case isSlug && formSlug != "":
		if id, ok := p.resolveSlug(ctx, docstore.CollectionForms, formSlug); ok {
			block["form"] = id
			return nil
		}
		if !hasDefinition {
			return fmt.Errorf("could not resolve form %q and no definition was provided", formSlug)
		}
	case isEmpty(block["form"]) && hasDefinition:
	default:
		return nil
	}

	id, err := p.createForm(ctx, block)
	if err != nil {
		return fmt.Errorf("failed to create form: %w", err)
	}
	block["form"] = id
	return nil
}

func (p *PostProcessor) createForm(ctx context.Context, block map[string]any) (string, error) {
	title := firstString(block, "formTitle", "form")
	if title == "" {
		title = "New Contact Form"
	}

	existing, found, err := docstore.FindOne(ctx, p.docs, docstore.CollectionForms, map[string]any{"title": title})
	if err != nil {
		return "", err
	}
	if found {
		return existing.ID(), nil
	}

	log.Info("[PostProcessor] creating form: %s", title)
	created, err := p.docs.Create(ctx, docstore.CollectionForms, docstore.Document{
		"title":               title,
		"slug":                Slugify(title),
		"fields":              formFields(block["formFields"]),
		"submitButtonLabel":   "Submit",
		"confirmationType":    "message",
		"confirmationMessage": ToLexical("Thank you for your message! We will get back to you soon."),
	})
	if err != nil {
		return "", err
	}
	return created.ID(), nil
}

func formFields(raw any) []any {
	defs, ok := raw.([]any)
	if !ok || len(defs) == 0 {
		return []any{
			map[string]any{"blockType": "text", "name": "full_name", "label": "Full Name", "required": true},
			map[string]any{"blockType": "email", "name": "email", "label": "Email Address", "required": true},
			map[string]any{"blockType": "textarea", "name": "message", "label": "Message", "required": true},
		}
	}

	fields := make([]any, 0, len(defs))
	for _, d := range defs {
		def, ok := d.(map[string]any)
		if !ok {
			continue
		}
		field := make(map[string]any, len(def)+4)
		for k, v := range def {
			field[k] = v
		}
		if isEmpty(field["blockType"]) {
			field["blockType"] = "text"
		}
		label := firstString(def, "label", "name")
		name, _ := def["name"].(string)
		if name == "" {
			name = strings.Join(strings.Fields(strings.ToLower(label)), "_")
		}
		if name == "" {
			name = "field"
		}
		if label == "" {
			label = "Field"
		}
		field["name"] = name
		field["label"] = label
		field["required"] = truthy(def["required"])
		if msg, ok := field["message"].(string); ok && field["blockType"] == "message" {
			field["message"] = ToLexical(msg)
		}
		fields = append(fields, field)
	}
	return fields
}

// cleanValue drops nulls recursively and collapses populated media objects to their id.
// stripIDs also removes volatile keys so cloned layouts create new blocks.
func cleanValue(v any, stripIDs bool) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			if c := cleanValue(item, stripIDs); c != nil {
				out = append(out, c)
			}
		}
		return out
	case []map[string]any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			if c := cleanValue(item, stripIDs); c != nil {
				out = append(out, c)
			}
		}
		return out
	case map[string]any:
		if t == nil {
			return nil
		}
		if id := t["id"]; !isEmpty(id) && t["blockType"] == nil && (!isEmpty(t["url"]) || !isEmpty(t["filename"])) {
			return id
		}
		out := make(map[string]any, len(t))
		for k, val := range t {
			if stripIDs && volatileKeys[k] {
				continue
			}
			if val == nil {
				continue
			}
			if c := cleanValue(val, stripIDs); c != nil {
				out[k] = c
			}
		}
		return out
	default:
		return v
	}
}

func firstPresent(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && !isEmpty(v) {
			return v
		}
	}
	return nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != "" && t != "false"
	case float64:
		return t != 0
	}
	return false
}
