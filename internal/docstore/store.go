// Package docstore is the generic document store the content pipeline reads and writes.
// Documents are JSON objects addressed by collection and id.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrNotFound = errors.New("document not found")
	// ErrExists is returned by Create when the id is already taken.
	ErrExists = errors.New("document already exists")
)

const (
	CollectionPages        = "pages"
	CollectionPosts        = "posts"
	CollectionHeader       = "header"
	CollectionFooter       = "footer"
	CollectionMedia        = "media"
	CollectionTranslations = "translations"
	CollectionNewsRaw      = "news_raw"
	CollectionCategories   = "categories"
	CollectionForms        = "forms"
	CollectionGlobals      = "globals"
)

// Global document ids inside CollectionGlobals.
const (
	GlobalWebsiteInfo  = "website-info"
	GlobalNewsSettings = "industry-news-settings"
)

type Document map[string]any

func (d Document) ID() string {
	return d.String("id")
}

// String returns the value at key when it is a string, and "" otherwise.
func (d Document) String(key string) string {
	if v, ok := d[key].(string); ok {
		return v
	}
	return ""
}

// Clone deep-copies the document through its JSON form.
func (d Document) Clone() Document {
	out, err := Normalize(d)
	if err != nil {
		return Document{}
	}
	return out
}

// Normalize converts v into a Document with JSON-decoded value types, so float64 numbers and
// []any arrays regardless of how the caller built it.
func Normalize(v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var out Document
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if out == nil {
		out = Document{}
	}
	return out, nil
}

// Query filters top-level fields by equality. Sort is a field name, prefixed with "-" for
// descending order.
type Query struct {
	Where map[string]any
	Sort  string
	Limit int
}

type Store interface {
	Find(ctx context.Context, collection string, q Query) ([]Document, error)
	FindByID(ctx context.Context, collection, id string) (Document, error)
	Create(ctx context.Context, collection string, doc Document) (Document, error)
	// Update shallow-merges patch into the stored document.
	Update(ctx context.Context, collection, id string, patch Document) (Document, error)
	// Modify replaces the document with what fn makes of its current version. Reading,
	// fn and writing form one atomic step, also across processes sharing the store. fn must
	// not call back into the store.
	Modify(ctx context.Context, collection, id string, fn func(Document) (Document, error)) (Document, error)
}

// Asset is binary media uploaded on behalf of generated content.
type Asset struct {
	Filename    string
	ContentType string
	Alt         string
	SourceURL   string
	Data        []byte
}

type AssetStore interface {
	PutAsset(ctx context.Context, asset Asset) (string, error)
}

// FindOne returns the first document matching where.
func FindOne(ctx context.Context, s Store, collection string, where map[string]any) (Document, bool, error) {
	docs, err := s.Find(ctx, collection, Query{Where: where, Limit: 1})
	if err != nil {
		return nil, false, err
	}
	if len(docs) == 0 {
		return nil, false, nil
	}
	return docs[0], true, nil
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateQuery rejects field names that are not plain identifiers.
func ValidateQuery(q Query) error {
	for key := range q.Where {
		if !fieldPattern.MatchString(key) {
			return fmt.Errorf("invalid filter field %q", key)
		}
	}
	if q.Sort != "" && !fieldPattern.MatchString(strings.TrimPrefix(q.Sort, "-")) {
		return fmt.Errorf("invalid sort field %q", q.Sort)
	}
	return nil
}
