package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps documents and assets in process.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]map[string]Document
	order  map[string][]string
	assets map[string]Asset
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[string]map[string]Document),
		order:  make(map[string][]string),
		assets: make(map[string]Asset),
	}
}

func (m *MemoryStore) Find(_ context.Context, collection string, q Query) ([]Document, error) {
	if err := ValidateQuery(q); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	ret := make([]Document, 0)
	for _, id := range m.order[collection] {
		doc := m.docs[collection][id]
		if matches(doc, q.Where) {
			ret = append(ret, doc.Clone())
		}
	}
	if q.Sort != "" {
		field := strings.TrimPrefix(q.Sort, "-")
		desc := strings.HasPrefix(q.Sort, "-")
		sort.SliceStable(ret, func(i, j int) bool {
			if desc {
				return less(ret[j][field], ret[i][field])
			}
			return less(ret[i][field], ret[j][field])
		})
	}
	if q.Limit > 0 && len(ret) > q.Limit {
		ret = ret[:q.Limit]
	}
	return ret, nil
}

func (m *MemoryStore) FindByID(_ context.Context, collection, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return doc.Clone(), nil
}

func (m *MemoryStore) Create(_ context.Context, collection string, doc Document) (Document, error) {
	stored, err := Normalize(doc)
	if err != nil {
		return nil, err
	}
	if stored.ID() == "" {
		stored["id"] = uuid.NewString()
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	stored["createdAt"] = now
	stored["updatedAt"] = now

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs[collection] == nil {
		m.docs[collection] = make(map[string]Document)
	}
	id := stored.ID()
	if _, exists := m.docs[collection][id]; exists {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrExists)
	}
	m.docs[collection][id] = stored
	m.order[collection] = append(m.order[collection], id)
	return stored.Clone(), nil
}

func (m *MemoryStore) Update(_ context.Context, collection, id string, patch Document) (Document, error) {
	normalized, err := Normalize(patch)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	for k, v := range normalized {
		if k == "id" || k == "createdAt" {
			continue
		}
		doc[k] = v
	}
	doc["updatedAt"] = time.Now().UTC().Format(time.RFC3339Nano)
	return doc.Clone(), nil
}

func (m *MemoryStore) Modify(_ context.Context, collection, id string, fn func(Document) (Document, error)) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	next, err := fn(doc.Clone())
	if err != nil {
		return nil, err
	}
	stored, err := Normalize(next)
	if err != nil {
		return nil, err
	}
	stored["id"] = id
	stored["createdAt"] = doc["createdAt"]
	stored["updatedAt"] = time.Now().UTC().Format(time.RFC3339Nano)
	m.docs[collection][id] = stored
	return stored.Clone(), nil
}

func (m *MemoryStore) PutAsset(_ context.Context, asset Asset) (string, error) {
	if len(asset.Data) == 0 {
		return "", fmt.Errorf("asset %s is empty", asset.Filename)
	}
	id := uuid.NewString()
	m.mu.Lock()
	m.assets[id] = asset
	m.mu.Unlock()
	return id, nil
}

// Asset returns a stored asset, for tests and inspection.
func (m *MemoryStore) Asset(id string) (Asset, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assets[id]
	return a, ok
}

func matches(doc Document, where map[string]any) bool {
	for key, want := range where {
		if !equalJSON(doc[key], want) {
			return false
		}
	}
	return true
}

func equalJSON(a, b any) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(ab) == string(bb)
}

func less(a, b any) bool {
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			return av < bv
		}
	case string:
		if bv, ok := b.(string); ok {
			return av < bv
		}
	case nil:
		return b != nil
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}
