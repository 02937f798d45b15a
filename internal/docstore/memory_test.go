package docstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CreateFindUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	created, err := s.Create(ctx, CollectionPages, Document{"slug": "about", "language": "en", "title": "About"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID())
	assert.NotEmpty(t, created.String("createdAt"))

	doc, ok, err := FindOne(ctx, s, CollectionPages, map[string]any{"slug": "about", "language": "en"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, created.ID(), doc.ID())

	_, ok, err = FindOne(ctx, s, CollectionPages, map[string]any{"slug": "about", "language": "es"})
	require.NoError(t, err)
	assert.False(t, ok)

	updated, err := s.Update(ctx, CollectionPages, created.ID(), Document{"title": "About us", "id": "ignored"})
	require.NoError(t, err)
	assert.Equal(t, "About us", updated.String("title"))
	assert.Equal(t, "about", updated.String("slug"))
	assert.Equal(t, created.ID(), updated.ID())

	_, err = s.Update(ctx, CollectionPages, "missing", Document{})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FindByID(ctx, CollectionPages, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	created, err := s.Create(ctx, CollectionPages, Document{"layout": []any{map[string]any{"blockType": "hero"}}})
	require.NoError(t, err)
	created["layout"] = nil

	got, err := s.FindByID(ctx, CollectionPages, created.ID())
	require.NoError(t, err)
	assert.Len(t, got["layout"], 1)
}

func TestMemoryStore_SortLimitAndBoolFilter(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, item := range []Document{
		{"title": "a", "published_at": "2026-01-01T00:00:00Z", "processed": false},
		{"title": "b", "published_at": "2026-03-01T00:00:00Z", "processed": false},
		{"title": "c", "published_at": "2026-02-01T00:00:00Z", "processed": true},
	} {
		_, err := s.Create(ctx, CollectionNewsRaw, item)
		require.NoError(t, err)
	}

	docs, err := s.Find(ctx, CollectionNewsRaw, Query{Where: map[string]any{"processed": false}, Sort: "-published_at"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b", docs[0].String("title"))
	assert.Equal(t, "a", docs[1].String("title"))

	docs, err = s.Find(ctx, CollectionNewsRaw, Query{Sort: "published_at", Limit: 1})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0].String("title"))

	_, err = s.Find(ctx, CollectionNewsRaw, Query{Where: map[string]any{"x') OR 1=1 --": 1}})
	assert.Error(t, err)
}

func TestMemoryStore_NumericFilterMatchesNormalizedValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.Create(ctx, CollectionForms, Document{"title": "Contact", "order": 3})
	require.NoError(t, err)

	_, ok, err := FindOne(ctx, s, CollectionForms, map[string]any{"order": 3})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_PutAsset(t *testing.T) {
	s := NewMemoryStore()
	id, err := s.PutAsset(context.Background(), Asset{Filename: "a.png", Data: []byte{1, 2}})
	require.NoError(t, err)
	a, ok := s.Asset(id)
	require.True(t, ok)
	assert.Equal(t, "a.png", a.Filename)

	_, err = s.PutAsset(context.Background(), Asset{Filename: "empty.png"})
	assert.Error(t, err)
}

func TestMemoryStore_ModifyIsAtomic(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Create(ctx, CollectionTranslations, Document{"id": "group-1", "count": 0})
	require.NoError(t, err)
	_, err = store.Create(ctx, CollectionTranslations, Document{"id": "group-1"})
	assert.ErrorIs(t, err, ErrExists)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Modify(ctx, CollectionTranslations, "group-1", func(d Document) (Document, error) {
				n, _ := d["count"].(float64)
				d["count"] = n + 1
				return d, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	doc, err := store.FindByID(ctx, CollectionTranslations, "group-1")
	require.NoError(t, err)
	assert.Equal(t, float64(50), doc["count"])
}

func TestMemoryStore_ModifyErrors(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Modify(ctx, CollectionTranslations, "missing", func(d Document) (Document, error) { return d, nil })
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Create(ctx, CollectionTranslations, Document{"id": "group-1", "state": "old"})
	require.NoError(t, err)
	boom := errors.New("boom")
	_, err = store.Modify(ctx, CollectionTranslations, "group-1", func(d Document) (Document, error) {
		d["state"] = "new"
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	doc, err := store.FindByID(ctx, CollectionTranslations, "group-1")
	require.NoError(t, err)
	assert.Equal(t, "old", doc.String("state"))
}
