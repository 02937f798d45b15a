package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/MimeLyc/content-orchestrator/internal/docstore"
	"github.com/google/uuid"
)

func (s *SQLiteStore) Find(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	if err := docstore.ValidateQuery(q); err != nil {
		return nil, err
	}

	query := `SELECT data FROM documents WHERE collection = ?`
	args := []any{collection}

	keys := make([]string, 0, len(q.Where))
	for key := range q.Where {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := q.Where[key]
		if value == nil {
			query += ` AND json_extract(data, '$.` + key + `') IS NULL`
			continue
		}
		query += ` AND json_extract(data, '$.` + key + `') = ?`
		args = append(args, sqlValue(value))
	}

	if q.Sort != "" {
		direction := "ASC"
		if strings.HasPrefix(q.Sort, "-") {
			direction = "DESC"
		}
		query += ` ORDER BY json_extract(data, '$.` + strings.TrimPrefix(q.Sort, "-") + `') ` + direction + `, rowid ASC`
	} else {
		query += ` ORDER BY rowid ASC`
	}
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	defer rows.Close()

	ret := make([]docstore.Document, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		doc, err := decodeDocument(data)
		if err != nil {
			return nil, err
		}
		ret = append(ret, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) FindByID(ctx context.Context, collection, id string) (docstore.Document, error) {
	return findByID(ctx, s.db, collection, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func findByID(ctx context.Context, q queryer, collection, id string) (docstore.Document, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
		}
		return nil, err
	}
	return decodeDocument(data)
}

func (s *SQLiteStore) Create(ctx context.Context, collection string, doc docstore.Document) (docstore.Document, error) {
	stored, err := docstore.Normalize(doc)
	if err != nil {
		return nil, err
	}
	if stored.ID() == "" {
		stored["id"] = uuid.NewString()
	}
	now := time.Now().UTC()
	stored["createdAt"] = now.Format(time.RFC3339Nano)
	stored["updatedAt"] = now.Format(time.RFC3339Nano)

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(collection, id) DO NOTHING`,
		collection, stored.ID(), string(data), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", collection, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("%s/%s: %w", collection, stored.ID(), docstore.ErrExists)
	}
	return stored, nil
}

func (s *SQLiteStore) Update(ctx context.Context, collection, id string, patch docstore.Document) (docstore.Document, error) {
	normalized, err := docstore.Normalize(patch)
	if err != nil {
		return nil, err
	}

	var updated docstore.Document
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		doc, err := findByID(ctx, tx, collection, id)
		if err != nil {
			return err
		}
		for k, v := range normalized {
			if k == "id" || k == "createdAt" {
				continue
			}
			doc[k] = v
		}
		now := time.Now().UTC()
		doc["updatedAt"] = now.Format(time.RFC3339Nano)

		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE documents SET data = ?, updated_at = ? WHERE collection = ? AND id = ?`,
			string(data), now, collection, id,
		); err != nil {
			return fmt.Errorf("update %s/%s: %w", collection, id, err)
		}
		updated = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Modify runs inside an immediate transaction, so the write lock is held from the read on.
func (s *SQLiteStore) Modify(ctx context.Context, collection, id string, fn func(docstore.Document) (docstore.Document, error)) (docstore.Document, error) {
	var updated docstore.Document
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := findByID(ctx, tx, collection, id)
		if err != nil {
			return err
		}
		next, err := fn(current.Clone())
		if err != nil {
			return err
		}
		doc, err := docstore.Normalize(next)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		doc["id"] = id
		doc["createdAt"] = current["createdAt"]
		doc["updatedAt"] = now.Format(time.RFC3339Nano)

		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE documents SET data = ?, updated_at = ? WHERE collection = ? AND id = ?`,
			string(data), now, collection, id,
		); err != nil {
			return fmt.Errorf("modify %s/%s: %w", collection, id, err)
		}
		updated = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *SQLiteStore) PutAsset(ctx context.Context, asset docstore.Asset) (string, error) {
	if len(asset.Data) == 0 {
		return "", fmt.Errorf("asset %s is empty", asset.Filename)
	}
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assets (id, filename, content_type, alt, source_url, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, asset.Filename, asset.ContentType, asset.Alt, asset.SourceURL, asset.Data, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("store asset %s: %w", asset.Filename, err)
	}
	return id, nil
}

// GetAsset loads a stored asset by id.
func (s *SQLiteStore) GetAsset(ctx context.Context, id string) (docstore.Asset, error) {
	var asset docstore.Asset
	err := s.db.QueryRowContext(ctx,
		`SELECT filename, content_type, alt, source_url, data FROM assets WHERE id = ?`, id,
	).Scan(&asset.Filename, &asset.ContentType, &asset.Alt, &asset.SourceURL, &asset.Data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return docstore.Asset{}, fmt.Errorf("asset %s: %w", id, docstore.ErrNotFound)
		}
		return docstore.Asset{}, err
	}
	return asset, nil
}

func decodeDocument(data string) (docstore.Document, error) {
	var doc docstore.Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// sqlValue maps a JSON scalar to what json_extract returns for it.
func sqlValue(v any) any {
	switch val := v.(type) {
	case bool:
		if val {
			return 1
		}
		return 0
	default:
		return val
	}
}
