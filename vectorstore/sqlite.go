package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/agentloom/agentloom/internal/textsim"
)

// SQLite is a vector store backed by a single SQLite table. Vectors are
// float32 blobs scanned linearly in Go; the content column backs a
// keyword LIKE fallback.
type SQLite struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	metadata TEXT,
	vector BLOB,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_documents_content ON documents(content);
`

// OpenSQLite opens (or creates) the store at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create documents table: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Add upserts documents by ID.
func (s *SQLite) Add(ctx context.Context, docs []Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (id, content, metadata, vector) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			metadata = excluded.metadata,
			vector = excluded.vector`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, doc := range docs {
		if len(doc.Vector) == 0 {
			return fmt.Errorf("%w: %s", ErrMissingVector, doc.ID)
		}

		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", doc.ID, err)
		}

		if _, err := stmt.ExecContext(ctx, doc.ID, doc.Content, string(meta), encodeVector(doc.Vector)); err != nil {
			return fmt.Errorf("upsert %s: %w", doc.ID, err)
		}
	}

	return tx.Commit()
}

// Get returns the document with the given ID.
func (s *SQLite) Get(ctx context.Context, id string) (Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, content, metadata, vector FROM documents WHERE id = ?`, id)

	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Document{}, fmt.Errorf("get %s: %w", id, err)
	}
	return doc, nil
}

// Search scans all rows and returns the topK by cosine similarity.
func (s *SQLite) Search(ctx context.Context, vector []float32, topK int, opts ...SearchOption) ([]Match, error) {
	o := applyOptions(opts)

	rows, err := s.db.QueryContext(ctx, `SELECT id, content, metadata, vector FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if !o.matches(doc) {
			continue
		}

		score := textsim.CosineF32(vector, doc.Vector)
		if score < o.minScore {
			continue
		}
		matches = append(matches, Match{Document: doc, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// SearchKeyword finds documents containing query terms via LIKE, scored
// by the fraction of terms matched.
func (s *SQLite) SearchKeyword(ctx context.Context, query string, topK int) ([]Match, error) {
	terms := textsim.Tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	// One LIKE per term keeps the query planner on the content index.
	conditions := make([]string, len(terms))
	args := make([]any, len(terms))
	for i, term := range terms {
		conditions[i] = "lower(content) LIKE ?"
		args[i] = "%" + term + "%"
	}

	q := `SELECT id, content, metadata, vector FROM documents WHERE ` +
		strings.Join(conditions, " OR ")

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		docTerms := textsim.TokenSet(doc.Content)
		hits := 0
		for _, term := range terms {
			if docTerms[term] {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		matches = append(matches, Match{
			Document: doc,
			Score:    float64(hits) / float64(len(terms)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Delete removes documents by ID.
func (s *SQLite) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Count returns the number of stored documents.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

// Clear removes all documents.
func (s *SQLite) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents`)
	return err
}

// ListIDs returns document IDs ordered by ID with pagination.
func (s *SQLite) ListIDs(ctx context.Context, limit, offset int) ([]string, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats negative LIMIT as unlimited.
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM documents ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var meta sql.NullString
	var blob []byte

	if err := row.Scan(&doc.ID, &doc.Content, &meta, &blob); err != nil {
		return Document{}, err
	}

	if meta.Valid && meta.String != "" && meta.String != "null" {
		if err := json.Unmarshal([]byte(meta.String), &doc.Metadata); err != nil {
			return Document{}, fmt.Errorf("parse metadata for %s: %w", doc.ID, err)
		}
	}

	doc.Vector = decodeVector(blob)
	return doc, nil
}

// encodeVector packs float32s little-endian, the layout vector extensions
// expect, so the column stays compatible with them.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	if len(buf) < 4 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
