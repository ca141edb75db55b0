package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ragstore/ragstore/internal/errors"
)

// metadataStore holds chunks, document records and runtime state in SQLite.
// Schema-declared metadata fields become flattened meta_<field> columns on
// the chunks table so filter predicates run on plain indexed columns.
type metadataStore struct {
	mu         sync.Mutex
	db         *sql.DB
	metaFields []string
	closed     bool
}

// openMetadataStore opens (or creates) the SQLite database at path. The
// modernc.org/sqlite driver is pure Go; pragmas must be set via statements
// because it ignores most DSN parameters.
func openMetadataStore(path string, metaFields []string) (*metadataStore, error) {
	for _, field := range metaFields {
		if !ValidMetadataField(field) {
			return nil, errors.ConfigError(
				fmt.Sprintf("invalid metadata field name %q: must match [a-z][a-z0-9_]*", field), nil)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.New(errors.ErrCodeStoreOpen, "open sqlite database", err)
	}

	// Single writer prevents SQLITE_BUSY under concurrent resource indexing.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.New(errors.ErrCodeStoreOpen, "set sqlite pragma", err)
		}
	}

	m := &metadataStore{db: db, metaFields: append([]string(nil), metaFields...)}
	if err := m.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

func (m *metadataStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id              TEXT PRIMARY KEY,
		resource_id     TEXT NOT NULL,
		content         TEXT NOT NULL,
		content_hash    TEXT NOT NULL,
		token_count     INTEGER NOT NULL,
		chunk_index     INTEGER NOT NULL,
		total_chunks    INTEGER NOT NULL,
		heading_path    TEXT NOT NULL DEFAULT '',
		embedding       BLOB,
		embedding_model TEXT NOT NULL,
		embedded_at     INTEGER NOT NULL,
		prev_chunk_id   TEXT NOT NULL DEFAULT '',
		next_chunk_id   TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_resource ON chunks(resource_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_embedded_at ON chunks(embedded_at);

	CREATE TABLE IF NOT EXISTS documents (
		resource_id  TEXT PRIMARY KEY,
		file_path    TEXT NOT NULL,
		content      TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		token_count  INTEGER NOT NULL,
		total_chunks INTEGER NOT NULL,
		indexed_at   INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	if _, err := m.db.Exec(schema); err != nil {
		return errors.New(errors.ErrCodeStoreOpen, "initialize sqlite schema", err)
	}
	return m.ensureMetaColumns()
}

// ensureMetaColumns adds a meta_<field> column for any schema field the
// chunks table does not have yet. Columns are never dropped: removing a
// field from the schema just stops populating it.
func (m *metadataStore) ensureMetaColumns() error {
	rows, err := m.db.Query(`SELECT name FROM pragma_table_info('chunks')`)
	if err != nil {
		return errors.New(errors.ErrCodeStoreOpen, "read chunks table info", err)
	}
	existing := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return errors.New(errors.ErrCodeStoreOpen, "scan chunks table info", err)
		}
		existing[name] = true
	}
	if err := rows.Close(); err != nil {
		return errors.New(errors.ErrCodeStoreOpen, "close table info cursor", err)
	}

	for _, field := range m.metaFields {
		col := metaColumn(field)
		if existing[col] {
			continue
		}
		stmt := fmt.Sprintf(`ALTER TABLE chunks ADD COLUMN %s TEXT`, col)
		if _, err := m.db.Exec(stmt); err != nil {
			return errors.New(errors.ErrCodeStoreOpen,
				fmt.Sprintf("add metadata column %s", col), err)
		}
	}
	return nil
}

func metaColumn(field string) string {
	return "meta_" + field
}

// InsertChunks writes chunks in one transaction. Schema-declared metadata
// fields are copied into their flattened columns; anything else on
// Chunk.Metadata is dropped.
func (m *metadataStore) InsertChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New(errors.ErrCodeStoreClosed, "metadata store is closed", nil)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StoreError("begin insert transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	columns := []string{
		"id", "resource_id", "content", "content_hash", "token_count",
		"chunk_index", "total_chunks", "heading_path", "embedding",
		"embedding_model", "embedded_at", "prev_chunk_id", "next_chunk_id",
	}
	for _, field := range m.metaFields {
		columns = append(columns, metaColumn(field))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO chunks (%s) VALUES (%s)`,
		strings.Join(columns, ", "), placeholders))
	if err != nil {
		return errors.StoreError("prepare chunk insert", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		args := []any{
			chunk.ID, chunk.ResourceID, chunk.Content, chunk.ContentHash,
			chunk.TokenCount, chunk.ChunkIndex, chunk.TotalChunks,
			chunk.HeadingPath, encodeVector(chunk.Embedding),
			chunk.EmbeddingModel, chunk.EmbeddedAt.UnixNano(),
			chunk.PrevChunkID, chunk.NextChunkID,
		}
		for _, field := range m.metaFields {
			if value, ok := chunk.Metadata[field]; ok {
				args = append(args, value)
			} else {
				args = append(args, nil)
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return errors.StoreError(fmt.Sprintf("insert chunk %s", chunk.ID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.StoreError("commit chunk insert", err)
	}
	return nil
}

// DeleteChunksByResource removes all chunks for a resource and returns their
// IDs so the vector index can drop them too.
func (m *metadataStore) DeleteChunksByResource(ctx context.Context, resourceID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New(errors.ErrCodeStoreClosed, "metadata store is closed", nil)
	}

	rows, err := m.db.QueryContext(ctx,
		`SELECT id FROM chunks WHERE resource_id = ?`, resourceID)
	if err != nil {
		return nil, errors.New(errors.ErrCodeStoreRead, "list chunks for resource", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, errors.New(errors.ErrCodeStoreRead, "scan chunk id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return nil, errors.New(errors.ErrCodeStoreRead, "close chunk id cursor", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := m.db.ExecContext(ctx,
		`DELETE FROM chunks WHERE resource_id = ?`, resourceID); err != nil {
		return nil, errors.StoreError("delete chunks for resource", err)
	}
	return ids, nil
}

// GetChunksByResource returns a resource's chunks ordered by chunk index.
func (m *metadataStore) GetChunksByResource(ctx context.Context, resourceID string) ([]*Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New(errors.ErrCodeStoreClosed, "metadata store is closed", nil)
	}

	query := fmt.Sprintf(
		`SELECT %s FROM chunks WHERE resource_id = ? ORDER BY chunk_index`,
		m.chunkColumns())
	rows, err := m.db.QueryContext(ctx, query, resourceID)
	if err != nil {
		return nil, errors.New(errors.ErrCodeStoreRead, "query chunks for resource", err)
	}
	defer rows.Close()
	return m.scanChunks(rows)
}

// SelectMatching returns the subset of candidate chunk IDs that satisfy the
// filters, as full chunk rows keyed by ID. Callers preserve their own
// candidate ordering.
func (m *metadataStore) SelectMatching(ctx context.Context, ids []string, filters QueryFilters) (map[string]*Chunk, error) {
	if len(ids) == 0 {
		return map[string]*Chunk{}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New(errors.ErrCodeStoreClosed, "metadata store is closed", nil)
	}

	var conditions []string
	var args []any

	conditions = append(conditions,
		fmt.Sprintf("id IN (%s)", placeholderList(len(ids))))
	for _, id := range ids {
		args = append(args, id)
	}

	if len(filters.ResourceIDs) > 0 {
		conditions = append(conditions,
			fmt.Sprintf("resource_id IN (%s)", placeholderList(len(filters.ResourceIDs))))
		for _, rid := range filters.ResourceIDs {
			args = append(args, rid)
		}
	}
	if filters.DateRange != nil {
		if !filters.DateRange.From.IsZero() {
			conditions = append(conditions, "embedded_at >= ?")
			args = append(args, filters.DateRange.From.UnixNano())
		}
		if !filters.DateRange.To.IsZero() {
			conditions = append(conditions, "embedded_at <= ?")
			args = append(args, filters.DateRange.To.UnixNano())
		}
	}

	// Deterministic predicate order for the metadata equality filters.
	metaKeys := make([]string, 0, len(filters.Metadata))
	for key := range filters.Metadata {
		metaKeys = append(metaKeys, key)
	}
	sort.Strings(metaKeys)
	for _, key := range metaKeys {
		if !m.hasMetaField(key) {
			return nil, errors.New(errors.ErrCodeInvalidQuery,
				fmt.Sprintf("unknown metadata filter field %q", key), nil).
				WithSuggestion("declare the field in the metadata schema and re-index")
		}
		conditions = append(conditions, metaColumn(key)+" = ?")
		args = append(args, filters.Metadata[key])
	}

	query := fmt.Sprintf(`SELECT %s FROM chunks WHERE %s`,
		m.chunkColumns(), strings.Join(conditions, " AND "))
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.New(errors.ErrCodeStoreRead, "query filtered chunks", err)
	}
	defer rows.Close()

	chunks, err := m.scanChunks(rows)
	if err != nil {
		return nil, err
	}
	matched := make(map[string]*Chunk, len(chunks))
	for _, chunk := range chunks {
		matched[chunk.ID] = chunk
	}
	return matched, nil
}

func (m *metadataStore) hasMetaField(field string) bool {
	for _, f := range m.metaFields {
		if f == field {
			return true
		}
	}
	return false
}

func (m *metadataStore) chunkColumns() string {
	columns := []string{
		"id", "resource_id", "content", "content_hash", "token_count",
		"chunk_index", "total_chunks", "heading_path", "embedding",
		"embedding_model", "embedded_at", "prev_chunk_id", "next_chunk_id",
	}
	for _, field := range m.metaFields {
		columns = append(columns, metaColumn(field))
	}
	return strings.Join(columns, ", ")
}

func (m *metadataStore) scanChunks(rows *sql.Rows) ([]*Chunk, error) {
	var chunks []*Chunk
	for rows.Next() {
		chunk := &Chunk{}
		var embedding []byte
		var embeddedAt int64
		metaValues := make([]sql.NullString, len(m.metaFields))

		dest := []any{
			&chunk.ID, &chunk.ResourceID, &chunk.Content, &chunk.ContentHash,
			&chunk.TokenCount, &chunk.ChunkIndex, &chunk.TotalChunks,
			&chunk.HeadingPath, &embedding, &chunk.EmbeddingModel,
			&embeddedAt, &chunk.PrevChunkID, &chunk.NextChunkID,
		}
		for i := range metaValues {
			dest = append(dest, &metaValues[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.New(errors.ErrCodeStoreRead, "scan chunk row", err)
		}

		chunk.Embedding = decodeVector(embedding)
		chunk.EmbeddedAt = time.Unix(0, embeddedAt).UTC()
		for i, field := range m.metaFields {
			if metaValues[i].Valid {
				if chunk.Metadata == nil {
					chunk.Metadata = make(map[string]string)
				}
				chunk.Metadata[field] = metaValues[i].String
			}
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.ErrCodeStoreRead, "iterate chunk rows", err)
	}
	return chunks, nil
}

// AllEmbeddings streams every live chunk's ID and embedding, for rebuilding
// the vector index when its on-disk graph is missing.
func (m *metadataStore) AllEmbeddings(ctx context.Context) ([]string, [][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, nil, errors.New(errors.ErrCodeStoreClosed, "metadata store is closed", nil)
	}

	rows, err := m.db.QueryContext(ctx,
		`SELECT id, embedding FROM chunks WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, nil, errors.New(errors.ErrCodeStoreRead, "query embeddings", err)
	}
	defer rows.Close()

	var ids []string
	var vectors [][]float32
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, nil, errors.New(errors.ErrCodeStoreRead, "scan embedding row", err)
		}
		ids = append(ids, id)
		vectors = append(vectors, decodeVector(blob))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, errors.New(errors.ErrCodeStoreRead, "iterate embedding rows", err)
	}
	return ids, vectors, nil
}

// SaveDocument upserts a document record.
func (m *metadataStore) SaveDocument(ctx context.Context, doc *DocumentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New(errors.ErrCodeStoreClosed, "metadata store is closed", nil)
	}

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO documents (resource_id, file_path, content, content_hash, token_count, total_chunks, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(resource_id) DO UPDATE SET
			file_path = excluded.file_path,
			content = excluded.content,
			content_hash = excluded.content_hash,
			token_count = excluded.token_count,
			total_chunks = excluded.total_chunks,
			indexed_at = excluded.indexed_at`,
		doc.ResourceID, doc.FilePath, doc.Content, doc.ContentHash,
		doc.TokenCount, doc.TotalChunks, doc.IndexedAt.UnixNano())
	if err != nil {
		return errors.StoreError("save document record", err)
	}
	return nil
}

// GetDocument returns the stored record for a resource, or nil when the
// resource has never been indexed.
func (m *metadataStore) GetDocument(ctx context.Context, resourceID string) (*DocumentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New(errors.ErrCodeStoreClosed, "metadata store is closed", nil)
	}

	doc := &DocumentRecord{}
	var indexedAt int64
	err := m.db.QueryRowContext(ctx, `
		SELECT resource_id, file_path, content, content_hash, token_count, total_chunks, indexed_at
		FROM documents WHERE resource_id = ?`, resourceID).
		Scan(&doc.ResourceID, &doc.FilePath, &doc.Content, &doc.ContentHash,
			&doc.TokenCount, &doc.TotalChunks, &indexedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.New(errors.ErrCodeStoreRead, "read document record", err)
	}
	doc.IndexedAt = time.Unix(0, indexedAt).UTC()
	return doc, nil
}

// DeleteDocument removes a document record. Missing records are not errors.
func (m *metadataStore) DeleteDocument(ctx context.Context, resourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New(errors.ErrCodeStoreClosed, "metadata store is closed", nil)
	}

	if _, err := m.db.ExecContext(ctx,
		`DELETE FROM documents WHERE resource_id = ?`, resourceID); err != nil {
		return errors.StoreError("delete document record", err)
	}
	return nil
}

// Counts returns the chunk and document row counts.
func (m *metadataStore) Counts(ctx context.Context) (chunks, documents int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, 0, errors.New(errors.ErrCodeStoreClosed, "metadata store is closed", nil)
	}

	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&chunks); err != nil {
		return 0, 0, errors.New(errors.ErrCodeStoreRead, "count chunks", err)
	}
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&documents); err != nil {
		return 0, 0, errors.New(errors.ErrCodeStoreRead, "count documents", err)
	}
	return chunks, documents, nil
}

// GetState reads a state value. Missing keys return an empty string.
func (m *metadataStore) GetState(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", errors.New(errors.ErrCodeStoreClosed, "metadata store is closed", nil)
	}

	var value string
	err := m.db.QueryRowContext(ctx,
		`SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.New(errors.ErrCodeStoreRead, "read state", err)
	}
	return value, nil
}

// SetState upserts a state value.
func (m *metadataStore) SetState(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New(errors.ErrCodeStoreClosed, "metadata store is closed", nil)
	}

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return errors.StoreError("write state", err)
	}
	return nil
}

// Clear empties all tables but keeps the schema, leaving the store usable as
// if freshly created.
func (m *metadataStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New(errors.ErrCodeStoreClosed, "metadata store is closed", nil)
	}

	for _, table := range []string{"chunks", "documents", "state"} {
		if _, err := m.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return errors.StoreError(fmt.Sprintf("clear table %s", table), err)
		}
	}
	return nil
}

func (m *metadataStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}

func placeholderList(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// encodeVector packs a float32 slice into little-endian bytes for BLOB
// storage. Nil vectors encode as nil.
func encodeVector(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, val := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(val))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	if len(buf) == 0 {
		return nil
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
