package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/cdorrat/llama-index/engine"
	"github.com/cdorrat/llama-index/schema"
	"github.com/cdorrat/llama-index/vector"
	"github.com/cdorrat/llama-index/vss"
)

// SQLiteVectorStore persists text nodes with metadata and fixed-dimension
// embeddings in SQLite. The relational side lives in <table>_data; the
// similarity side in the <table>_vss virtual table, joined by rowid.
//
// Table names are interpolated into SQL; callers should ensure the table
// name is trusted and not derived from untrusted input.
type SQLiteVectorStore struct {
	db        *sql.DB
	ownsDB    bool
	dataTable string
	vssTable  string
	shadow    string
	dim       int
	closed    atomic.Bool
}

// Open opens (or creates) a store at the given DSN. The returned store owns
// the connection and releases it on Close. File-backed DSNs are preferred:
// the vss virtual table runs internal queries on a second pooled connection,
// which a plain :memory: DSN cannot share.
func Open(dsn, table string, dim int) (*SQLiteVectorStore, error) {
	db, err := engine.Open(dsn)
	if err != nil {
		return nil, err
	}
	// Single connection during module registration and DDL so the vtab module
	// is visible to the statements that need it.
	db.SetMaxOpenConns(1)
	s, err := New(db, table, dim)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownsDB = true
	// Allow a second connection for the vtab's internal queries.
	db.SetMaxOpenConns(2)
	return s, nil
}

// New builds a store over an existing connection. The caller keeps ownership
// of db; Close does not release it.
func New(db *sql.DB, table string, dim int) (*SQLiteVectorStore, error) {
	if db == nil {
		return nil, fmt.Errorf("vectorstore: db is nil")
	}
	if table == "" {
		return nil, fmt.Errorf("vectorstore: table name is empty")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("vectorstore: dimension must be positive, got %d", dim)
	}
	s := &SQLiteVectorStore{
		db:        db,
		dataTable: table + "_data",
		vssTable:  table + "_vss",
		dim:       dim,
	}
	s.shadow = vss.ShadowTableName(s.vssTable)
	if err := s.bootstrap(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteVectorStore) bootstrap() error {
	if err := vss.Register(s.db); err != nil {
		return fmt.Errorf("vectorstore: register vss module: %w", err)
	}
	if err := engine.RegisterVectorFunctions(s.db); err != nil {
		return fmt.Errorf("vectorstore: register vector functions: %w", err)
	}
	// AUTOINCREMENT keeps rowids monotone so a deleted record's index entry
	// can never be resurrected under a reused id.
	stmt := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    node_text TEXT NOT NULL,
    metadata  JSON,
    node_id   TEXT,
    doc_id    TEXT
);
`, s.dataTable)
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("vectorstore: create data table: %w", err)
	}
	create := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vss(embedding(%d))`, s.vssTable, s.dim)
	if _, err := s.db.Exec(create); err != nil {
		return fmt.Errorf("vectorstore: create vss table: %w", err)
	}
	if err := vss.EnsureShadow(s.db, s.vssTable); err != nil {
		return fmt.Errorf("vectorstore: ensure shadow table: %w", err)
	}
	return nil
}

// Dimension returns the fixed embedding dimension of the store.
func (s *SQLiteVectorStore) Dimension() int { return s.dim }

// DB exposes the underlying connection, e.g. for similarity SQL using the
// registered vec_cosine/vec_l2 functions.
func (s *SQLiteVectorStore) DB() *sql.DB { return s.db }

// Add inserts nodes and their embeddings, returning node IDs in input order.
// Each node's embedding is validated against the store dimension before any
// write, so a mismatched node leaves no partial row. A failure mid-batch
// returns a *PartialAddError carrying the IDs committed so far.
func (s *SQLiteVectorStore) Add(ctx context.Context, nodes []*schema.Node) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	added := make([]string, 0, len(nodes))
	fail := func(nodeID string, err error) ([]string, error) {
		return nil, &PartialAddError{Op: "add", NodeID: nodeID, Added: added, Err: err}
	}
	for _, node := range nodes {
		if node == nil {
			return fail("", fmt.Errorf("vectorstore: node is nil"))
		}
		// Dimension gate: encode before touching either table.
		blob, err := vector.EncodeEmbeddingDim(node.Embedding, s.dim)
		if err != nil {
			return fail(node.ID, err)
		}
		dict, err := schema.NodeToMetadataDict(node, true)
		if err != nil {
			return fail(node.ID, err)
		}
		meta, err := json.Marshal(dict)
		if err != nil {
			return fail(node.ID, err)
		}
		insert := fmt.Sprintf(`INSERT INTO %s(node_text, metadata, node_id, doc_id) VALUES(?, ?, ?, ?)`, s.dataTable)
		res, err := s.db.ExecContext(ctx, insert, node.Text, string(meta), node.ID, node.DocID)
		if err != nil {
			return fail(node.ID, err)
		}
		rowid, err := res.LastInsertId()
		if err != nil {
			return fail(node.ID, err)
		}
		if err := vss.Upsert(ctx, s.db, s.shadow, rowid, blob); err != nil {
			// Remove the orphaned data row so neither side leaks.
			del := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.dataTable)
			_, _ = s.db.ExecContext(ctx, del, rowid)
			return fail(node.ID, err)
		}
		added = append(added, node.ID)
	}
	return added, nil
}

// Delete removes every node belonging to refDocID. The index entries go
// first, then the data rows: a crash between the steps can only lose index
// entries, never leave them dangling. An unknown doc id is a no-op.
func (s *SQLiteVectorStore) Delete(ctx context.Context, refDocID string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	q := fmt.Sprintf(`SELECT id FROM %s WHERE doc_id = ?`, s.dataTable)
	rows, err := s.db.QueryContext(ctx, q, refDocID)
	if err != nil {
		return fmt.Errorf("vectorstore: delete lookup for doc %q: %w", refDocID, err)
	}
	var rowids []int64
	for rows.Next() {
		var rid int64
		if err := rows.Scan(&rid); err != nil {
			rows.Close()
			return err
		}
		rowids = append(rowids, rid)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()
	if len(rowids) == 0 {
		return nil
	}
	if err := vss.DeleteRows(ctx, s.db, s.shadow, rowids); err != nil {
		return fmt.Errorf("vectorstore: delete index entries for doc %q: %w", refDocID, err)
	}
	del := fmt.Sprintf(`DELETE FROM %s WHERE doc_id = ?`, s.dataTable)
	if _, err := s.db.ExecContext(ctx, del, refDocID); err != nil {
		return fmt.Errorf("vectorstore: delete data rows for doc %q: %w", refDocID, err)
	}
	return nil
}

// Query runs a top-k similarity search. Results come back ordered by
// ascending cosine distance; the reported similarity is 1 - distance, so it
// decreases down the result list. Exact-match metadata filters are applied
// after the kNN scan and may leave fewer than TopK results.
func (s *SQLiteVectorStore) Query(ctx context.Context, q *schema.VectorStoreQuery) (*schema.VectorStoreQueryResult, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	if q == nil {
		return nil, fmt.Errorf("vectorstore: query is nil")
	}
	blob, err := vector.EncodeEmbeddingDim(q.Embedding, s.dim)
	if err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf(`
SELECT v.rowid, v.distance, d.node_text, d.metadata
FROM %s v
JOIN %s d ON d.id = v.rowid
WHERE v.embedding MATCH ?
ORDER BY v.distance`, s.vssTable, s.dataTable)
	var rows *sql.Rows
	if q.TopK > 0 {
		rows, err = s.db.QueryContext(ctx, stmt+" LIMIT ?", blob, q.TopK)
	} else {
		rows, err = s.db.QueryContext(ctx, stmt, blob)
	}
	if err != nil {
		return nil, fmt.Errorf("vectorstore: query: %w", err)
	}
	defer rows.Close()

	result := &schema.VectorStoreQueryResult{}
	for rows.Next() {
		var rowid int64
		var distance float64
		var text, meta string
		if err := rows.Scan(&rowid, &distance, &text, &meta); err != nil {
			return nil, err
		}
		var dict map[string]any
		if err := json.Unmarshal([]byte(meta), &dict); err != nil {
			return nil, fmt.Errorf("vectorstore: metadata for rowid %d: %w", rowid, err)
		}
		node, err := schema.MetadataDictToNode(dict)
		if err != nil {
			return nil, err
		}
		node.Text = text
		if !q.Filters.Matches(node.Metadata) {
			continue
		}
		result.Nodes = append(result.Nodes, node)
		result.Similarities = append(result.Similarities, 1-distance)
		result.IDs = append(result.IDs, node.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Close marks the store closed. Idempotent; the connection is released only
// when the store opened it.
func (s *SQLiteVectorStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
