package vecutil

import (
	"context"
	"fmt"

	"github.com/cdorrat/llama-index/schema"
	"github.com/cdorrat/llama-index/vectorstore"
)

// Index provides a higher-level, text-first API on top of a vector store. It
// remains embedding-agnostic by requiring an EmbedFunc supplied by the
// caller.
type Index struct {
	Store *vectorstore.SQLiteVectorStore
	Embed EmbedFunc
}

// NewIndex wraps a store with an embedding function.
func NewIndex(store *vectorstore.SQLiteVectorStore, embed EmbedFunc) (*Index, error) {
	if store == nil {
		return nil, fmt.Errorf("vecutil: store is nil")
	}
	if embed == nil {
		return nil, fmt.Errorf("vecutil: EmbedFunc is nil")
	}
	return &Index{Store: store, Embed: embed}, nil
}

// Document represents a logical document to be embedded and stored.
type Document struct {
	ID       string
	DocID    string
	Content  string
	Metadata map[string]any
}

// Match represents a single similarity search hit.
type Match struct {
	ID      string
	Score   float64
	Content string
}

// UpsertDocumentsText embeds each document's content and adds the resulting
// nodes to the store. This mirrors client-side text upsert flows in hosted
// vector databases: callers supply free-form text and optional metadata; the
// index handles embedding and storage.
func (ix *Index) UpsertDocumentsText(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	nodes := make([]*schema.Node, 0, len(docs))
	for _, d := range docs {
		vec, err := ix.Embed(ctx, d.Content)
		if err != nil {
			return fmt.Errorf("vecutil: embed document %q: %w", d.ID, err)
		}
		nodes = append(nodes, &schema.Node{
			ID:        d.ID,
			DocID:     d.DocID,
			Text:      d.Content,
			Metadata:  d.Metadata,
			Embedding: vec,
		})
	}
	_, err := ix.Store.Add(ctx, nodes)
	return err
}

// DeleteRef removes every node stored under the given document id. The vss
// triggers invalidate any persisted index, causing a rebuild on the next
// query.
func (ix *Index) DeleteRef(ctx context.Context, refDocID string) error {
	return ix.Store.Delete(ctx, refDocID)
}

// QueryText embeds the query text and performs a top-k similarity search.
// When k <= 0, all matches returned by the underlying index are included.
func (ix *Index) QueryText(ctx context.Context, query string, k int) ([]Match, error) {
	vec, err := ix.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vecutil: embed query: %w", err)
	}
	res, err := ix.Store.Query(ctx, &schema.VectorStoreQuery{Embedding: vec, TopK: k})
	if err != nil {
		return nil, err
	}
	out := make([]Match, 0, len(res.IDs))
	for i, id := range res.IDs {
		m := Match{ID: id, Score: res.Similarities[i]}
		if i < len(res.Nodes) && res.Nodes[i] != nil {
			m.Content = res.Nodes[i].Text
		}
		out = append(out, m)
	}
	return out, nil
}
