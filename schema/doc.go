// Package schema defines the node model shared across the store: text nodes
// with metadata and embeddings, query/result types, and the codec between
// nodes and the flat metadata documents persisted in the record table.
package schema
