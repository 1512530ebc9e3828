// Package index defines a minimal abstraction for rowid-keyed vector indexes
// that can be built from embeddings, queried for kNN by ascending cosine
// distance, and serialized for persistence. Implementations in this module
// include a brute-force scan and a cover tree.
package index
