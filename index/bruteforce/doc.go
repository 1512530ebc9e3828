// Package bruteforce provides a vector index that answers kNN queries by
// scanning all vectors and ordering by cosine distance. It defines the
// compact binary format used to persist indexes in the vector_storage table.
package bruteforce
