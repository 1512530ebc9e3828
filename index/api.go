package index

// Index defines a generic vector index keyed by SQLite row identities.
// It enables building from (rowid, embedding) pairs, kNN queries, and
// binary serialization for persistence in the vector_storage table.
type Index interface {
	// Build constructs the index from the given rowids and vectors.
	// Both slices must have the same length; vectors must share one dimension.
	Build(rowids []int64, vectors [][]float32) error

	// Query runs a kNN search against the index with the provided query vector
	// and returns up to k matches as parallel slices of rowids and distances,
	// ascending by distance (cosine distance: smaller means closer). k <= 0
	// returns all matches.
	Query(query []float32, k int) (rowids []int64, distances []float64, err error)

	// MarshalBinary serializes the index into a byte slice.
	MarshalBinary() ([]byte, error)

	// UnmarshalBinary reconstructs the index from a serialized byte slice.
	UnmarshalBinary(data []byte) error
}
