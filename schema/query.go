package schema

import "reflect"

// MetadataFilter matches nodes whose metadata contains Key with exactly Value.
type MetadataFilter struct {
	Key   string
	Value any
}

// MetadataFilters is a conjunction of exact-match filters. The vss table has
// no native filtering, so the store applies these as a post-filter over the
// fetched rows; a filtered query may return fewer than TopK results.
type MetadataFilters struct {
	Filters []MetadataFilter
}

// Matches reports whether all filters hold for the given metadata document.
func (f *MetadataFilters) Matches(metadata map[string]any) bool {
	if f == nil {
		return true
	}
	for _, flt := range f.Filters {
		v, ok := metadata[flt.Key]
		if !ok || !filterValueEqual(v, flt.Value) {
			return false
		}
	}
	return true
}

// filterValueEqual compares a stored metadata value against a filter value.
// Numbers compare by magnitude regardless of Go type: the JSON round trip
// through the metadata column turns every number into float64, so an int
// filter value must still match. Everything else compares structurally,
// which keeps slice and map values from panicking a bare == comparison.
func filterValueEqual(stored, want any) bool {
	if sn, ok := asFloat(stored); ok {
		wn, ok := asFloat(want)
		return ok && sn == wn
	}
	return reflect.DeepEqual(stored, want)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// VectorStoreQuery describes a top-k similarity query.
type VectorStoreQuery struct {
	// Embedding is the query vector; its length must equal the store dimension.
	Embedding []float32

	// TopK is the maximum number of results; must be positive.
	TopK int

	// Filters, when non-nil, restricts results by exact metadata match.
	Filters *MetadataFilters
}

// VectorStoreQueryResult carries query results as three parallel slices of
// equal length, all ordered by ascending distance (descending similarity).
type VectorStoreQueryResult struct {
	Nodes        []*Node
	Similarities []float64
	IDs          []string
}
