// Package cover provides a cover-tree vector index that prunes kNN searches
// using cached subtree radii. It shares the brute-force persistence format so
// persisted blobs can be loaded by either implementation.
package cover
