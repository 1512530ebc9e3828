// Package vss implements the vss SQLite virtual table: a rowid-keyed vector
// similarity index over fixed-dimension float32 embeddings.
//
// Each virtual table is backed by a shadow table _vss_<name>(id INTEGER
// PRIMARY KEY, embedding BLOB NOT NULL). Write paths insert embedding blobs
// into the shadow via Upsert/DeleteRows; MATCH scans return (rowid, distance)
// pairs ascending by cosine distance:
//
//	CREATE VIRTUAL TABLE docs_vss USING vss(embedding(1536));
//	SELECT rowid, distance FROM docs_vss WHERE embedding MATCH ? LIMIT 10;
//
// The in-memory index is built lazily on first MATCH, persisted in the
// vector_storage table and invalidated by shadow-table triggers, so repeated
// queries skip the rebuild until the data changes.
package vss
