// Package vectorstore implements an embedded SQLite vector store: text nodes
// with metadata and fixed-dimension float32 embeddings, answering top-k
// cosine similarity queries.
//
// A store named "docs" keeps its relational side in docs_data and its
// similarity side in the docs_vss virtual table; the two share one rowid
// value-space. Add writes the data row first, then the index entry; Delete
// clears the index side first. Queries join the MATCH scan back to the data
// table so results carry text and metadata in distance order.
package vectorstore
