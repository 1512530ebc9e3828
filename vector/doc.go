// Package vector provides the embedding codec used to move float32 vectors
// between application memory and SQLite BLOB columns, plus the distance
// helpers shared by the index implementations. Encoding is a flat
// little-endian IEEE 754 float32 sequence; decode(encode(v)) == v bit for bit.
package vector
