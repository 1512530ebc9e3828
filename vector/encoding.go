package vector

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrCorruptBlob reports a stored embedding whose byte length is not a
// multiple of the float32 element width. Read paths typically skip the
// offending record; write paths surface the error.
var ErrCorruptBlob = errors.New("vector: corrupt embedding blob")

// DimensionError reports an embedding whose length disagrees with the
// dimension fixed for a table or index.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("vector: embedding dimension mismatch: got %d, want %d", e.Got, e.Want)
}

// EncodeEmbedding encodes a slice of float32 values into a BLOB suitable for
// storage in SQLite: a little-endian sequence of IEEE 754 float32 values with
// no length prefix; the length is derived from the BLOB size on decode.
func EncodeEmbedding(vec []float32) ([]byte, error) {
	if len(vec) == 0 {
		return nil, nil
	}
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b, nil
}

// EncodeEmbeddingDim encodes like EncodeEmbedding but enforces the table
// dimension first, so a mismatched vector is rejected before any write. The
// resulting BLOB is exactly 4*dim bytes.
func EncodeEmbeddingDim(vec []float32, dim int) ([]byte, error) {
	if len(vec) != dim {
		return nil, &DimensionError{Want: dim, Got: len(vec)}
	}
	return EncodeEmbedding(vec)
}

// DecodeEmbedding decodes a BLOB produced by EncodeEmbedding back into a
// slice of float32 values. The round trip is bit-exact.
func DecodeEmbedding(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of 4", ErrCorruptBlob, len(b))
	}
	n := len(b) / 4
	vec := make([]float32, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
