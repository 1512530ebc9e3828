package bruteforce

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
)

// Index is a brute-force vector index scoring by cosine distance.
type Index struct {
	rowids []int64
	vecs   [][]float32
	dim    int
	mags   []float64
}

// Build loads rowids and vectors and precomputes magnitudes.
func (i *Index) Build(rowids []int64, vectors [][]float32) error {
	if len(rowids) != len(vectors) {
		return fmt.Errorf("bruteforce: rowids and vectors length mismatch: %d != %d", len(rowids), len(vectors))
	}
	if len(rowids) == 0 {
		i.rowids, i.vecs, i.mags, i.dim = nil, nil, nil, 0
		return nil
	}
	dim := len(vectors[0])
	for j := range vectors {
		if len(vectors[j]) != dim {
			return fmt.Errorf("bruteforce: inconsistent vector dims %d vs %d", len(vectors[j]), dim)
		}
	}
	mags := make([]float64, len(vectors))
	for j := range vectors {
		mags[j] = magnitude(vectors[j])
	}
	i.rowids = append([]int64(nil), rowids...)
	i.vecs = append([][]float32(nil), vectors...)
	i.dim = dim
	i.mags = mags
	return nil
}

// Query returns up to k rowids ordered by ascending cosine distance.
// Rows with zero magnitude are skipped (their distance is undefined).
func (i *Index) Query(query []float32, k int) ([]int64, []float64, error) {
	if i.dim == 0 || len(i.vecs) == 0 {
		return nil, nil, nil
	}
	if len(query) != i.dim {
		return nil, nil, fmt.Errorf("bruteforce: query dim %d != index dim %d", len(query), i.dim)
	}
	qm := magnitude(query)
	if qm == 0 {
		return nil, nil, nil
	}
	type scored struct {
		idx  int
		dist float64
	}
	scoreds := make([]scored, 0, len(i.vecs))
	for j := range i.vecs {
		if i.mags[j] == 0 {
			continue
		}
		d := 1 - dot(query, i.vecs[j])/(qm*i.mags[j])
		if math.IsNaN(d) {
			continue
		}
		scoreds = append(scoreds, scored{idx: j, dist: d})
	}
	sort.Slice(scoreds, func(a, b int) bool { return scoreds[a].dist < scoreds[b].dist })
	if k <= 0 || k > len(scoreds) {
		k = len(scoreds)
	}
	outIDs := make([]int64, k)
	outDists := make([]float64, k)
	for n := 0; n < k; n++ {
		outIDs[n] = i.rowids[scoreds[n].idx]
		outDists[n] = scoreds[n].dist
	}
	return outIDs, outDists, nil
}

// MarshalBinary stores: dim(uint32), n(uint32), then for each item:
// rowid(int64), vec(float32[dim]). All little-endian.
func (i *Index) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 8+len(i.rowids)*(8+4*i.dim))
	putU32 := func(v uint32) {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, v)
		out = append(out, b...)
	}
	putU32(uint32(i.dim))
	putU32(uint32(len(i.rowids)))
	for idx, rid := range i.rowids {
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(rid))
		out = append(out, b...)
		for j := 0; j < i.dim; j++ {
			fb := make([]byte, 4)
			binary.LittleEndian.PutUint32(fb, math.Float32bits(i.vecs[idx][j]))
			out = append(out, fb...)
		}
	}
	return out, nil
}

// UnmarshalBinary restores the index from bytes.
func (i *Index) UnmarshalBinary(data []byte) error {
	rowids, vecs, err := DecodeFlat(data)
	if err != nil {
		return err
	}
	return i.Build(rowids, vecs)
}

// DecodeFlat decodes the flat persistence format shared by all index
// implementations back into (rowid, vector) pairs.
func DecodeFlat(data []byte) ([]int64, [][]float32, error) {
	if len(data) < 8 {
		return nil, nil, errors.New("bruteforce: invalid data")
	}
	off := 0
	getU32 := func() uint32 {
		v := binary.LittleEndian.Uint32(data[off : off+4])
		off += 4
		return v
	}
	dim := int(getU32())
	n := int(getU32())
	if dim < 0 || n < 0 {
		return nil, nil, errors.New("bruteforce: invalid header")
	}
	rowids := make([]int64, n)
	vecs := make([][]float32, n)
	for idx := 0; idx < n; idx++ {
		if off+8 > len(data) {
			return nil, nil, errors.New("bruteforce: truncated rowid")
		}
		rowids[idx] = int64(binary.LittleEndian.Uint64(data[off:]))
		off += 8
		vec := make([]float32, dim)
		for j := 0; j < dim; j++ {
			if off+4 > len(data) {
				return nil, nil, errors.New("bruteforce: truncated vec")
			}
			vec[j] = math.Float32frombits(getU32())
		}
		vecs[idx] = vec
	}
	return rowids, vecs, nil
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func magnitude(v []float32) float64 { return math.Sqrt(dot(v, v)) }
