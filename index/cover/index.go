package cover

import (
	"errors"
	"sync"

	"github.com/cdorrat/llama-index/index/bruteforce"
	"github.com/cdorrat/llama-index/internal/cover/tree"
	"github.com/viant/vec/search"
)

// DistanceFunction re-exports the tree metric names for callers.
type DistanceFunction = tree.DistanceFunction

const (
	DistanceFunctionCosine    = tree.DistanceFunctionCosine
	DistanceFunctionEuclidean = tree.DistanceFunctionEuclidean
)

// Option configures an Index before Build.
type Option func(*Index)

// WithBase sets the cover-tree expansion base (must be > 1 to take effect).
func WithBase(base float32) Option {
	return func(i *Index) {
		if base > 1 {
			i.base = base
		}
	}
}

// WithDistance selects the distance metric. Cosine is the default and the
// only metric the store's persistence contract assumes.
func WithDistance(d DistanceFunction) Option {
	return func(i *Index) { i.distance = d }
}

// WithBuildParallelism sets the number of goroutines used to precompute
// vector magnitudes during Build. Values below 2 keep the build sequential.
func WithBuildParallelism(n int) Option {
	return func(i *Index) {
		if n > 0 {
			i.parallel = n
		}
	}
}

// Index implements a cosine kNN index backed by a cover tree, keyed by
// SQLite rowids. It persists via the flat brute-force encoding so either
// implementation can reload a stored blob.
type Index struct {
	base     float32
	distance DistanceFunction
	parallel int

	rowids []int64
	vecs   [][]float32
	dim    int
	tree   *tree.Tree[int64]
	points []*tree.Point
}

// New constructs an empty cover index.
func New(opts ...Option) *Index {
	i := &Index{base: 1.3, distance: DistanceFunctionCosine, parallel: 1}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Build constructs the cover tree from (rowid, vector) pairs.
func (i *Index) Build(rowids []int64, vectors [][]float32) error {
	if len(rowids) != len(vectors) {
		return errors.New("cover: rowids/vectors length mismatch")
	}
	i.rowids = append([]int64(nil), rowids...)
	i.vecs = append([][]float32(nil), vectors...)
	i.tree = tree.NewTree[int64](i.base, i.distance)
	i.points = nil
	if len(vectors) == 0 {
		i.dim = 0
		return nil
	}
	i.dim = len(vectors[0])
	for j := range vectors {
		if len(vectors[j]) != i.dim {
			return errors.New("cover: inconsistent dims")
		}
	}
	points := make([]*tree.Point, len(vectors))
	for j := range vectors {
		points[j] = tree.NewPoint(vectors[j]...)
	}
	i.precomputeMagnitudes(points)
	for j, p := range points {
		i.tree.Insert(rowids[j], p)
	}
	i.points = points
	return nil
}

// precomputeMagnitudes fills point magnitudes, in parallel when configured.
func (i *Index) precomputeMagnitudes(points []*tree.Point) {
	workers := i.parallel
	if workers < 2 || workers > len(points) {
		for _, p := range points {
			p.Magnitude = search.Float32s(p.Vector).Magnitude()
		}
		return
	}
	var wg sync.WaitGroup
	chunk := (len(points) + workers - 1) / workers
	for start := 0; start < len(points); start += chunk {
		end := start + chunk
		if end > len(points) {
			end = len(points)
		}
		wg.Add(1)
		go func(ps []*tree.Point) {
			defer wg.Done()
			for _, p := range ps {
				p.Magnitude = search.Float32s(p.Vector).Magnitude()
			}
		}(points[start:end])
	}
	wg.Wait()
}

// Query returns up to k rowids ordered by ascending distance.
func (i *Index) Query(query []float32, k int) ([]int64, []float64, error) {
	if i.dim == 0 || i.tree == nil || len(i.vecs) == 0 {
		return nil, nil, nil
	}
	if len(query) != i.dim {
		return nil, nil, errors.New("cover: query dim mismatch")
	}
	if k <= 0 || k > len(i.vecs) {
		k = len(i.vecs)
	}
	neighbors := i.tree.KNearestNeighbors(tree.NewPoint(query...), k)
	rowids := make([]int64, 0, len(neighbors))
	dists := make([]float64, 0, len(neighbors))
	for _, n := range neighbors {
		rowids = append(rowids, i.tree.Value(n.Point))
		dists = append(dists, float64(n.Distance))
	}
	return rowids, dists, nil
}

// MarshalBinary uses the flat brute-force format for persistence.
func (i *Index) MarshalBinary() ([]byte, error) {
	bf := &bruteforce.Index{}
	if err := bf.Build(i.rowids, i.vecs); err != nil {
		return nil, err
	}
	return bf.MarshalBinary()
}

// UnmarshalBinary loads the flat format and rebuilds the cover tree.
func (i *Index) UnmarshalBinary(data []byte) error {
	rowids, vecs, err := bruteforce.DecodeFlat(data)
	if err != nil {
		return err
	}
	return i.Build(rowids, vecs)
}
