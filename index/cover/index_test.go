package cover

import (
	"math"
	"testing"

	"github.com/cdorrat/llama-index/index/bruteforce"
)

func fixture() ([]int64, [][]float32) {
	rowids := []int64{1, 2, 3, 4}
	vecs := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0.9, 0.1, 0},
		{0.1, 0.9, 0},
	}
	return rowids, vecs
}

func TestCoverQueryOrdering(t *testing.T) {
	rowids, vecs := fixture()
	idx := New()
	if err := idx.Build(rowids, vecs); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	ids, dists, err := idx.Query([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 results, got %d", len(ids))
	}
	if ids[0] != 1 || ids[1] != 3 {
		t.Fatalf("ids = %v, want [1 3]", ids)
	}
	if math.Abs(dists[0]) > 1e-6 {
		t.Fatalf("distance of exact match = %v, want ~0", dists[0])
	}
	if dists[1] < dists[0] {
		t.Fatalf("distances not ascending: %v", dists)
	}
}

// TestCoverAgreesWithBruteforce checks both implementations return the same
// top-k ordering on a small fixture.
func TestCoverAgreesWithBruteforce(t *testing.T) {
	rowids, vecs := fixture()

	cv := New(WithBase(1.5), WithBuildParallelism(2))
	if err := cv.Build(rowids, vecs); err != nil {
		t.Fatalf("cover Build failed: %v", err)
	}
	bf := &bruteforce.Index{}
	if err := bf.Build(rowids, vecs); err != nil {
		t.Fatalf("bruteforce Build failed: %v", err)
	}

	query := []float32{0.2, 0.8, 0}
	cvIDs, _, err := cv.Query(query, 3)
	if err != nil {
		t.Fatalf("cover Query failed: %v", err)
	}
	bfIDs, _, err := bf.Query(query, 3)
	if err != nil {
		t.Fatalf("bruteforce Query failed: %v", err)
	}
	if len(cvIDs) != len(bfIDs) {
		t.Fatalf("result lengths differ: cover=%d bruteforce=%d", len(cvIDs), len(bfIDs))
	}
	for i := range cvIDs {
		if cvIDs[i] != bfIDs[i] {
			t.Fatalf("ordering differs at %d: cover=%v bruteforce=%v", i, cvIDs, bfIDs)
		}
	}
}

func TestCoverMarshalRoundTrip(t *testing.T) {
	rowids, vecs := fixture()
	idx := New()
	if err := idx.Build(rowids, vecs); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	data, err := idx.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	restored := New()
	if err := restored.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	ids, _, err := restored.Query([]float32{0, 1, 0}, 1)
	if err != nil {
		t.Fatalf("Query on restored index failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != 2 {
		t.Fatalf("restored top-1 = %v, want [2]", ids)
	}
}

func TestCoverEmpty(t *testing.T) {
	idx := New()
	if err := idx.Build(nil, nil); err != nil {
		t.Fatalf("Build(empty) failed: %v", err)
	}
	ids, dists, err := idx.Query([]float32{1, 0}, 3)
	if err != nil || ids != nil || dists != nil {
		t.Fatalf("empty index query = (%v, %v, %v), want (nil, nil, nil)", ids, dists, err)
	}
}
