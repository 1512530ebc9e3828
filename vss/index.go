package vss

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"sync"

	idxapi "github.com/cdorrat/llama-index/index"
	"github.com/cdorrat/llama-index/index/bruteforce"
	covidx "github.com/cdorrat/llama-index/index/cover"
	"github.com/cdorrat/llama-index/vector"
)

// corruptRows tracks, per shadow table, how many rows the most recent index
// build skipped because their stored blob would not decode. With no logging
// stack, this counter is the visibility surface for stored-blob corruption.
var corruptRows = struct {
	mu       sync.Mutex
	byShadow map[string]int
}{byShadow: make(map[string]int)}

func setCorruptRows(shadow string, n int) {
	corruptRows.mu.Lock()
	corruptRows.byShadow[shadow] = n
	corruptRows.mu.Unlock()
}

// CorruptRowCount reports how many shadow rows were skipped as corrupt during
// the most recent index build for the given shadow table name (qualified,
// e.g. "main._vss_docs_vss"). Zero for tables never built.
func CorruptRowCount(shadow string) int {
	corruptRows.mu.Lock()
	defer corruptRows.mu.Unlock()
	return corruptRows.byShadow[shadow]
}

const (
	autoCoverMinDocs            = 4000
	autoCoverMinDim             = 64
	autoCoverMinDensity float64 = 16
)

func (c coverOptions) toIndexOptions() []covidx.Option {
	var opts []covidx.Option
	if c.base > 1 {
		opts = append(opts, covidx.WithBase(c.base))
	}
	switch {
	case c.autoParallel:
		opts = append(opts, covidx.WithBuildParallelism(runtime.GOMAXPROCS(0)))
	case c.parallel > 0:
		opts = append(opts, covidx.WithBuildParallelism(c.parallel))
	}
	return opts
}

func (t *Table) newCoverIndex() *covidx.Index {
	return covidx.New(t.coverOpts.toIndexOptions()...)
}

// resolveIndexKind picks brute or cover for auto mode based on corpus size
// and density. Small corpora stay brute-force; the cover tree only pays off
// once there are enough documents per dimension.
func (t *Table) resolveIndexKind(docCount, dim int) string {
	switch t.indexKind {
	case "cover", "brute":
		return t.indexKind
	}
	if docCount >= autoCoverMinDocs && dim >= autoCoverMinDim {
		density := float64(docCount) / float64(dim)
		if density >= autoCoverMinDensity {
			return "cover"
		}
	}
	return "brute"
}

// buildIndexFrom constructs an index of the resolved kind from decoded rows.
func (t *Table) buildIndexFrom(rowids []int64, vecs [][]float32) (idxapi.Index, error) {
	dim := 0
	if len(vecs) > 0 {
		dim = len(vecs[0])
	}
	switch t.resolveIndexKind(len(rowids), dim) {
	case "cover":
		c := t.newCoverIndex()
		if err := c.Build(rowids, vecs); err != nil {
			return nil, err
		}
		return c, nil
	default:
		bf := &bruteforce.Index{}
		if err := bf.Build(rowids, vecs); err != nil {
			return nil, err
		}
		return bf, nil
	}
}

// loadPersistedIndex loads the persisted flat blob, if any, and rebuilds the
// resolved index kind from it. A corrupt blob is treated as absent so the
// index is rebuilt from the shadow table.
func (t *Table) loadPersistedIndex(ctx context.Context) (idxapi.Index, bool, error) {
	var blob []byte
	err := t.db.QueryRowContext(ctx, `SELECT "index" FROM vector_storage WHERE shadow_table_name = ?`, t.shadow).Scan(&blob)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	if len(blob) == 0 {
		return nil, false, nil
	}
	rowids, vecs, err := bruteforce.DecodeFlat(blob)
	if err != nil {
		return nil, false, nil
	}
	idx, err := t.buildIndexFrom(rowids, vecs)
	if err != nil {
		return nil, false, nil
	}
	return idx, true, nil
}

// ensureIndex loads or builds an in-memory index and persists it in
// vector_storage. Concurrent callers in the same process share one build
// through the cache entry's build gate.
func (t *Table) ensureIndex(ctx context.Context) (idxapi.Index, error) {
	if err := t.ensureShadow(); err != nil {
		return nil, err
	}

	dbPath := t.cachedDbPath(ctx)
	key := cacheKey(dbPath, t.tableName)
	entry := getCacheEntry(key)
	if idx := entry.get(); idx != nil {
		return idx, nil
	}

	if idx, ok, err := t.loadPersistedIndex(ctx); err != nil {
		return nil, err
	} else if ok {
		setSharedIndex(entry, idx)
		return idx, nil
	}

	started := false
	for !started {
		if idx := entry.get(); idx != nil {
			return idx, nil
		}
		if entry.startBuild() {
			started = true
			break
		}
		if idx := entry.waitForBuild(); idx != nil {
			return idx, nil
		}
	}
	defer entry.finishBuild()

	if idx, ok, err := t.loadPersistedIndex(ctx); err != nil {
		return nil, err
	} else if ok {
		setSharedIndex(entry, idx)
		return idx, nil
	}

	q := fmt.Sprintf("SELECT id, embedding FROM %s WHERE embedding IS NOT NULL", t.shadow)
	rows, err := t.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rowids []int64
	var vecs [][]float32
	corrupt := 0
	for rows.Next() {
		var rid int64
		var emb []byte
		if err := rows.Scan(&rid, &emb); err != nil {
			return nil, err
		}
		if len(emb) == 0 {
			corrupt++
			continue
		}
		v, err := vector.DecodeEmbedding(emb)
		if err != nil {
			// Corrupt rows are skipped rather than failing the whole scan;
			// the count is surfaced through CorruptRowCount.
			corrupt++
			continue
		}
		if t.dim > 0 && len(v) != t.dim {
			corrupt++
			continue
		}
		rowids = append(rowids, rid)
		vecs = append(vecs, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	setCorruptRows(t.shadow, corrupt)

	built, err := t.buildIndexFrom(rowids, vecs)
	if err != nil {
		return nil, err
	}

	if data, err := built.MarshalBinary(); err == nil {
		_, _ = t.db.ExecContext(ctx, `INSERT OR REPLACE INTO vector_storage(shadow_table_name, "index") VALUES(?, ?)`, t.shadow, data)
	}
	setSharedIndex(entry, built)
	return built, nil
}
