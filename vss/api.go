package vss

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	sqlite "modernc.org/sqlite"
	"modernc.org/sqlite/vtab"

	"github.com/cdorrat/llama-index/vector"
)

// Module implements vtab.Module for the vss virtual table. Each table owns a
// rowid-keyed shadow store holding fixed-dimension embedding BLOBs and
// answers MATCH queries with (rowid, distance) pairs ascending by cosine
// distance.
type Module struct {
	db *sql.DB
}

// Table represents a single vss virtual table instance.
type Table struct {
	db        *sql.DB
	dbName    string
	tableName string
	shadow    string // qualified shadow table name (e.g. "main._vss_docs_vss")
	dim       int    // embedding dimension fixed at CREATE time; 0 = unconstrained

	dbPathOnce sync.Once
	dbPathErr  error
	dbPath     string

	indexKind string // "auto" (default), "brute", or "cover"
	coverOpts coverOptions
}

type tableOptions struct {
	column string
	dim    int
	kind   string
	cover  coverOptions
}

type coverOptions struct {
	base         float32
	parallel     int
	autoParallel bool
}

const (
	defaultColumn    = "embedding"
	defaultIndexKind = "auto"
)

const (
	idxFullScan = iota
	idxMatch
)

// parseTableOptions reads the CREATE VIRTUAL TABLE argument list, e.g.
// USING vss(embedding(1536), index=auto, cover_base=1.3, cover_parallel=auto).
func parseTableOptions(args []string) tableOptions {
	opts := tableOptions{column: defaultColumn, kind: defaultIndexKind}
	for _, raw := range args {
		a := strings.TrimSpace(raw)
		if a == "" {
			continue
		}
		if !strings.Contains(a, "=") {
			// Column declaration, optionally with a dimension: embedding(1536).
			name := a
			if open := strings.Index(a, "("); open >= 0 && strings.HasSuffix(a, ")") {
				name = strings.TrimSpace(a[:open])
				if d, err := strconv.Atoi(strings.TrimSpace(a[open+1 : len(a)-1])); err == nil && d > 0 {
					opts.dim = d
				}
			}
			if name != "" {
				opts.column = name
			}
			continue
		}
		parts := strings.SplitN(a, "=", 2)
		key := strings.ToLower(strings.TrimSpace(parts[0]))
		val := strings.TrimSpace(parts[1])
		switch key {
		case "index":
			switch strings.ToLower(val) {
			case "cover", "brute", "auto":
				opts.kind = strings.ToLower(val)
			}
		case "cover_base":
			if f, err := strconv.ParseFloat(val, 32); err == nil && f > 1 {
				opts.cover.base = float32(f)
			}
		case "cover_parallel":
			lower := strings.ToLower(val)
			switch lower {
			case "", "0", "off":
				opts.cover.parallel = 0
				opts.cover.autoParallel = false
			case "auto":
				opts.cover.autoParallel = true
				opts.cover.parallel = 0
			default:
				if n, err := strconv.Atoi(lower); err == nil && n > 0 {
					opts.cover.parallel = n
					opts.cover.autoParallel = false
				}
			}
		}
	}
	return opts
}

var registerInvalidateOnce sync.Once

// Register registers the vss virtual table module with the provided *sql.DB.
func Register(db *sql.DB) error {
	mod := &Module{db: db}
	if err := vtab.RegisterModule(db, "vss", mod); err != nil {
		if !strings.Contains(err.Error(), "already registered") {
			return err
		}
	}
	// Register vss_invalidate globally for new connections; idempotent.
	registerInvalidateOnce.Do(func() {
		_ = sqlite.RegisterDeterministicScalarFunction("vss_invalidate", 1, invalidateFunc)
	})
	return nil
}

func (m *Module) newTable(ctx vtab.Context, args []string) (vtab.Table, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("vss: expected at least 3 args, got %d", len(args))
	}
	if err := ctx.EnableConstraintSupport(); err != nil {
		return nil, fmt.Errorf("vss: EnableConstraintSupport failed: %w", err)
	}
	opts := parseTableOptions(args[3:])
	// Declare the virtual table schema: the embedding column plus a hidden
	// distance column populated on MATCH scans.
	if err := ctx.Declare(fmt.Sprintf("CREATE TABLE %s(%s BLOB, distance REAL HIDDEN)", args[2], opts.column)); err != nil {
		return nil, err
	}
	t := &Table{db: m.db, dbName: args[1], tableName: args[2], dim: opts.dim}
	// Initialize shadow name eagerly so subsequent statements on the same connection work.
	t.shadow = t.qualifiedShadow()
	t.indexKind = opts.kind
	t.coverOpts = opts.cover
	// Shadow creation is deferred to first use to avoid cross-connection DDL during xCreate.
	return t, nil
}

// Create initializes a vss table instance.
func (m *Module) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.newTable(ctx, args)
}

// Connect attaches to an existing vss table instance.
func (m *Module) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.newTable(ctx, args)
}

// BestIndex pushes down MATCH on the embedding column.
func (t *Table) BestIndex(info *vtab.IndexInfo) error {
	info.IdxNum = idxFullScan
	for i := range info.Constraints {
		c := &info.Constraints[i]
		if !c.Usable {
			continue
		}
		if c.Column == 0 && c.Op == vtab.OpMATCH {
			c.ArgIndex = 0
			c.Omit = true
			info.IdxNum = idxMatch
			break
		}
	}
	return nil
}

// Open allocates a new cursor.
func (t *Table) Open() (vtab.Cursor, error) { return &Cursor{table: t}, nil }

// Disconnect cleans up per-connection resources.
func (t *Table) Disconnect() error { return nil }

// Destroy drops nothing; the shadow table persists.
func (t *Table) Destroy() error { return nil }

// qualifiedShadow returns a fully-qualified shadow table name.
func (t *Table) qualifiedShadow() string {
	base := ShadowTableName(t.tableName)
	if strings.TrimSpace(t.dbName) == "" {
		return base
	}
	return t.dbName + "." + base
}

// ShadowTableName derives the shadow table name for a vss virtual table,
// mirroring the _vss_ prefix convention.
func ShadowTableName(virtualTable string) string {
	return "_vss_" + virtualTable
}

// decodeMatchArg turns a MATCH argument into a query embedding. BLOBs use the
// codec directly; strings may be a JSON float array or a CSV float list.
func decodeMatchArg(v interface{}) ([]float32, error) {
	switch val := v.(type) {
	case []byte:
		return vector.DecodeEmbedding(val)
	case string:
		return decodeMatchString(val)
	default:
		return nil, fmt.Errorf("vss: expected MATCH arg as BLOB or string, got %T", v)
	}
}

func decodeMatchString(raw string) ([]float32, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("vss: MATCH string is empty")
	}
	if strings.HasPrefix(s, "[") {
		var floats []float64
		if err := json.Unmarshal([]byte(s), &floats); err == nil {
			vec := make([]float32, len(floats))
			for i, f := range floats {
				vec[i] = float32(f)
			}
			return vec, nil
		}
	}
	if strings.Contains(s, ",") {
		parts := strings.Split(s, ",")
		vec := make([]float32, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			f, err := strconv.ParseFloat(p, 32)
			if err != nil {
				return nil, fmt.Errorf("vss: invalid MATCH float %q: %w", p, err)
			}
			vec = append(vec, float32(f))
		}
		if len(vec) > 0 {
			return vec, nil
		}
	}
	return nil, fmt.Errorf("vss: MATCH string must be a JSON or CSV float list")
}

// invalidateFunc implements SQL scalar vss_invalidate(shadow TEXT) -> INT.
func invalidateFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 1 {
		return int64(0), nil
	}
	var s string
	switch v := args[0].(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return int64(0), nil
	}
	return int64(InvalidateCache(s)), nil
}
