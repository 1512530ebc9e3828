package vss

import (
	"context"
	"fmt"

	"modernc.org/sqlite/vtab"

	"github.com/cdorrat/llama-index/vector"
)

// Cursor scans results from a vss table.
type Cursor struct {
	table *Table
	rows  []struct {
		rowid    int64
		blob     []byte
		distance float64
	}
	pos int
}

// Filter computes the result set based on idxNum/vals.
func (c *Cursor) Filter(idxNum int, idxStr string, vals []vtab.Value) error {
	_ = idxStr
	if c.table == nil || c.table.db == nil {
		c.rows = nil
		c.pos = 0
		return nil
	}
	ctx := context.Background()

	switch idxNum {
	case idxFullScan:
		if err := c.table.ensureShadow(); err != nil {
			return err
		}
		q := fmt.Sprintf("SELECT id, embedding FROM %s ORDER BY id", c.table.shadow)
		rows, err := c.table.db.QueryContext(ctx, q)
		if err != nil {
			return err
		}
		defer rows.Close()
		var out []struct {
			rowid    int64
			blob     []byte
			distance float64
		}
		for rows.Next() {
			var r struct {
				rowid int64
				blob  []byte
			}
			if err := rows.Scan(&r.rowid, &r.blob); err != nil {
				return err
			}
			out = append(out, struct {
				rowid    int64
				blob     []byte
				distance float64
			}{rowid: r.rowid, blob: r.blob})
		}
		if err := rows.Err(); err != nil {
			return err
		}
		c.rows = out
		c.pos = 0
		return nil
	case idxMatch:
		if len(vals) == 0 || vals[0] == nil {
			return fmt.Errorf("vss: MATCH argument is required")
		}
		qEmb, err := decodeMatchArg(vals[0])
		if err != nil {
			return err
		}
		if c.table.dim > 0 && len(qEmb) != c.table.dim {
			return &vector.DimensionError{Want: c.table.dim, Got: len(qEmb)}
		}

		idx, err := c.table.ensureIndex(ctx)
		if err != nil {
			return err
		}
		rowids, dists, err := idx.Query(qEmb, 0)
		if err != nil {
			return err
		}

		out := make([]struct {
			rowid    int64
			blob     []byte
			distance float64
		}, 0, len(rowids))
		for i, rid := range rowids {
			var d float64
			if len(dists) > i {
				d = dists[i]
			}
			out = append(out, struct {
				rowid    int64
				blob     []byte
				distance float64
			}{rowid: rid, distance: d})
		}
		c.rows = out
		c.pos = 0
		return nil
	default:
		return fmt.Errorf("vss: unsupported query plan")
	}
}

// Next advances the cursor.
func (c *Cursor) Next() error {
	if c.pos < len(c.rows) {
		c.pos++
	}
	return nil
}

// Eof reports end-of-rows.
func (c *Cursor) Eof() bool { return c.pos >= len(c.rows) }

// Column returns the value of a column in the current row.
func (c *Cursor) Column(col int) (vtab.Value, error) {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return nil, fmt.Errorf("vss: Column out of range (pos=%d,len=%d)", c.pos, len(c.rows))
	}
	switch col {
	case 0:
		if len(c.rows[c.pos].blob) == 0 {
			return nil, nil
		}
		return c.rows[c.pos].blob, nil
	case 1:
		return c.rows[c.pos].distance, nil
	}
	return nil, fmt.Errorf("vss: unsupported column %d", col)
}

// Rowid returns the current rowid.
func (c *Cursor) Rowid() (int64, error) {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return 0, fmt.Errorf("vss: Rowid out of range (pos=%d,len=%d)", c.pos, len(c.rows))
	}
	return c.rows[c.pos].rowid, nil
}

// Close releases resources.
func (c *Cursor) Close() error { c.rows = nil; c.pos = 0; return nil }
