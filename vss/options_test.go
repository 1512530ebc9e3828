package vss

import (
	"math"
	"testing"
)

func TestParseTableOptions(t *testing.T) {
	opts := parseTableOptions([]string{"embedding(1536)", "index=cover", "cover_base=1.5", "cover_parallel=auto"})
	if opts.column != "embedding" {
		t.Fatalf("column = %q, want embedding", opts.column)
	}
	if opts.dim != 1536 {
		t.Fatalf("dim = %d, want 1536", opts.dim)
	}
	if opts.kind != "cover" {
		t.Fatalf("kind = %q, want cover", opts.kind)
	}
	if opts.cover.base != 1.5 {
		t.Fatalf("cover base = %v, want 1.5", opts.cover.base)
	}
	if !opts.cover.autoParallel {
		t.Fatalf("expected autoParallel")
	}
}

func TestParseTableOptionsDefaults(t *testing.T) {
	opts := parseTableOptions(nil)
	if opts.column != "embedding" || opts.dim != 0 || opts.kind != "auto" {
		t.Fatalf("unexpected defaults: %+v", opts)
	}
	// A bare column name without a dimension keeps the dim unconstrained.
	opts = parseTableOptions([]string{"vec"})
	if opts.column != "vec" || opts.dim != 0 {
		t.Fatalf("unexpected options: %+v", opts)
	}
}

func TestDecodeMatchString(t *testing.T) {
	vec, err := decodeMatchString("[1.0, 0.5, 0.0]")
	if err != nil {
		t.Fatalf("JSON decode failed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 1 || vec[1] != 0.5 {
		t.Fatalf("unexpected JSON vector: %v", vec)
	}

	vec, err = decodeMatchString("0.25, 0.75")
	if err != nil {
		t.Fatalf("CSV decode failed: %v", err)
	}
	if len(vec) != 2 || math.Abs(float64(vec[0])-0.25) > 1e-6 {
		t.Fatalf("unexpected CSV vector: %v", vec)
	}

	if _, err := decodeMatchString(""); err == nil {
		t.Fatalf("expected error for empty MATCH string")
	}
	if _, err := decodeMatchString("not a vector"); err == nil {
		t.Fatalf("expected error for garbage MATCH string")
	}
}

func TestShadowTableName(t *testing.T) {
	if got := ShadowTableName("docs_vss"); got != "_vss_docs_vss" {
		t.Fatalf("ShadowTableName = %q", got)
	}
	if got := tableNameFromShadow("main._vss_docs_vss"); got != "docs_vss" {
		t.Fatalf("tableNameFromShadow = %q", got)
	}
	if got := tableNameFromShadow("_vss_docs_vss"); got != "docs_vss" {
		t.Fatalf("tableNameFromShadow unqualified = %q", got)
	}
}

func TestResolveIndexKind(t *testing.T) {
	tbl := &Table{indexKind: "auto"}
	if got := tbl.resolveIndexKind(10, 128); got != "brute" {
		t.Fatalf("small corpus resolved to %q, want brute", got)
	}
	if got := tbl.resolveIndexKind(10000, 128); got != "cover" {
		t.Fatalf("dense corpus resolved to %q, want cover", got)
	}
	tbl.indexKind = "brute"
	if got := tbl.resolveIndexKind(10000, 128); got != "brute" {
		t.Fatalf("explicit brute resolved to %q", got)
	}
}
