package schema

import (
	"errors"
	"testing"
)

func TestNodeToMetadataDict_StripsText(t *testing.T) {
	node := &Node{
		ID:       "n1",
		DocID:    "d1",
		Text:     "hello world",
		Metadata: map[string]any{"source": "unit"},
	}

	dict, err := NodeToMetadataDict(node, true)
	if err != nil {
		t.Fatalf("NodeToMetadataDict failed: %v", err)
	}
	if _, ok := dict["text"]; ok {
		t.Fatalf("expected text to be stripped, got %v", dict["text"])
	}
	if dict["doc_id"] != "d1" {
		t.Fatalf("doc_id = %v, want d1", dict["doc_id"])
	}
	if dict["node_id"] != "n1" {
		t.Fatalf("node_id = %v, want n1", dict["node_id"])
	}
	if dict["source"] != "unit" {
		t.Fatalf("source = %v, want unit", dict["source"])
	}
}

func TestNodeToMetadataDict_KeepsTextWhenAsked(t *testing.T) {
	node := &Node{ID: "n1", DocID: "d1", Text: "body"}
	dict, err := NodeToMetadataDict(node, false)
	if err != nil {
		t.Fatalf("NodeToMetadataDict failed: %v", err)
	}
	if dict["text"] != "body" {
		t.Fatalf("text = %v, want body", dict["text"])
	}
}

func TestNodeToMetadataDict_MissingFields(t *testing.T) {
	cases := []*Node{
		nil,
		{DocID: "d1"},
		{ID: "n1"},
		{ID: "n1", DocID: "d1", Metadata: map[string]any{"doc_id": "evil"}},
	}
	for i, node := range cases {
		if _, err := NodeToMetadataDict(node, true); !errors.Is(err, ErrEncode) {
			t.Fatalf("case %d: error = %v, want ErrEncode", i, err)
		}
	}
}

func TestMetadataDictRoundTrip(t *testing.T) {
	node := &Node{
		ID:       "n7",
		DocID:    "d9",
		Text:     "the text",
		Metadata: map[string]any{"lang": "en", "page": "3"},
	}
	dict, err := NodeToMetadataDict(node, true)
	if err != nil {
		t.Fatalf("NodeToMetadataDict failed: %v", err)
	}

	back, err := MetadataDictToNode(dict)
	if err != nil {
		t.Fatalf("MetadataDictToNode failed: %v", err)
	}
	if back.ID != "n7" || back.DocID != "d9" {
		t.Fatalf("round trip ids = (%s, %s), want (n7, d9)", back.ID, back.DocID)
	}
	// Text was stripped on encode; the store re-attaches it from the column.
	if back.Text != "" {
		t.Fatalf("expected empty text after stripped round trip, got %q", back.Text)
	}
	if back.Metadata["lang"] != "en" || back.Metadata["page"] != "3" {
		t.Fatalf("metadata round trip = %v", back.Metadata)
	}
}

func TestMetadataDictToNode_MissingKeys(t *testing.T) {
	if _, err := MetadataDictToNode(nil); !errors.Is(err, ErrDecode) {
		t.Fatalf("nil dict: error = %v, want ErrDecode", err)
	}
	if _, err := MetadataDictToNode(map[string]any{"doc_id": "d1"}); !errors.Is(err, ErrDecode) {
		t.Fatalf("missing node_id: error = %v, want ErrDecode", err)
	}
	if _, err := MetadataDictToNode(map[string]any{"node_id": "n1", "doc_id": 7}); !errors.Is(err, ErrDecode) {
		t.Fatalf("mistyped doc_id: error = %v, want ErrDecode", err)
	}
}

func TestMetadataFiltersMatches(t *testing.T) {
	filters := &MetadataFilters{Filters: []MetadataFilter{{Key: "lang", Value: "en"}}}
	if !filters.Matches(map[string]any{"lang": "en", "page": "1"}) {
		t.Fatalf("expected filter to match")
	}
	if filters.Matches(map[string]any{"lang": "de"}) {
		t.Fatalf("expected filter to reject wrong value")
	}
	if filters.Matches(nil) {
		t.Fatalf("expected filter to reject missing key")
	}
	var none *MetadataFilters
	if !none.Matches(nil) {
		t.Fatalf("nil filters must match everything")
	}
}

// TestMetadataFiltersSliceValues checks structural comparison of values whose
// dynamic type Go's == cannot compare, such as JSON-decoded arrays.
func TestMetadataFiltersSliceValues(t *testing.T) {
	filters := &MetadataFilters{Filters: []MetadataFilter{{Key: "tags", Value: []any{"a"}}}}
	if !filters.Matches(map[string]any{"tags": []any{"a"}}) {
		t.Fatalf("expected slice filter to match equal slice")
	}
	if filters.Matches(map[string]any{"tags": []any{"b"}}) {
		t.Fatalf("expected slice filter to reject different slice")
	}
	if filters.Matches(map[string]any{"tags": "a"}) {
		t.Fatalf("expected slice filter to reject scalar value")
	}
}

// TestMetadataFiltersNumericValues checks that numbers match across Go types:
// the JSON round trip stores every number as float64, and an int filter value
// must still find it.
func TestMetadataFiltersNumericValues(t *testing.T) {
	filters := &MetadataFilters{Filters: []MetadataFilter{{Key: "page", Value: 3}}}
	if !filters.Matches(map[string]any{"page": float64(3)}) {
		t.Fatalf("expected int filter to match JSON float64")
	}
	if filters.Matches(map[string]any{"page": float64(4)}) {
		t.Fatalf("expected int filter to reject different number")
	}
	if filters.Matches(map[string]any{"page": "3"}) {
		t.Fatalf("expected numeric filter to reject string value")
	}
}
