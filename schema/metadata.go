package schema

import (
	"errors"
	"fmt"
)

// Reserved keys used by the metadata document codec. User metadata with these
// keys is rejected on encode rather than silently overwritten.
const (
	keyNodeID = "node_id"
	keyDocID  = "doc_id"
	keyText   = "text"
)

// ErrEncode reports a node that cannot be serialized into a metadata
// document, typically because a required field is absent.
var ErrEncode = errors.New("schema: cannot encode node metadata")

// ErrDecode reports a metadata document that cannot be turned back into a
// node, typically because a required key is missing or mistyped.
var ErrDecode = errors.New("schema: cannot decode node metadata")

// NodeToMetadataDict serializes a node's metadata into a flat key-value
// document suitable for the store's metadata column. The result always
// contains doc_id and node_id; callers rely on doc_id to populate the record
// table directly from the encoded document. When removeText is true the
// node's text is omitted so the document does not duplicate the stored
// node_text column.
func NodeToMetadataDict(node *Node, removeText bool) (map[string]any, error) {
	if node == nil {
		return nil, fmt.Errorf("%w: node is nil", ErrEncode)
	}
	if node.ID == "" {
		return nil, fmt.Errorf("%w: node id is empty", ErrEncode)
	}
	if node.DocID == "" {
		return nil, fmt.Errorf("%w: doc id is empty for node %q", ErrEncode, node.ID)
	}
	dict := make(map[string]any, len(node.Metadata)+3)
	for k, v := range node.Metadata {
		switch k {
		case keyNodeID, keyDocID, keyText:
			return nil, fmt.Errorf("%w: metadata key %q is reserved (node %q)", ErrEncode, k, node.ID)
		}
		dict[k] = v
	}
	dict[keyNodeID] = node.ID
	dict[keyDocID] = node.DocID
	if !removeText {
		dict[keyText] = node.Text
	}
	return dict, nil
}

// MetadataDictToNode reconstructs a node from a document produced by
// NodeToMetadataDict. When the document was encoded with removeText, the
// returned node's Text is empty and the caller re-attaches the stored text
// column afterward.
func MetadataDictToNode(dict map[string]any) (*Node, error) {
	if dict == nil {
		return nil, fmt.Errorf("%w: document is nil", ErrDecode)
	}
	id, err := stringKey(dict, keyNodeID)
	if err != nil {
		return nil, err
	}
	docID, err := stringKey(dict, keyDocID)
	if err != nil {
		return nil, err
	}
	node := &Node{ID: id, DocID: docID}
	if raw, ok := dict[keyText]; ok {
		text, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: key %q is %T, want string", ErrDecode, keyText, raw)
		}
		node.Text = text
	}
	metadata := make(map[string]any, len(dict))
	for k, v := range dict {
		switch k {
		case keyNodeID, keyDocID, keyText:
			continue
		}
		metadata[k] = v
	}
	if len(metadata) > 0 {
		node.Metadata = metadata
	}
	return node, nil
}

func stringKey(dict map[string]any, key string) (string, error) {
	raw, ok := dict[key]
	if !ok {
		return "", fmt.Errorf("%w: missing key %q", ErrDecode, key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: key %q is %T, want string", ErrDecode, key, raw)
	}
	return s, nil
}
