package schema

// Node is the basic unit stored and retrieved: a span of text with metadata,
// owned by a logical source document.
type Node struct {
	// ID is the caller-supplied stable identifier for the node. It may differ
	// from the store-assigned row identity.
	ID string

	// DocID identifies the owning logical document; many nodes may share one.
	DocID string

	// Text holds the node's textual content, without metadata markup.
	Text string

	// Metadata is an open key-value document describing the node.
	Metadata map[string]any

	// Embedding is the node's fixed-dimension vector representation, supplied
	// by the caller; the store never computes embeddings itself.
	Embedding []float32
}

// NodeWithScore pairs a retrieved node with its similarity to a query.
type NodeWithScore struct {
	Node  *Node
	Score float64
}
