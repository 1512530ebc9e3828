package vectorstore

import (
	"errors"
	"fmt"
)

// ErrStoreClosed reports an operation on a store after Close.
var ErrStoreClosed = errors.New("vectorstore: store is closed")

// PartialAddError reports an Add batch that failed partway through. Added
// holds the node IDs whose data row and index entry were both committed
// before the failure; the failing node left no partial row behind.
type PartialAddError struct {
	Op     string
	NodeID string
	Added  []string
	Err    error
}

func (e *PartialAddError) Error() string {
	return fmt.Sprintf("vectorstore: %s failed at node %q after %d added: %v", e.Op, e.NodeID, len(e.Added), e.Err)
}

func (e *PartialAddError) Unwrap() error { return e.Err }
