package taxonomy

import (
	"errors"
	"fmt"

	"github.com/roach88/termgraph/internal/ir"
)

// CorruptRecordError reports a packed record that does not follow the block
// layout. It is a data-integrity failure, not a lookup miss.
type CorruptRecordError struct {
	Offset int    // Array offset of the offending block
	Reason string // What was wrong
}

// Error implements the error interface.
func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("corrupt taxonomy record at offset %d: %s", e.Offset, e.Reason)
}

// IsCorruptRecordError returns true if the error is a CorruptRecordError.
// Uses errors.As to handle wrapped errors.
func IsCorruptRecordError(err error) bool {
	var ce *CorruptRecordError
	return errors.As(err, &ce)
}

// UnsupportedNodeKindError is returned when a relationship root has a node
// kind the taxonomy cannot translate into edges. Only the semantic being
// updated is affected.
type UnsupportedNodeKindError struct {
	Semantic ir.Nid      // Logic graph semantic being updated
	Node     int         // Index of the node in the graph
	Kind     ir.NodeKind // The offending kind
}

// Error implements the error interface.
func (e *UnsupportedNodeKindError) Error() string {
	return fmt.Sprintf("semantic %d: node %d: unsupported relationship root kind %s",
		e.Semantic, e.Node, e.Kind)
}

// IsUnsupportedNodeKindError returns true if the error is an UnsupportedNodeKindError.
func IsUnsupportedNodeKindError(err error) bool {
	var ue *UnsupportedNodeKindError
	return errors.As(err, &ue)
}
