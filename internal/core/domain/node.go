package domain

// ExecutionNode is the runtime wrapper around a descriptor.
// The scheduler owns it from dispatch until the outcome is set; the executor only mutates Attempt.
type ExecutionNode struct {
	Descriptor *TestDescriptor
	// Seq is the registration order of the descriptor in its catalog.
	Seq     int
	Attempt int
	Outcome Outcome
}

// NewExecutionNode wraps a descriptor.
func NewExecutionNode(d *TestDescriptor, seq int) *ExecutionNode {
	return &ExecutionNode{Descriptor: d, Seq: seq}
}

// ID returns the descriptor id.
func (n *ExecutionNode) ID() InternedString {
	return n.Descriptor.ID
}
