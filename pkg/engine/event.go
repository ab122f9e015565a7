package engine

import (
	"time"

	"github.com/smilemakc/mbflow/pkg/models"
)

// ExecutionEventType enumerates the kinds of events the Execution Graph
// publishes on its event channel.
type ExecutionEventType string

const (
	EventNodeCreated   ExecutionEventType = "node_created"
	EventOperationStarted ExecutionEventType = "operation_started"
	EventOperationApplied ExecutionEventType = "operation_applied"
	EventOperationFailed  ExecutionEventType = "operation_failed"
	EventQuiescent        ExecutionEventType = "quiescent"
)

// ExecutionEvent is one entry on the Execution Graph's event stream. It is
// informational only: replaying it is never required to reconstruct state,
// since ExecutionState values are immutable and retrievable by node id.
type ExecutionEvent struct {
	Type        ExecutionEventType
	NodeID      ExecutionNodeID
	ParentID    ExecutionNodeID
	OperationID models.OperationID
	Error       error
	Timestamp   time.Time
}
