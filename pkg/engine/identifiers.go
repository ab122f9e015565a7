package engine

import "github.com/google/uuid"

// ExecutionNodeID identifies one node (Execution State) in the Execution
// Graph. It is time-ordered so that newer states sort after older ones.
type ExecutionNodeID uuid.UUID

// RootExecutionNodeID is the nil/genesis state every branch descends from.
var RootExecutionNodeID = ExecutionNodeID(uuid.Nil)

func newExecutionNodeID() ExecutionNodeID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ExecutionNodeID(id)
}

func (id ExecutionNodeID) String() string { return uuid.UUID(id).String() }

func (id ExecutionNodeID) IsRoot() bool { return id == RootExecutionNodeID }
