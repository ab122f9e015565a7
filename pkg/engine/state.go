package engine

import (
	"github.com/smilemakc/mbflow/pkg/models"
	"github.com/smilemakc/mbflow/pkg/value"
)

// Binding is the last output recorded for an operation, plus its captured
// stdout/stderr and error flag.
type Binding struct {
	Output   value.Value
	Stdout   []string
	Stderr   []string
	HasError bool
}

// GraphMutationKind tags a dependency-graph mutation applied to a state
//. Naming follows this codebase's
// own Create/Delete pair rather than the upstream source's Update/Delete.
type GraphMutationKind int

const (
	GraphMutationCreate GraphMutationKind = iota
	GraphMutationDelete
)

// GraphMutation either replaces the full dependency set of an operation
// (Create) or removes the operation from the graph entirely (Delete).
type GraphMutation struct {
	Kind         GraphMutationKind
	OperationID  models.OperationID
	Dependencies map[models.OperationID]DependencyRef // used by Create
}

// ExecutionState is an immutable, structurally-shared record of everything
// the scheduler needs to decide what runs next. Every
// mutator returns a new *ExecutionState; the receiver is never modified.
type ExecutionState struct {
	id             ExecutionNodeID
	bindings       *PersistentMap[models.OperationID, Binding]
	operations     *PersistentMap[models.OperationID, *OperationNode]
	dependencyGraph *DependencyGraph
	hasBeenSet     *PersistentMap[models.OperationID, bool]
}

// NewRootState returns the nil/genesis Execution State: no operations, no
// bindings, empty dependency graph.
func NewRootState() *ExecutionState {
	return &ExecutionState{
		id:              RootExecutionNodeID,
		bindings:        NewPersistentMap[models.OperationID, Binding](),
		operations:      NewPersistentMap[models.OperationID, *OperationNode](),
		dependencyGraph: NewDependencyGraph(),
		hasBeenSet:      NewPersistentMap[models.OperationID, bool](),
	}
}

// ID returns this state's ExecutionNodeID.
func (s *ExecutionState) ID() ExecutionNodeID { return s.id }

// Get returns the last recorded output for op, if any.
func (s *ExecutionState) Get(op models.OperationID) (value.Value, bool) {
	b, ok := s.bindings.Get(op)
	if !ok {
		return value.Null(), false
	}
	return b.Output, true
}

// Binding returns the full binding (output plus stdout/stderr/has_error).
func (s *ExecutionState) Binding(op models.OperationID) (Binding, bool) {
	return s.bindings.Get(op)
}

// HasEverBeenSet reports whether op has produced at least one output since
// genesis.
func (s *ExecutionState) HasEverBeenSet(op models.OperationID) bool {
	v, _ := s.hasBeenSet.Get(op)
	return v
}

// Operation looks up the compiled Operation Node for op.
func (s *ExecutionState) Operation(op models.OperationID) (*OperationNode, bool) {
	return s.operations.Get(op)
}

// Operations returns every operation id known to this state.
func (s *ExecutionState) Operations() []models.OperationID {
	return s.operations.Keys()
}

// DependencyGraph returns the readable dependency DAG.
func (s *ExecutionState) DependencyGraph() *DependencyGraph { return s.dependencyGraph }

// clone produces a shallow copy of s with its own PersistentMap handles; the
// caller is expected to replace one or more of those handles before use,
// since PersistentMap.Set/Delete already avoid mutating the original.
func (s *ExecutionState) clone() *ExecutionState {
	return &ExecutionState{
		id:              s.id,
		bindings:        s.bindings,
		operations:      s.operations,
		dependencyGraph: s.dependencyGraph,
		hasBeenSet:      s.hasBeenSet,
	}
}

// Insert returns a new state with op bound to binding.
func (s *ExecutionState) Insert(op models.OperationID, binding Binding) *ExecutionState {
	next := s.clone()
	next.id = newExecutionNodeID()
	next.bindings = s.bindings.Set(op, binding)
	next.hasBeenSet = s.hasBeenSet.Set(op, true)
	return next
}

// WithOperation returns a new state with node registered as op's compiled
// Operation Node (used by the compiler/orchestrator when a cell is
// (re)compiled).
func (s *ExecutionState) WithOperation(node *OperationNode) *ExecutionState {
	next := s.clone()
	next.id = newExecutionNodeID()
	next.operations = s.operations.Set(node.ID, node)
	return next
}

// WithoutOperation returns a new state with op and its bindings removed.
func (s *ExecutionState) WithoutOperation(op models.OperationID) *ExecutionState {
	next := s.clone()
	next.id = newExecutionNodeID()
	next.operations = s.operations.Delete(op)
	next.bindings = s.bindings.Delete(op)
	next.hasBeenSet = s.hasBeenSet.Delete(op)
	g := s.dependencyGraph.Clone()
	g.RemoveNode(op)
	next.dependencyGraph = g
	return next
}

// ApplyDependencyMutations returns a new state with each mutation applied
// in order. Create replaces the full
// dependency set of a node; Delete removes the node (and its bindings and
// operation entry) entirely.
func (s *ExecutionState) ApplyDependencyMutations(mutations []GraphMutation) *ExecutionState {
	next := s
	g := s.dependencyGraph.Clone()
	for _, m := range mutations {
		switch m.Kind {
		case GraphMutationCreate:
			g.SetDependencies(m.OperationID, m.Dependencies)
		case GraphMutationDelete:
			g.RemoveNode(m.OperationID)
			next = next.WithoutOperation(m.OperationID)
		}
	}
	result := next.clone()
	result.id = newExecutionNodeID()
	result.dependencyGraph = g
	return result
}
