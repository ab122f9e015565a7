package engine

import (
	"context"
	"sync"
	"time"

	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
	"github.com/smilemakc/mbflow/pkg/models"
)

// graphNode is one entry in the Execution Graph: an immutable Execution
// State plus the (operation id, output) pair that produced it from its
// parent.
type graphNode struct {
	state       *ExecutionState
	parent      ExecutionNodeID
	producedBy  models.OperationID
	producedOut Binding
	children    []ExecutionNodeID
}

// ExecutionGraph is a rooted DAG over ExecutionNodeID: node 0 is the
// nil/genesis state, nodes may branch, and every edge is produced by
// exactly one operation's completion.
type ExecutionGraph struct {
	mu       sync.Mutex
	nodes    map[ExecutionNodeID]*graphNode
	events   chan ExecutionEvent
	eventsTaken bool
	store    NodeStore
}

// NodeStore durably records Execution Graph nodes as they're appended.
// It is an audit trail for inspection/replay tooling, not a substitute
// for the in-memory graph: compiled OperationNodes and the dependency
// graph are never persisted, only the (id, parent, operation, output)
// tuple produced at each step. See store_bun.go for the bun-backed
// implementation.
type NodeStore interface {
	SaveNode(ctx context.Context, id, parent ExecutionNodeID, op models.OperationID, out Binding) error
}

// AttachStore wires a durable NodeStore into g. Every future Append
// call best-effort persists its node in the background; a slow or
// failing store never blocks the scheduler.
func (g *ExecutionGraph) AttachStore(store NodeStore) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.store = store
}

// NewExecutionGraph returns a graph seeded with the root state.
func NewExecutionGraph() *ExecutionGraph {
	g := &ExecutionGraph{
		nodes:  map[ExecutionNodeID]*graphNode{},
		events: make(chan ExecutionEvent, 256),
	}
	root := NewRootState()
	g.nodes[root.ID()] = &graphNode{state: root, parent: RootExecutionNodeID}
	return g
}

// NewExecutionGraphWithDSN returns a graph exactly like NewExecutionGraph,
// additionally attaching a BunStore when dsn is neither empty nor the
// ":memory:" sentinel. The graph itself always starts in memory; only
// node persistence going forward is durable.
func NewExecutionGraphWithDSN(ctx context.Context, dsn string) (*ExecutionGraph, error) {
	g := NewExecutionGraph()
	if dsn == "" || dsn == ":memory:" {
		return g, nil
	}
	store, err := NewBunStore(ctx, dsn)
	if err != nil {
		return nil, err
	}
	g.AttachStore(store)
	return g, nil
}

// TakeExecutionEventReceiver returns the single-consumer event stream.
// Calling it more than once returns nil for every call after the first:
// the stream is single-consumer, and a subscriber that joins mid-run
// receives only future events, never a backfill of past ones.
func (g *ExecutionGraph) TakeExecutionEventReceiver() <-chan ExecutionEvent {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.eventsTaken {
		return nil
	}
	g.eventsTaken = true
	return g.events
}

func (g *ExecutionGraph) publish(evt ExecutionEvent) {
	evt.Timestamp = time.Now()
	select {
	case g.events <- evt:
	default:
		// Slow/absent consumer: drop rather than block the scheduler.
		// Past events are never guaranteed to subscribers anyway.
	}
}

// State returns the Execution State stored at id.
func (g *ExecutionGraph) State(id ExecutionNodeID) (*ExecutionState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil, &StateNotFoundError{NodeID: id}
	}
	return n.state, nil
}

// Root returns the genesis state's id.
func (g *ExecutionGraph) Root() ExecutionNodeID { return RootExecutionNodeID }

// Append records a new state as a child of parentID, produced by op's
// completion, and returns its id.
func (g *ExecutionGraph) Append(parentID ExecutionNodeID, op models.OperationID, output Binding, newState *ExecutionState) (ExecutionNodeID, error) {
	g.mu.Lock()
	parent, ok := g.nodes[parentID]
	if !ok {
		g.mu.Unlock()
		return ExecutionNodeID{}, &StateNotFoundError{NodeID: parentID}
	}
	id := newState.ID()
	node := &graphNode{
		state:       newState,
		parent:      parentID,
		producedBy:  op,
		producedOut: output,
	}
	g.nodes[id] = node
	parent.children = append(parent.children, id)
	store := g.store
	g.mu.Unlock()

	if store != nil {
		go func() {
			if err := store.SaveNode(context.Background(), id, parentID, op, output); err != nil {
				logger.Default().Error("failed to persist execution node", "node_id", id.String(), "error", err)
			}
		}()
	}

	g.publish(ExecutionEvent{Type: EventOperationApplied, NodeID: id, ParentID: parentID, OperationID: op})
	return id, nil
}

// Children returns id's child node ids.
func (g *ExecutionGraph) Children(id ExecutionNodeID) []ExecutionNodeID {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	out := make([]ExecutionNodeID, len(n.children))
	copy(out, n.children)
	return out
}

// Parent returns id's parent node id, or ok=false at the root.
func (g *ExecutionGraph) Parent(id ExecutionNodeID) (ExecutionNodeID, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok || id == RootExecutionNodeID {
		return ExecutionNodeID{}, false
	}
	return n.parent, true
}

// HistoryEntry is one step in a merged_history_until projection.
type HistoryEntry struct {
	OperationID models.OperationID
	Output      Binding
}

// MergedHistoryUntil returns the ordered projection from root to id,
// useful for reconstructing a UI timeline.
func (g *ExecutionGraph) MergedHistoryUntil(id ExecutionNodeID) ([]HistoryEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var chain []HistoryEntry
	cur := id
	for {
		n, ok := g.nodes[cur]
		if !ok {
			return nil, &StateNotFoundError{NodeID: cur}
		}
		if cur == RootExecutionNodeID {
			break
		}
		chain = append(chain, HistoryEntry{OperationID: n.producedBy, Output: n.producedOut})
		cur = n.parent
	}
	// chain was built from id back to root; reverse it.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}
