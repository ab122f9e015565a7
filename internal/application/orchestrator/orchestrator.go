// Package orchestrator owns the Instance lifecycle: editor cells, their
// compilation into the execution graph, and the play/pause/step user
// interaction surface. It adapts the teacher's ObserverManager fan-out
// pattern (internal/application/observer) to a typed RuntimeEvent stream,
// and its ExecutionManager's load-then-run shape to the graph/scheduler
// pair in pkg/engine.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/smilemakc/mbflow/pkg/compiler"
	"github.com/smilemakc/mbflow/pkg/engine"
	"github.com/smilemakc/mbflow/pkg/models"
	"github.com/smilemakc/mbflow/pkg/value"
)

// EditorCell is one cell as the orchestrator tracks it: the last
// committed Cell value, the execution node it was applied at, and
// whether a newer edit is pending commit.
type EditorCell struct {
	Cell        *models.Cell
	AppliedAt   engine.ExecutionNodeID
	NeedsUpdate bool
}

// RuntimeEventType tags one of the Orchestrator's output event variants.
type RuntimeEventType string

const (
	EventPlaybackState                  RuntimeEventType = "playback_state"
	EventDefinitionGraphUpdated         RuntimeEventType = "definition_graph_updated"
	EventExecutionGraphUpdated          RuntimeEventType = "execution_graph_updated"
	EventExecutionStateChange           RuntimeEventType = "execution_state_change"
	EventStateAtID                      RuntimeEventType = "state_at_id"
	EventUpdateExecutionHead            RuntimeEventType = "update_execution_head"
	EventEditorCellsUpdated             RuntimeEventType = "editor_cells_updated"
	EventExecutionStateCellsViewUpdated RuntimeEventType = "execution_state_cells_view_updated"
	EventReceivedChatMessage            RuntimeEventType = "received_chat_message"
)

// RuntimeEvent is one message delivered to EventsFromRuntime subscribers.
// Only the fields relevant to Type are populated.
type RuntimeEvent struct {
	Type RuntimeEventType

	PlaybackMode engine.SchedulerMode
	NodeID       engine.ExecutionNodeID
	History      []engine.HistoryEntry
	EditorCells  map[string]EditorCell
	CellsView    []CellView
	ChatMessage  string
}

// CellView is one row of the execution-state-relative editor cell
// projection: the cell's name alongside its latest binding, if any.
type CellView struct {
	Name     string
	OpID     models.OperationID
	Output   value.Value
	HasError bool
	Bound    bool
}

// Instance owns one notebook's editor cells, execution graph and
// scheduler, and dispatches UserInteractionMessage variants against
// them.
type Instance struct {
	mu       sync.RWMutex
	cells    map[string]*EditorCell
	cellToOp map[string]models.OperationID

	graph     *engine.ExecutionGraph
	scheduler *engine.Scheduler
	head      engine.ExecutionNodeID

	deps compiler.Dependencies

	subMu       sync.RWMutex
	subscribers []chan RuntimeEvent
}

// New returns an Instance rooted at a fresh Execution Graph. deps is
// used as the base Cell Compiler dependency bundle for every cell;
// its ResolveCell field is overwritten with the Instance's own
// cell-name lookup.
func New(deps compiler.Dependencies) *Instance {
	return newInstance(engine.NewExecutionGraph(), deps)
}

// NewWithStoreDSN is New, except the execution graph's persisted state
// is backed by a bun-mapped Postgres table rather than kept in memory
// only, whenever dsn is neither empty nor the ":memory:" sentinel.
func NewWithStoreDSN(ctx context.Context, dsn string, deps compiler.Dependencies) (*Instance, error) {
	graph, err := engine.NewExecutionGraphWithDSN(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: new instance: %w", err)
	}
	return newInstance(graph, deps), nil
}

func newInstance(graph *engine.ExecutionGraph, deps compiler.Dependencies) *Instance {
	inst := &Instance{
		cells:     map[string]*EditorCell{},
		cellToOp:  map[string]models.OperationID{},
		graph:     graph,
		scheduler: engine.NewScheduler(graph),
		head:      graph.Root(),
		deps:      deps,
	}
	inst.deps.ResolveCell = inst.resolveCell
	return inst
}

// Subscribe registers a new EventsFromRuntime listener. The returned
// channel receives every event published from this call onward; a
// subscriber that joins mid-run does not receive a backfill.
func (o *Instance) Subscribe() <-chan RuntimeEvent {
	ch := make(chan RuntimeEvent, 64)
	o.subMu.Lock()
	o.subscribers = append(o.subscribers, ch)
	o.subMu.Unlock()
	return ch
}

// publish fans out evt to every subscriber, non-blocking: a slow or
// absent consumer drops the event rather than stalling the instance.
func (o *Instance) publish(evt RuntimeEvent) {
	o.subMu.RLock()
	subs := make([]chan RuntimeEvent, len(o.subscribers))
	copy(subs, o.subscribers)
	o.subMu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (o *Instance) resolveCell(name string) (models.OperationID, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	id, ok := o.cellToOp[name]
	return id, ok
}

// UserInteractionMessage is the sum type of Orchestrator inputs.
type UserInteractionMessage interface{ userInteractionMessage() }

type ReloadCellsMsg struct{ Cells []*models.Cell }
type PlayMsg struct{ Mode engine.PlayMode }
type PauseMsg struct{}
type StepMsg struct{}
type RunCellAtMsg struct {
	OpID models.OperationID
	Args []value.Value
}
type JumpToMsg struct{ NodeID engine.ExecutionNodeID }
type ShutdownMsg struct{}

func (ReloadCellsMsg) userInteractionMessage() {}
func (PlayMsg) userInteractionMessage()        {}
func (PauseMsg) userInteractionMessage()       {}
func (StepMsg) userInteractionMessage()        {}
func (RunCellAtMsg) userInteractionMessage()   {}
func (JumpToMsg) userInteractionMessage()      {}
func (ShutdownMsg) userInteractionMessage()    {}

// Handle dispatches one UserInteractionMessage and returns once its
// synchronous effects (commit, single step) have completed; Play runs
// until paused or quiescent before returning.
func (o *Instance) Handle(ctx context.Context, msg UserInteractionMessage) error {
	switch m := msg.(type) {
	case ReloadCellsMsg:
		return o.reloadCells(m.Cells)
	case PlayMsg:
		return o.play(ctx, m.Mode)
	case PauseMsg:
		o.scheduler.Pause()
		o.publish(RuntimeEvent{Type: EventPlaybackState, PlaybackMode: o.scheduler.Mode()})
		return nil
	case StepMsg:
		return o.step(ctx)
	case RunCellAtMsg:
		return o.runCellAt(ctx, m.OpID, m.Args)
	case JumpToMsg:
		return o.jumpTo(m.NodeID)
	case ShutdownMsg:
		o.scheduler.Stop()
		o.publish(RuntimeEvent{Type: EventPlaybackState, PlaybackMode: o.scheduler.Mode()})
		return nil
	default:
		return fmt.Errorf("orchestrator: unknown user interaction message %T", msg)
	}
}

func (o *Instance) headID() engine.ExecutionNodeID {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.head
}

func (o *Instance) setHead(id engine.ExecutionNodeID) {
	o.mu.Lock()
	o.head = id
	o.mu.Unlock()
	o.publish(RuntimeEvent{Type: EventUpdateExecutionHead, NodeID: id})
}

func (o *Instance) play(ctx context.Context, mode engine.PlayMode) error {
	o.publish(RuntimeEvent{Type: EventPlaybackState, PlaybackMode: engine.ModeRunning})
	next, err := o.scheduler.Play(ctx, o.headID(), mode)
	o.setHead(next)
	o.publish(RuntimeEvent{Type: EventPlaybackState, PlaybackMode: o.scheduler.Mode()})
	o.publishExecutionChange(next)
	return err
}

func (o *Instance) step(ctx context.Context) error {
	next, err := o.scheduler.Step(ctx, o.headID())
	if err != nil {
		return err
	}
	o.setHead(next)
	o.publishExecutionChange(next)
	return nil
}

func (o *Instance) runCellAt(ctx context.Context, opID models.OperationID, args []value.Value) error {
	head := o.headID()
	state, err := o.graph.State(head)
	if err != nil {
		return err
	}
	node, ok := state.Operation(opID)
	if !ok {
		return &engine.OperationNotFoundError{OperationID: opID}
	}
	fn := value.FunctionPointer{OperationID: node.ID.String(), Name: node.DisplayName}
	next, _, err := o.scheduler.InvokeFunction(ctx, head, fn, args, nil)
	if err != nil {
		return err
	}
	o.setHead(next)
	o.publishExecutionChange(next)
	return nil
}

func (o *Instance) jumpTo(id engine.ExecutionNodeID) error {
	if _, err := o.graph.State(id); err != nil {
		return err
	}
	o.setHead(id)
	o.publishExecutionChange(id)
	return nil
}

func (o *Instance) publishExecutionChange(id engine.ExecutionNodeID) {
	history, err := o.graph.MergedHistoryUntil(id)
	if err != nil {
		return
	}
	o.publish(RuntimeEvent{Type: EventExecutionGraphUpdated, NodeID: id})
	o.publish(RuntimeEvent{Type: EventExecutionStateChange, History: history})

	state, err := o.graph.State(id)
	if err != nil {
		return
	}
	o.publish(RuntimeEvent{Type: EventExecutionStateCellsViewUpdated, CellsView: o.cellsView(state)})
}

// cellsView projects state's bindings onto the orchestrator's committed
// cell names, for UI consumption.
func (o *Instance) cellsView(state *engine.ExecutionState) []CellView {
	o.mu.RLock()
	defer o.mu.RUnlock()

	names := make([]string, 0, len(o.cellToOp))
	for name := range o.cellToOp {
		names = append(names, name)
	}
	sort.Strings(names)

	views := make([]CellView, 0, len(names))
	for _, name := range names {
		opID := o.cellToOp[name]
		binding, bound := state.Binding(opID)
		views = append(views, CellView{
			Name:     name,
			OpID:     opID,
			Output:   binding.Output,
			HasError: binding.HasError,
			Bound:    bound,
		})
	}
	return views
}
