package orchestrator

import (
	"fmt"

	"github.com/smilemakc/mbflow/pkg/compiler"
	"github.com/smilemakc/mbflow/pkg/engine"
	"github.com/smilemakc/mbflow/pkg/models"
)

// reloadCells commits a new editor snapshot: every cell that differs from
// the one last committed under its name is (re)compiled, its globals and
// function reads are matched against every other committed operation's
// exposed globals and functions to rebuild its dependency edges, and one
// new Execution Graph node is appended per changed cell, each chained onto
// the previous one. A cell whose name
// was already committed keeps its operation id; a new name mints one.
func (o *Instance) reloadCells(cells []*models.Cell) error {
	o.mu.Lock()
	changed := make([]*models.Cell, 0, len(cells))
	for _, cell := range cells {
		existing, ok := o.cells[cell.Name]
		if ok && existing.Cell.Equal(cell) {
			continue
		}
		opID, ok := o.cellToOp[cell.Name]
		if !ok {
			opID = models.NewOperationID()
		}
		o.cellToOp[cell.Name] = opID
		changed = append(changed, cell)
	}
	o.mu.Unlock()

	if len(changed) == 0 {
		return nil
	}

	head := o.headID()
	state, err := o.graph.State(head)
	if err != nil {
		return err
	}

	nodes := make([]*engine.OperationNode, 0, len(changed))
	for _, cell := range changed {
		opID, _ := o.resolveCell(cell.Name)
		node, err := compiler.Compile(cell, opID, o.deps)
		if err != nil {
			return fmt.Errorf("orchestrator: compile cell %q: %w", cell.Name, err)
		}
		nodes = append(nodes, node)
	}

	producers := newProducerIndex(state, nodes)
	mutations := make([]engine.GraphMutation, 0, len(nodes))
	for _, node := range nodes {
		deps, err := producers.resolve(node)
		if err != nil {
			return err
		}
		mutations = append(mutations, engine.GraphMutation{
			Kind:         engine.GraphMutationCreate,
			OperationID:  node.ID,
			Dependencies: deps,
		})
	}

	withAllOps := state
	for _, node := range nodes {
		withAllOps = withAllOps.WithOperation(node)
	}

	// Append one graph node per changed cell rather than folding the whole
	// batch into a single node, so the history/audit chain attributes each
	// cell's compilation individually instead of only the last one.
	curHead := head
	curState := withAllOps
	for i, node := range nodes {
		curState = curState.ApplyDependencyMutations([]engine.GraphMutation{mutations[i]})
		nextID, err := o.graph.Append(curHead, node.ID, engine.Binding{}, curState)
		if err != nil {
			return err
		}
		curHead = nextID
	}
	newID := curHead

	o.mu.Lock()
	for _, cell := range changed {
		o.cells[cell.Name] = &EditorCell{Cell: cell, AppliedAt: newID}
	}
	editorCells := make(map[string]EditorCell, len(o.cells))
	for name, ec := range o.cells {
		editorCells[name] = *ec
	}
	o.mu.Unlock()

	o.setHead(newID)
	o.publish(RuntimeEvent{Type: EventDefinitionGraphUpdated, NodeID: newID})
	o.publish(RuntimeEvent{Type: EventEditorCellsUpdated, EditorCells: editorCells})
	o.publishExecutionChange(newID)
	return nil
}

// producerIndex maps a globally exposed name to the single operation id
// that exposes it, distinguishing whether the name resolves as a Global
// or a Function export. It spans both already-committed operations and
// the batch of nodes being compiled in this reload, so cells added in
// the same ReloadCells call can depend on one another.
type producerIndex struct {
	globals   map[string]models.OperationID
	functions map[string]models.OperationID
	ambiguous map[string]bool
}

func newProducerIndex(state *engine.ExecutionState, batch []*engine.OperationNode) *producerIndex {
	idx := &producerIndex{
		globals:   map[string]models.OperationID{},
		functions: map[string]models.OperationID{},
		ambiguous: map[string]bool{},
	}
	replaced := make(map[models.OperationID]bool, len(batch))
	for _, n := range batch {
		replaced[n.ID] = true
	}
	for _, id := range state.Operations() {
		if replaced[id] {
			continue
		}
		node, ok := state.Operation(id)
		if !ok {
			continue
		}
		idx.add(node)
	}
	for _, node := range batch {
		idx.add(node)
	}
	return idx
}

func (idx *producerIndex) add(node *engine.OperationNode) {
	for _, name := range node.Output.Globals {
		idx.record(idx.globals, name, node.ID)
	}
	for _, fn := range node.Output.Functions {
		idx.record(idx.functions, fn.Name, node.ID)
	}
}

func (idx *producerIndex) record(table map[string]models.OperationID, name string, id models.OperationID) {
	if existing, ok := table[name]; ok && existing != id {
		idx.ambiguous[name] = true
		return
	}
	table[name] = id
}

// resolve builds node's dependency set from its declared global reads,
// preferring a function producer over a plain global producer for the
// same name, matching the Dependency Graph's own merge policy.
func (idx *producerIndex) resolve(node *engine.OperationNode) (map[models.OperationID]engine.DependencyRef, error) {
	deps := map[models.OperationID]engine.DependencyRef{}
	for _, g := range node.Input.Globals {
		if idx.ambiguous[g.Name] {
			return nil, fmt.Errorf("%w: %q", models.ErrAmbiguousName, g.Name)
		}
		if fnProducer, ok := idx.functions[g.Name]; ok {
			deps[fnProducer] = engine.FunctionRef(g.Name)
			continue
		}
		if globalProducer, ok := idx.globals[g.Name]; ok {
			if existing, has := deps[globalProducer]; !has || existing.Kind != engine.DependencyFunctionInvocation {
				deps[globalProducer] = engine.GlobalRef(g.Name)
			}
			continue
		}
		// Unresolved name: the cell reads a global nothing currently
		// exposes. Left absent from the dependency set; the operation
		// simply never becomes ready for that input.
	}
	return deps, nil
}
