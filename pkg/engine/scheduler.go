package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/smilemakc/mbflow/pkg/models"
	"github.com/smilemakc/mbflow/pkg/value"
)

// SchedulerMode is one of the Scheduler's states: Paused, Running, Step,
// or Stopped.
type SchedulerMode int

const (
	ModePaused SchedulerMode = iota
	ModeRunning
	ModeStep
	ModeStopped
)

// Scheduler is the Stepper: the heart of the system. It reads
// readiness from an Execution State, selects one ready operation by the
// Selection ordering, invokes it, and commits the result as a new
// Execution Graph node.
type Scheduler struct {
	mu             sync.Mutex
	graph          *ExecutionGraph
	retry          *InternalRetryPolicy
	maxParallelism int
	mode           SchedulerMode

	// started tracks long-running operations (Web, Memory, Schedule) that
	// have already been launched and must not be re-selected.
	started map[models.OperationID]bool
	rpcs    map[models.OperationID]*asyncRPC
}

// NewScheduler returns a Scheduler bound to graph, paused by default.
func NewScheduler(graph *ExecutionGraph) *Scheduler {
	return &Scheduler{
		graph:          graph,
		retry:          DefaultInternalRetryPolicy(),
		maxParallelism: DefaultMaxParallelism,
		mode:           ModePaused,
		started:        map[models.OperationID]bool{},
		rpcs:           map[models.OperationID]*asyncRPC{},
	}
}

// Mode returns the scheduler's current state-machine state.
func (s *Scheduler) Mode() SchedulerMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Pause transitions Running -> Paused. New selections stop; operations
// already in flight are not aborted.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeStopped {
		s.mode = ModePaused
	}
}

// Resume transitions Paused -> Running.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeStopped {
		s.mode = ModeRunning
	}
}

// Stop transitions any state -> Stopped (terminal): cancels each
// long-running operation's Async RPC, so pending and later calls on it
// fail with a Cancelled error. The execute goroutines themselves are not
// interrupted; their context is not cancelled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = ModeStopped
	for op, rpc := range s.rpcs {
		rpc.cancel(&CancelledError{OperationID: op})
	}
}

// Reset clears long-running-operation bookkeeping so a new root state can
// be replayed from scratch.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = map[models.OperationID]bool{}
	s.rpcs = map[models.OperationID]*asyncRPC{}
	s.mode = ModePaused
}

// isReady reports whether op's incoming value edges are all satisfied in
// state. Ordering edges are excluded by
// DependencyGraph.Producers, which only returns value-edge producers.
func isReady(state *ExecutionState, op models.OperationID) bool {
	for _, producer := range state.DependencyGraph().Producers(op) {
		if !state.HasEverBeenSet(producer) {
			return false
		}
		binding, _ := state.Binding(producer)
		if binding.HasError {
			return false
		}
	}
	return true
}

// readyOperations returns every ready, not-yet-bound, not-yet-started
// operation in state.
func (s *Scheduler) readyOperations(state *ExecutionState) []models.OperationID {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ready []models.OperationID
	for _, id := range state.Operations() {
		node, ok := state.Operation(id)
		if !ok {
			continue
		}
		if state.HasEverBeenSet(id) {
			continue
		}
		if node.IsLongRunning && s.started[id] {
			continue
		}
		if isReady(state, id) {
			ready = append(ready, id)
		}
	}
	return ready
}

// selectNext applies the Selection ordering: lower
// topological depth first, then lower display name, then lower operation id.
// TopoDepth is computed over every operation in state, not just ready
// ones, so a value-edge cycle is detected even when it leaves nothing
// ready (S3: two mutually-dependent operations are never ready, so
// `ready` alone would never surface the cycle). A cycle is reported as
// an error only when nothing is ready — if some other operation can
// still make progress, selection proceeds undeterred by a cycle
// elsewhere in the graph.
func selectNext(state *ExecutionState, ready []models.OperationID) (models.OperationID, bool, error) {
	depths, depErr := state.DependencyGraph().TopoDepth(state.Operations())
	if len(ready) == 0 {
		if depErr != nil {
			return models.OperationID{}, false, depErr
		}
		return models.OperationID{}, false, nil
	}
	if depErr != nil {
		depths = map[models.OperationID]int{}
	}
	sorted := append([]models.OperationID(nil), ready...)
	sort.Slice(sorted, func(i, j int) bool {
		di, dj := depths[sorted[i]], depths[sorted[j]]
		if di != dj {
			return di < dj
		}
		ni, _ := state.Operation(sorted[i])
		nj, _ := state.Operation(sorted[j])
		if ni.DisplayName != nj.DisplayName {
			return ni.DisplayName < nj.DisplayName
		}
		return sorted[i].String() < sorted[j].String()
	})
	return sorted[0], true, nil
}

// buildPayload assembles the OperationPayload for op's invocation:
// each input global from whichever value-edge producer exposes it, and
// function pointers for every function exposed by a value-edge producer.
func buildPayload(state *ExecutionState, op models.OperationID) OperationPayload {
	payload := OperationPayload{
		Globals:   map[string]value.Value{},
		Kwargs:    map[string]value.Value{},
		Functions: map[string]value.FunctionPointer{},
	}
	node, ok := state.Operation(op)
	if !ok {
		return payload
	}
	for _, g := range node.Input.Globals {
		for _, producer := range state.DependencyGraph().Producers(op) {
			out, hasOut := state.Get(producer)
			if !hasOut {
				continue
			}
			spec, hasSpec := state.Operation(producer)
			if !hasSpec {
				continue
			}
			for _, name := range spec.Output.Globals {
				if name != g.Name {
					continue
				}
				// A producer exposing several globals binds them as an
				// Object keyed by name; a producer exposing exactly the
				// one global named after itself (e.g. a Template cell)
				// binds its output directly.
				if field, ok := out.Get(name); ok {
					payload.Globals[g.Name] = field
				} else {
					payload.Globals[g.Name] = out
				}
			}
		}
	}
	for _, producer := range state.DependencyGraph().Producers(op) {
		spec, ok := state.Operation(producer)
		if !ok {
			continue
		}
		for _, fn := range spec.Output.Functions {
			payload.Functions[fn.Name] = value.FunctionPointer{OperationID: spec.ID.String(), Name: fn.Name, Arity: len(fn.Args)}
		}
	}
	return payload
}

// Step advances exactly one operation from the state at nodeID.
// Long-running operations are launched asynchronously and do not
// themselves produce a new graph node until their execute function
// returns and its output settles into a binding via Complete.
func (s *Scheduler) Step(ctx context.Context, nodeID ExecutionNodeID) (ExecutionNodeID, error) {
	state, err := s.graph.State(nodeID)
	if err != nil {
		return ExecutionNodeID{}, err
	}

	ready := s.readyOperations(state)
	opID, ok, selErr := selectNext(state, ready)
	if selErr != nil {
		return nodeID, selErr
	}
	if !ok {
		return nodeID, ErrNotReady
	}
	node, _ := state.Operation(opID)
	payload := buildPayload(state, opID)

	if node.IsLongRunning {
		s.startLongRunning(ctx, nodeID, state, node, payload)
		return nodeID, nil
	}

	out, execErr := s.invoke(ctx, state, node, payload)
	return s.merge(nodeID, state, opID, out, execErr)
}

// invoke runs node.Execute, retrying with InternalRetryPolicy's backoff
// schedule only when the failure is a *ProviderError with
// Retryable set — unlike InternalRetryPolicy.ShouldRetry's substring-match
// heuristic, which the scheduler does not use here since it has the
// concrete error type available.
func (s *Scheduler) invoke(ctx context.Context, state *ExecutionState, node *OperationNode, payload OperationPayload) (*OperationFnOutput, error) {
	policy := s.retry
	if policy == nil {
		policy = NoInternalRetryPolicy()
	}

	var out *OperationFnOutput
	var runErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		out, runErr = node.Execute(ctx, state, payload, nil, nil)
		if runErr == nil {
			return out, nil
		}
		var provErr *ProviderError
		if !errorsAsProviderError(runErr, &provErr) || !provErr.Retryable || attempt >= policy.MaxAttempts {
			return out, runErr
		}
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, runErr)
		}
		delay := policy.GetDelay(attempt)
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-time.After(delay):
		}
	}
	return out, runErr
}

func errorsAsProviderError(err error, target **ProviderError) bool {
	for err != nil {
		if pe, ok := err.(*ProviderError); ok {
			*target = pe
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// merge commits op's output into a new Execution State and appends it to
// the graph.
func (s *Scheduler) merge(parentID ExecutionNodeID, state *ExecutionState, op models.OperationID, out *OperationFnOutput, execErr error) (ExecutionNodeID, error) {
	binding := Binding{}
	var next *ExecutionState
	if out != nil && out.ExecutionState != nil {
		next = out.ExecutionState
	} else {
		next = state
	}

	if execErr != nil || (out != nil && out.HasError) {
		binding.HasError = true
		if execErr != nil {
			binding.Stderr = append(binding.Stderr, execErr.Error())
		}
	}
	if out != nil {
		binding.Output = out.Output
		binding.Stdout = out.Stdout
		if len(out.Stderr) > 0 {
			binding.Stderr = append(binding.Stderr, out.Stderr...)
		}
	}

	committed := next.Insert(op, binding)
	newID, err := s.graph.Append(parentID, op, binding, committed)
	if err != nil {
		return ExecutionNodeID{}, err
	}
	return newID, nil
}

// PlayMode selects how Play keeps advancing.
type PlayMode int

const (
	PlayUntilQuiescent PlayMode = iota
	PlayUntilPaused
)

// Play repeatedly steps from nodeID until paused or quiescent. It returns
// the final node id reached.
func (s *Scheduler) Play(ctx context.Context, nodeID ExecutionNodeID, mode PlayMode) (ExecutionNodeID, error) {
	s.Resume()
	cur := nodeID
	for {
		if s.Mode() != ModeRunning {
			return cur, nil
		}
		next, err := s.Step(ctx, cur)
		if err == ErrNotReady {
			s.publishQuiescent(cur)
			s.Pause()
			return cur, nil
		}
		if err != nil {
			// DependencyCycle/StateNotFound are scheduler-level failures:
			// fatal to this step, surfaced as a diagnostic rather than an
			// operation's own error binding.
			s.graph.publish(ExecutionEvent{Type: EventOperationFailed, NodeID: cur, Error: err})
			s.Pause()
			return cur, err
		}
		cur = next
		select {
		case <-ctx.Done():
			return cur, ctx.Err()
		default:
		}
	}
}

func (s *Scheduler) publishQuiescent(nodeID ExecutionNodeID) {
	s.graph.publish(ExecutionEvent{Type: EventQuiescent, NodeID: nodeID})
}

// InvokeFunction drives a function-invocation path to completion in a
// fresh descendant state: the
// target function is treated as a fresh operation parameterized by args,
// running in a child of the state containing its definition.
func (s *Scheduler) InvokeFunction(ctx context.Context, nodeID ExecutionNodeID, fn value.FunctionPointer, args []value.Value, kwargs map[string]value.Value) (ExecutionNodeID, value.Value, error) {
	state, err := s.graph.State(nodeID)
	if err != nil {
		return ExecutionNodeID{}, value.Null(), err
	}

	opID, parseErr := models.ParseOperationID(fn.OperationID)
	if parseErr != nil {
		return ExecutionNodeID{}, value.Null(), &OperationNotFoundError{}
	}
	target, ok := state.Operation(opID)
	if !ok {
		return ExecutionNodeID{}, value.Null(), &OperationNotFoundError{OperationID: opID}
	}

	payload := OperationPayload{Args: args, Kwargs: kwargs, Globals: map[string]value.Value{}, Functions: map[string]value.FunctionPointer{}, IsFunctionInvocation: true}
	out, execErr := s.invoke(ctx, state, target, payload)
	newID, err := s.merge(nodeID, state, target.ID, out, execErr)
	if err != nil {
		return ExecutionNodeID{}, value.Null(), err
	}
	if out == nil {
		return newID, value.Null(), execErr
	}
	return newID, out.Output, execErr
}
