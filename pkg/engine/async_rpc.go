package engine

import (
	"context"
	"sync"

	"github.com/smilemakc/mbflow/pkg/models"
	"github.com/smilemakc/mbflow/pkg/value"
)

// asyncRPC is the concrete AsyncRPC implementation handed to long-running
// operations (Web, Memory, Schedule; Long-running operations).
// Requests are (method_name, payload, reply_sender); reply delivery is
// at-most-once per request.
type asyncRPC struct {
	mu        sync.Mutex
	functions []string
	requests  chan RPCRequest
	done      chan struct{}
	cancelled error

	scheduler *Scheduler
	head      ExecutionNodeID
}

func newAsyncRPC() *asyncRPC {
	return &asyncRPC{
		requests: make(chan RPCRequest, 32),
		done:     make(chan struct{}),
	}
}

// Invoke lets the long-running operation holding this RPC call another
// operation's exposed function, walking its own head forward one node
// per call so a sequence of invocations from one Web/Schedule task stays
// causally ordered (Web: "forwards inbound requests as
// function invocations on the referenced operations").
func (r *asyncRPC) Invoke(ctx context.Context, fn value.FunctionPointer, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	r.mu.Lock()
	scheduler, head := r.scheduler, r.head
	r.mu.Unlock()
	if scheduler == nil {
		return value.Null(), ErrRPCDisconnected
	}
	newHead, out, err := scheduler.InvokeFunction(ctx, head, fn, args, kwargs)
	if err == nil {
		r.mu.Lock()
		r.head = newHead
		r.mu.Unlock()
	}
	return out, err
}

func (r *asyncRPC) Publish(functions []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.functions = functions
}

func (r *asyncRPC) Requests() <-chan RPCRequest { return r.requests }

// Call sends a synchronous request and blocks for its reply, honoring
// ctx cancellation and the RPC's own cancellation (stop).
func (r *asyncRPC) Call(ctx context.Context, method string, payload value.Value) (value.Value, error) {
	reply := make(chan RPCReply, 1)
	select {
	case r.requests <- RPCRequest{Method: method, Payload: payload, Reply: reply}:
	case <-r.done:
		return value.Null(), r.cancelErr()
	case <-ctx.Done():
		return value.Null(), ctx.Err()
	}

	select {
	case out := <-reply:
		return out.Output, out.Err
	case <-r.done:
		return value.Null(), r.cancelErr()
	case <-ctx.Done():
		return value.Null(), ctx.Err()
	}
}

func (r *asyncRPC) cancel(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled == nil {
		r.cancelled = err
		close(r.done)
	}
}

func (r *asyncRPC) cancelErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled != nil {
		return r.cancelled
	}
	return ErrRPCDisconnected
}

// startLongRunning launches node's execute function in its own goroutine
// and marks it started; the scheduler does not wait for it, so other ready
// operations remain selectable. Its eventual output is merged via Complete.
func (s *Scheduler) startLongRunning(ctx context.Context, parentID ExecutionNodeID, state *ExecutionState, node *OperationNode, payload OperationPayload) {
	rpc := newAsyncRPC()
	rpc.scheduler = s
	rpc.head = parentID

	s.mu.Lock()
	s.started[node.ID] = true
	s.rpcs[node.ID] = rpc
	s.mu.Unlock()

	s.graph.publish(ExecutionEvent{Type: EventOperationStarted, NodeID: parentID, OperationID: node.ID})

	go func() {
		out, err := node.Execute(ctx, state, payload, nil, rpc)
		s.Complete(ctx, parentID, node.ID, out, err)
	}()
}

// Complete is how a long-running operation's eventual output rejoins the
// Execution Graph, implementing the AsyncRPC-side half of Merging for
// operations that do not complete within a single Step call.
func (s *Scheduler) Complete(ctx context.Context, parentID ExecutionNodeID, op models.OperationID, out *OperationFnOutput, err error) {
	if _, mergeErr := s.merge(parentID, mustState(s.graph, parentID), op, out, err); mergeErr != nil {
		s.graph.publish(ExecutionEvent{Type: EventOperationFailed, NodeID: parentID, OperationID: op, Error: mergeErr})
	}
}

func mustState(g *ExecutionGraph, id ExecutionNodeID) *ExecutionState {
	state, err := g.State(id)
	if err != nil {
		return NewRootState()
	}
	return state
}
