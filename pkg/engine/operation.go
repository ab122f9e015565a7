package engine

import (
	"context"

	"github.com/smilemakc/mbflow/pkg/models"
	"github.com/smilemakc/mbflow/pkg/value"
)

// ValueSpec describes one named slot in an Input or Output Signature: an
// expected type tag and an optional default.
type ValueSpec struct {
	Name     string
	Kind     value.Kind
	Default  *value.Value
	Optional bool
}

// FunctionExport describes one function an Operation Node exposes on its
// Output Signature: its own input signature plus declared event/trigger
// names.
type FunctionExport struct {
	Name          string
	Args          []ValueSpec
	EmittedEvents []string
	TriggerOn     []string
}

// InputSignature is the three disjoint name sets an Operation Node reads
// from.
type InputSignature struct {
	Globals  []ValueSpec
	Args     []ValueSpec
	Kwargs   []ValueSpec
}

// OutputSignature is what an Operation Node exposes to the enclosing state
//.
type OutputSignature struct {
	Globals   []string
	Functions []FunctionExport
}

// OperationPayload is assembled by the scheduler at invocation time
//.
type OperationPayload struct {
	Globals   map[string]value.Value
	Args      []value.Value
	Kwargs    map[string]value.Value
	Functions map[string]value.FunctionPointer

	// IsFunctionInvocation is set by InvokeFunction and unset by a plain
	// Step, distinguishing the two even when a zero-arity function is
	// invoked with no Args/Kwargs.
	IsFunctionInvocation bool
}

// OperationFnOutput is what execute() produces.
type OperationFnOutput struct {
	Output         value.Value
	Err            error
	Stdout         []string
	Stderr         []string
	HasError       bool
	ExecutionState *ExecutionState
}

// AsyncRPC is the channel long-running operations (Web, Memory, Schedule)
// use to receive function-invocation requests and publish their callable
// interface.
type AsyncRPC interface {
	// Publish advertises the function names this operation services.
	Publish(functions []string)
	// Requests yields incoming (method, payload) calls; the caller must
	// send exactly one reply (success or error) on Reply for each request.
	Requests() <-chan RPCRequest
	// Invoke lets a long-running operation call a function exposed
	// elsewhere in the graph (e.g. a Web cell forwarding an inbound HTTP
	// request onto the route's target function; Web).
	Invoke(ctx context.Context, fn value.FunctionPointer, args []value.Value, kwargs map[string]value.Value) (value.Value, error)
}

// RPCRequest is one inbound call on the Async RPC channel.
type RPCRequest struct {
	Method  string
	Payload value.Value
	Reply   chan<- RPCReply
}

// RPCReply is the at-most-once response to an RPCRequest.
type RPCReply struct {
	Output value.Value
	Err    error
}

// ExecuteFn is the run-time behavior bound to an Operation Node at compile
// time.
type ExecuteFn func(ctx context.Context, state *ExecutionState, payload OperationPayload, env map[string]string, rpc AsyncRPC) (*OperationFnOutput, error)

// OperationNode is a compiled, immutable unit of computation:
// tuple of (id, display name, input signature, output signature, execution
// function, flags).
type OperationNode struct {
	ID              models.OperationID
	DisplayName     string
	Input           InputSignature
	Output          OutputSignature
	Execute         ExecuteFn
	IsAsync         bool
	IsLongRunning   bool
}
