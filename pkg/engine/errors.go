package engine

import (
	"errors"
	"fmt"

	"github.com/smilemakc/mbflow/pkg/models"
)

var (
	// ErrDependencyCycle is returned when a cycle among value edges is
	// detected while computing topological depth (Step, Play); committing
	// the mutation that created the cycle does not fail.
	ErrDependencyCycle = errors.New("dependency graph cycle")

	// ErrOperationNotFound is returned when an operation id has no
	// corresponding Operation Node in the addressed Execution State.
	ErrOperationNotFound = errors.New("operation not found")

	// ErrStateNotFound is returned when an ExecutionNodeID has no
	// corresponding node in the Execution Graph.
	ErrStateNotFound = errors.New("execution state not found")

	// ErrCancelled is returned by awaitables cut short by instance
	// shutdown or a per-step timeout.
	ErrCancelled = errors.New("cancelled")

	// ErrRPCDisconnected is returned when a long-running operation's
	// Async RPC channel closes before a reply is delivered.
	ErrRPCDisconnected = errors.New("async rpc disconnected")

	// ErrTimeout is returned when an operation's execution exceeds its
	// deadline.
	ErrTimeout = errors.New("operation timeout")

	// ErrNotReady is returned by Step when no operation is currently
	// ready to run.
	ErrNotReady = errors.New("no ready operation")
)

// DependencyCycleError names the operations implicated in a detected cycle.
type DependencyCycleError struct {
	Cycle []models.OperationID
}

func (e *DependencyCycleError) Error() string {
	return fmt.Sprintf("dependency graph cycle through %d operations", len(e.Cycle))
}

func (e *DependencyCycleError) Unwrap() error { return ErrDependencyCycle }

// OperationNotFoundError names the missing operation id.
type OperationNotFoundError struct {
	OperationID models.OperationID
}

func (e *OperationNotFoundError) Error() string {
	return fmt.Sprintf("operation %s not found", e.OperationID)
}

func (e *OperationNotFoundError) Unwrap() error { return ErrOperationNotFound }

// StateNotFoundError names the missing execution node id.
type StateNotFoundError struct {
	NodeID ExecutionNodeID
}

func (e *StateNotFoundError) Error() string {
	return fmt.Sprintf("execution state %s not found", e.NodeID)
}

func (e *StateNotFoundError) Unwrap() error { return ErrStateNotFound }

// ScriptHostError wraps a failure surfaced by an embedded script host.
type ScriptHostError struct {
	Host    string
	Message string
}

func (e *ScriptHostError) Error() string {
	return fmt.Sprintf("%s script host error: %s", e.Host, e.Message)
}

// ProviderError wraps a failure from an external provider (LLM, embedding,
// vector store). Retryable marks whether InternalRetryPolicy should retry.
type ProviderError struct {
	Provider  string
	Message   string
	Retryable bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider error: %s", e.Provider, e.Message)
}

// TimeoutError names the operation that exceeded its deadline.
type TimeoutError struct {
	OperationID models.OperationID
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation %s timed out", e.OperationID)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// CancelledError names the operation cut short by cancellation.
type CancelledError struct {
	OperationID models.OperationID
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("operation %s cancelled", e.OperationID)
}

func (e *CancelledError) Unwrap() error { return ErrCancelled }

// RPCDisconnectedError names the long-running operation whose channel closed.
type RPCDisconnectedError struct {
	OperationID models.OperationID
}

func (e *RPCDisconnectedError) Error() string {
	return fmt.Sprintf("async rpc to operation %s disconnected", e.OperationID)
}

func (e *RPCDisconnectedError) Unwrap() error { return ErrRPCDisconnected }
