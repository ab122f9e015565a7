package compiler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smilemakc/mbflow/pkg/engine"
	"github.com/smilemakc/mbflow/pkg/models"
	"github.com/smilemakc/mbflow/pkg/value"
)

// fakeTriggerStore is an in-memory TriggerStore used in place of a real
// Redis instance, matching what the compiled Schedule operation sees
// through the TriggerStore interface.
type fakeTriggerStore struct {
	mu    sync.Mutex
	fires map[string]time.Time
}

func newFakeTriggerStore() *fakeTriggerStore {
	return &fakeTriggerStore{fires: make(map[string]time.Time)}
}

func (s *fakeTriggerStore) RecordFire(ctx context.Context, triggerKey string, firedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fires[triggerKey] = firedAt
	return nil
}

func (s *fakeTriggerStore) LastFire(ctx context.Context, triggerKey string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.fires[triggerKey]
	return t, ok, nil
}

func (s *fakeTriggerStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fires)
}

type fakeAsyncRPC struct{}

func (fakeAsyncRPC) Publish(functions []string)             {}
func (fakeAsyncRPC) Requests() <-chan engine.RPCRequest      { return nil }
func (fakeAsyncRPC) Invoke(ctx context.Context, fn value.FunctionPointer, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	return value.Null(), nil
}

func TestCompileSchedule_RecordsFireInTriggerStore(t *testing.T) {
	store := newFakeTriggerStore()
	cell := &models.Cell{
		Name: "heartbeat",
		Kind: models.CellKindSchedule,
		Schedule: &models.ScheduleCellConfig{
			Entries: []models.ScheduleEntry{
				{Expr: "* * * * * *", TargetFunctionCell: "sink", TargetFunctionName: "tick"},
			},
		},
	}
	opID := models.NewOperationID()

	node, err := compileSchedule(cell, opID, Dependencies{TriggerStore: store})
	if err != nil {
		t.Fatalf("compileSchedule: %v", err)
	}
	if !node.IsAsync || !node.IsLongRunning {
		t.Fatal("Schedule operation must be async and long-running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	_, err = node.Execute(ctx, nil, engine.OperationPayload{}, nil, fakeAsyncRPC{})
	if err != nil && err != context.DeadlineExceeded {
		t.Fatalf("Execute: %v", err)
	}

	if store.count() == 0 {
		t.Fatal("expected at least one recorded fire in the trigger store")
	}
}

func TestCompileSchedule_RunsWithoutTriggerStore(t *testing.T) {
	cell := &models.Cell{
		Name: "heartbeat",
		Kind: models.CellKindSchedule,
		Schedule: &models.ScheduleCellConfig{
			Entries: []models.ScheduleEntry{
				{Expr: "* * * * * *", TargetFunctionCell: "sink", TargetFunctionName: "tick"},
			},
		},
	}
	opID := models.NewOperationID()

	node, err := compileSchedule(cell, opID, Dependencies{})
	if err != nil {
		t.Fatalf("compileSchedule: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if _, err := node.Execute(ctx, nil, engine.OperationPayload{}, nil, fakeAsyncRPC{}); err != nil && err != context.DeadlineExceeded {
		t.Fatalf("Execute: %v", err)
	}
}
