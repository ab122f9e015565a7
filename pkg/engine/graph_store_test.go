package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smilemakc/mbflow/pkg/models"
	"github.com/smilemakc/mbflow/pkg/value"
)

// fakeNodeStore records SaveNode calls in memory, standing in for a real
// BunStore so Append's durable-persistence wiring can be exercised
// without a Postgres instance.
type fakeNodeStore struct {
	mu    sync.Mutex
	saved []ExecutionNodeID
}

func (s *fakeNodeStore) SaveNode(ctx context.Context, id, parent ExecutionNodeID, op models.OperationID, out Binding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, id)
	return nil
}

func (s *fakeNodeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func TestExecutionGraph_AppendPersistsToAttachedStore(t *testing.T) {
	g := NewExecutionGraph()
	store := &fakeNodeStore{}
	g.AttachStore(store)

	root, err := g.State(g.Root())
	if err != nil {
		t.Fatalf("State(root): %v", err)
	}
	opID := models.NewOperationID()
	next := root.Insert(opID, Binding{Output: value.String("ok")})

	if _, err := g.Append(g.Root(), opID, Binding{Output: value.String("ok")}, next); err != nil {
		t.Fatalf("Append: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && store.count() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if store.count() != 1 {
		t.Fatalf("store.count() = %d, want 1", store.count())
	}
}

func TestExecutionGraph_AppendWithoutStoreNeverBlocks(t *testing.T) {
	g := NewExecutionGraph()

	root, err := g.State(g.Root())
	if err != nil {
		t.Fatalf("State(root): %v", err)
	}
	opID := models.NewOperationID()
	next := root.Insert(opID, Binding{Output: value.Null()})

	id, err := g.Append(g.Root(), opID, Binding{Output: value.Null()}, next)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if id != next.ID() {
		t.Errorf("Append returned %v, want %v", id, next.ID())
	}
}

func TestNewExecutionGraphWithDSN_MemorySentinelSkipsStore(t *testing.T) {
	for _, dsn := range []string{"", ":memory:"} {
		g, err := NewExecutionGraphWithDSN(context.Background(), dsn)
		if err != nil {
			t.Fatalf("NewExecutionGraphWithDSN(%q): %v", dsn, err)
		}
		if g.store != nil {
			t.Errorf("NewExecutionGraphWithDSN(%q) attached a store, want none", dsn)
		}
	}
}
