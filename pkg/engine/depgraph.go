package engine

import (
	"fmt"

	"github.com/smilemakc/mbflow/pkg/models"
)

// DependencyKind tags the variant of a DependencyReference edge.
type DependencyKind int

const (
	DependencyPositional DependencyKind = iota
	DependencyKeyword
	DependencyGlobal
	DependencyFunctionInvocation
	DependencyOrdering
)

// DependencyRef labels one edge `producer -> consumer` in the dependency
// graph.
type DependencyRef struct {
	Kind  DependencyKind
	Index int    // meaningful for DependencyPositional
	Name  string // meaningful for Keyword/Global/FunctionInvocation
}

func PositionalRef(index int) DependencyRef { return DependencyRef{Kind: DependencyPositional, Index: index} }
func KeywordRef(name string) DependencyRef  { return DependencyRef{Kind: DependencyKeyword, Name: name} }
func GlobalRef(name string) DependencyRef   { return DependencyRef{Kind: DependencyGlobal, Name: name} }
func FunctionRef(name string) DependencyRef {
	return DependencyRef{Kind: DependencyFunctionInvocation, Name: name}
}
func OrderingRef() DependencyRef { return DependencyRef{Kind: DependencyOrdering} }

// isValueEdge reports whether a ref gates readiness (Ordering edges do not).
func (r DependencyRef) isValueEdge() bool { return r.Kind != DependencyOrdering }

// edgeGroup identifies "the same producer read the same way" for the merge
// policy in AddEdge: two Global/FunctionInvocation refs to the same
// producer collapse to one edge; see Open Question 1 decision in DESIGN.md.
func (r DependencyRef) edgeGroup(producer models.OperationID) string {
	switch r.Kind {
	case DependencyGlobal, DependencyFunctionInvocation:
		return "handle:" + producer.String()
	case DependencyPositional:
		return fmt.Sprintf("positional:%d", r.Index)
	case DependencyKeyword:
		return "keyword:" + r.Name
	default:
		return "ordering"
	}
}

// producerEdge is one incoming arrow on a consumer, naming which producer
// it comes from and how it is read.
type producerEdge struct {
	producer models.OperationID
	label    DependencyRef
}

// DependencyGraph is a directed graph over operation ids, used to compute
// readiness and selection order.
type DependencyGraph struct {
	// backward[consumer][group] -> the single edge currently bound for
	// that group, after the merge policy in AddEdge has been applied.
	backward map[models.OperationID]map[string]producerEdge
}

func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{backward: map[models.OperationID]map[string]producerEdge{}}
}

// Clone returns a copy for use as the basis of a new ExecutionState (the
// graph is small relative to bindings, so it is copied wholesale rather
// than sharded like PersistentMap).
func (g *DependencyGraph) Clone() *DependencyGraph {
	next := NewDependencyGraph()
	for consumer, groups := range g.backward {
		cp := make(map[string]producerEdge, len(groups))
		for k, e := range groups {
			cp[k] = e
		}
		next.backward[consumer] = cp
	}
	return next
}

// AddEdge records that consumer reads from producer via ref. When a
// consumer already reads some producer via an edge in the same group (see
// edgeGroup), the function-handle label wins over a Global label for that
// group, per the Open Question 1 decision: a consumer that both reads a
// producer's plain value and invokes one of its functions is recorded as
// depending on the function handle.
func (g *DependencyGraph) AddEdge(producer, consumer models.OperationID, ref DependencyRef) {
	group := ref.edgeGroup(producer)
	if g.backward[consumer] == nil {
		g.backward[consumer] = map[string]producerEdge{}
	}
	if existing, ok := g.backward[consumer][group]; ok {
		if ref.Kind == DependencyFunctionInvocation && existing.label.Kind == DependencyGlobal {
			g.backward[consumer][group] = producerEdge{producer: producer, label: ref}
		}
		// A Global arriving after an existing FunctionInvocation edge for
		// the same group is a no-op: the function handle already wins.
		return
	}
	g.backward[consumer][group] = producerEdge{producer: producer, label: ref}
}

// RemoveNode removes every edge touching op, used by
// apply_dependency_mutations' Delete variant.
func (g *DependencyGraph) RemoveNode(op models.OperationID) {
	delete(g.backward, op)
	for consumer, groups := range g.backward {
		for group, e := range groups {
			if e.producer == op {
				delete(groups, group)
			}
		}
		g.backward[consumer] = groups
	}
}

// SetDependencies replaces the full set of edges for consumer, implementing
// apply_dependency_mutations' Create variant.
func (g *DependencyGraph) SetDependencies(consumer models.OperationID, refs map[models.OperationID]DependencyRef) {
	groups := map[string]producerEdge{}
	for producer, ref := range refs {
		groups[ref.edgeGroup(producer)] = producerEdge{producer: producer, label: ref}
	}
	g.backward[consumer] = groups
}

// Producers returns every producer consumer reads from via a value edge.
func (g *DependencyGraph) Producers(consumer models.OperationID) []models.OperationID {
	var out []models.OperationID
	for _, e := range g.backward[consumer] {
		if e.label.isValueEdge() {
			out = append(out, e.producer)
		}
	}
	return out
}

// Consumers returns every operation that reads from producer.
func (g *DependencyGraph) Consumers(producer models.OperationID) []models.OperationID {
	seen := map[models.OperationID]bool{}
	var out []models.OperationID
	for consumer, groups := range g.backward {
		for _, e := range groups {
			if e.producer == producer && !seen[consumer] {
				seen[consumer] = true
				out = append(out, consumer)
			}
		}
	}
	return out
}

// TopoDepth computes, for every id in allOps, its longest-path depth from a
// node with no incoming value edges (used for selection ordering). Returns
// a *DependencyCycleError if the value-edge subgraph is cyclic.
func (g *DependencyGraph) TopoDepth(allOps []models.OperationID) (map[models.OperationID]int, error) {
	forward := map[models.OperationID][]models.OperationID{}
	indegree := map[models.OperationID]int{}
	for _, id := range allOps {
		indegree[id] = 0
	}
	for consumer, groups := range g.backward {
		for _, e := range groups {
			if !e.label.isValueEdge() {
				continue
			}
			forward[e.producer] = append(forward[e.producer], consumer)
			indegree[consumer]++
		}
	}

	depth := map[models.OperationID]int{}
	queue := make([]models.OperationID, 0, len(allOps))
	for _, id := range allOps {
		if indegree[id] == 0 {
			depth[id] = 0
			queue = append(queue, id)
		}
	}

	remaining := make(map[models.OperationID]int, len(indegree))
	for k, v := range indegree {
		remaining[k] = v
	}

	visited := 0
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		visited++
		for _, v := range forward[u] {
			if depth[v] < depth[u]+1 {
				depth[v] = depth[u] + 1
			}
			remaining[v]--
			if remaining[v] == 0 {
				queue = append(queue, v)
			}
		}
	}

	if visited < len(allOps) {
		var cycle []models.OperationID
		for _, id := range allOps {
			if remaining[id] > 0 {
				cycle = append(cycle, id)
			}
		}
		return nil, &DependencyCycleError{Cycle: cycle}
	}
	return depth, nil
}
