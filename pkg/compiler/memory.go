package compiler

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/smilemakc/mbflow/pkg/engine"
	"github.com/smilemakc/mbflow/pkg/models"
	"github.com/smilemakc/mbflow/pkg/value"
)

// memoryRecord is one stored (text, vector) pair in an in-process
// vector store.
type memoryRecord struct {
	id     string
	text   string
	vector []float64
}

// memoryStore is a small, mutex-guarded in-process vector store. No
// vector-store or similarity-search library is available, so this is
// built on the standard library, grounded on the teacher's mutex-guarded
// in-process cache shape.
type memoryStore struct {
	mu      sync.Mutex
	records []memoryRecord
}

func (s *memoryStore) add(id, text string, vec []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, memoryRecord{id: id, text: text, vector: vec})
}

func (s *memoryStore) query(vec []float64, k int) []memoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	type scoredRecord struct {
		record memoryRecord
		score  float64
	}
	scored := make([]scoredRecord, len(s.records))
	for i, r := range s.records {
		scored[i] = scoredRecord{record: r, score: cosineSimilarity(vec, r.vector)}
	}
	sort.Slice(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	if k > 0 && k < len(scored) {
		scored = scored[:k]
	}
	out := make([]memoryRecord, len(scored))
	for i, s := range scored {
		out[i] = s.record
	}
	return out
}

func cosineSimilarity(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// compileMemory implements Memory rule: no inputs, output is
// the function set {run}; execution opens an in-process vector store
// and services calls over the Async RPC channel for the lifetime of the
// instance.
func compileMemory(cell *models.Cell, opID models.OperationID, deps Dependencies) (*engine.OperationNode, error) {
	cfg := cell.Memory
	store := &memoryStore{}

	output := engine.OutputSignature{
		Functions: []engine.FunctionExport{{
			Name: "run",
			Args: []engine.ValueSpec{{Name: "op"}, {Name: "id", Optional: true}, {Name: "text", Optional: true}, {Name: "k", Optional: true}},
		}},
	}

	run := func(ctx context.Context, payload engine.OperationPayload) (*engine.OperationFnOutput, error) {
		kv := map[string]value.Value{}
		for k, v := range payload.Kwargs {
			kv[k] = v
		}
		for i, name := range []string{"op", "id", "text", "k"} {
			if i < len(payload.Args) {
				kv[name] = payload.Args[i]
			}
		}
		op := "query"
		if v, ok := kv["op"]; ok && v.Kind() == value.KindString {
			op = v.AsString()
		}
		text := ""
		if v, ok := kv["text"]; ok && v.Kind() == value.KindString {
			text = v.AsString()
		}
		id := ""
		if v, ok := kv["id"]; ok && v.Kind() == value.KindString {
			id = v.AsString()
		}
		if deps.Embeddings == nil {
			return &engine.OperationFnOutput{HasError: true}, &engine.ProviderError{Provider: cfg.Embedding.Provider, Message: "no embedding client configured"}
		}
		vec, err := deps.Embeddings.Embed(ctx, cfg.Embedding.Provider, cfg.Embedding.Model, text)
		if err != nil {
			return &engine.OperationFnOutput{HasError: true}, err
		}

		switch op {
		case "add":
			store.add(id, text, vec)
			return &engine.OperationFnOutput{Output: value.Null()}, nil
		default:
			k := 5
			if v, ok := kv["k"]; ok && v.Kind() == value.KindInt {
				k = int(v.AsInt())
			}
			matches := store.query(vec, k)
			items := make([]value.Value, len(matches))
			for i, m := range matches {
				items[i] = value.ObjectFromMap(map[string]value.Value{
					"id":   value.String(m.id),
					"text": value.String(m.text),
				})
			}
			return &engine.OperationFnOutput{Output: value.Array(items)}, nil
		}
	}

	execute := func(ctx context.Context, state *engine.ExecutionState, payload engine.OperationPayload, env map[string]string, rpc engine.AsyncRPC) (*engine.OperationFnOutput, error) {
		if payload.IsFunctionInvocation {
			return run(ctx, payload)
		}
		rpc.Publish([]string{"run"})
		for {
			select {
			case <-ctx.Done():
				return &engine.OperationFnOutput{Output: value.Null()}, ctx.Err()
			case req := <-rpc.Requests():
				kwargs := map[string]value.Value{}
				if req.Payload.Kind() == value.KindObject {
					for _, kv := range req.Payload.AsObject() {
						kwargs[kv.Key] = kv.Value
					}
				}
				out, err := run(ctx, engine.OperationPayload{Globals: map[string]value.Value{}, Kwargs: kwargs, IsFunctionInvocation: true})
				reply := value.Null()
				if out != nil {
					reply = out.Output
				}
				req.Reply <- engine.RPCReply{Output: reply, Err: err}
			}
		}
	}

	return &engine.OperationNode{
		ID:            opID,
		DisplayName:   cell.Name,
		Output:        output,
		Execute:       execute,
		IsAsync:       true,
		IsLongRunning: true,
	}, nil
}
