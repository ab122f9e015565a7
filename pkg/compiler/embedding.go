package compiler

import (
	"context"
	"fmt"

	"github.com/smilemakc/mbflow/pkg/engine"
	"github.com/smilemakc/mbflow/pkg/models"
	"github.com/smilemakc/mbflow/pkg/value"
)

// compileEmbedding implements Embedding rule: inputs are the
// template's referenced partials, output is a function under the cell's
// name that renders the template and sends it to the embedding provider.
func compileEmbedding(cell *models.Cell, opID models.OperationID, deps Dependencies) (*engine.OperationNode, error) {
	cfg := cell.Embedding
	partials := referencedPartials(cfg.Template)

	input := engine.InputSignature{}
	for _, name := range partials {
		input.Globals = append(input.Globals, engine.ValueSpec{Name: name, Optional: true})
	}
	output := engine.OutputSignature{
		Functions: []engine.FunctionExport{{Name: cell.Name, Args: argSpecs(partials)}},
	}

	execute := func(ctx context.Context, state *engine.ExecutionState, payload engine.OperationPayload, env map[string]string, rpc engine.AsyncRPC) (*engine.OperationFnOutput, error) {
		if !payload.IsFunctionInvocation {
			return &engine.OperationFnOutput{Output: value.Null()}, nil
		}
		globals := map[string]value.Value{}
		for k, v := range payload.Globals {
			globals[k] = v
		}
		for i, name := range partials {
			if i < len(payload.Args) {
				globals[name] = payload.Args[i]
			} else if v, ok := payload.Kwargs[name]; ok {
				globals[name] = v
			}
		}
		text, err := renderPartials(cfg.Template, globals)
		if err != nil {
			return &engine.OperationFnOutput{HasError: true}, err
		}
		if deps.Embeddings == nil {
			return &engine.OperationFnOutput{HasError: true}, fmt.Errorf("%s: no embedding client configured", cfg.Provider)
		}
		vec, err := deps.Embeddings.Embed(ctx, cfg.Provider, cfg.Model, text)
		if err != nil {
			return &engine.OperationFnOutput{HasError: true}, err
		}
		items := make([]value.Value, len(vec))
		for i, f := range vec {
			items[i] = value.Float(f)
		}
		return &engine.OperationFnOutput{Output: value.Array(items)}, nil
	}

	return &engine.OperationNode{
		ID:          opID,
		DisplayName: cell.Name,
		Input:       input,
		Output:      output,
		Execute:     execute,
	}, nil
}
