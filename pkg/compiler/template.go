package compiler

import (
	"context"

	"github.com/smilemakc/mbflow/pkg/engine"
	"github.com/smilemakc/mbflow/pkg/models"
	"github.com/smilemakc/mbflow/pkg/value"
)

// compileTemplate implements Template rule: inputs are the
// referenced partial names, output is a single string bound under the
// cell's own name, rendered against a JSON view of those inputs.
func compileTemplate(cell *models.Cell, opID models.OperationID, _ Dependencies) (*engine.OperationNode, error) {
	cfg := cell.Template
	partials := referencedPartials(cfg.Body)

	input := engine.InputSignature{}
	for _, name := range partials {
		input.Globals = append(input.Globals, engine.ValueSpec{Name: name})
	}
	output := engine.OutputSignature{Globals: []string{cell.Name}}

	execute := func(ctx context.Context, state *engine.ExecutionState, payload engine.OperationPayload, env map[string]string, rpc engine.AsyncRPC) (*engine.OperationFnOutput, error) {
		rendered, err := renderPartials(cfg.Body, payload.Globals)
		if err != nil {
			return &engine.OperationFnOutput{HasError: true}, err
		}
		return &engine.OperationFnOutput{Output: value.String(rendered)}, nil
	}

	return &engine.OperationNode{
		ID:          opID,
		DisplayName: cell.Name,
		Input:       input,
		Output:      output,
		Execute:     execute,
	}, nil
}
