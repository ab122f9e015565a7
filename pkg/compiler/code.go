package compiler

import (
	"context"
	"fmt"

	"github.com/smilemakc/mbflow/pkg/analyzer"
	"github.com/smilemakc/mbflow/pkg/engine"
	"github.com/smilemakc/mbflow/pkg/models"
	"github.com/smilemakc/mbflow/pkg/scripthost"
	"github.com/smilemakc/mbflow/pkg/value"
)

// compileCode implements Code rule: run the Static Analyzer
// over the source, map its Report onto input/output signatures, and bind
// an execution function that calls the matching Script Host Adapter.
func compileCode(cell *models.Cell, opID models.OperationID, deps Dependencies) (*engine.OperationNode, error) {
	cfg := cell.Code
	a, err := analyzer.For(cfg.Language)
	if err != nil {
		return nil, err
	}
	report, err := a.Analyze(cfg.Source)
	if err != nil {
		return nil, err
	}

	input := engine.InputSignature{}
	for _, name := range report.Depended {
		input.Globals = append(input.Globals, engine.ValueSpec{Name: name, Optional: true})
	}

	output := engine.OutputSignature{Globals: append([]string(nil), report.Exposed...)}
	for name, sig := range report.Triggerable {
		output.Functions = append(output.Functions, engine.FunctionExport{
			Name:          name,
			Args:          argSpecs(sig.ArgNames),
			EmittedEvents: sig.EmittedEvents,
			TriggerOn:     sig.TriggerOn,
		})
	}

	exposed := append([]string(nil), report.Exposed...)

	execute := func(ctx context.Context, state *engine.ExecutionState, payload engine.OperationPayload, env map[string]string, rpc engine.AsyncRPC) (*engine.OperationFnOutput, error) {
		host, ok := deps.ScriptHosts.For(cfg.Language)
		if !ok {
			return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedLanguage, cfg.Language)
		}
		hostCfg := scripthost.Config{ExposedGlobals: exposed}
		if cfg.FunctionInvocation != "" {
			hostCfg.FunctionName = cfg.FunctionInvocation
			hostCfg.Args = payload.Args
			hostCfg.Kwargs = payload.Kwargs
		}
		result, runErr := host.Run(ctx, cfg.Source, value.ObjectFromMap(payload.Globals), hostCfg)
		out := &engine.OperationFnOutput{Output: result.Output, Stdout: result.Stdout, Stderr: result.Stderr}
		if runErr != nil {
			out.HasError = true
		}
		return out, runErr
	}

	return &engine.OperationNode{
		ID:          opID,
		DisplayName: cell.Name,
		Input:       input,
		Output:      output,
		Execute:     execute,
	}, nil
}

func argSpecs(names []string) []engine.ValueSpec {
	specs := make([]engine.ValueSpec, len(names))
	for i, n := range names {
		specs[i] = engine.ValueSpec{Name: n}
	}
	return specs
}
