package compiler

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/smilemakc/mbflow/pkg/engine"
	"github.com/smilemakc/mbflow/pkg/models"
	"github.com/smilemakc/mbflow/pkg/value"
)

// rolePattern splits a Prompt/CodeGen template into role blocks, e.g.
//
//	### system
//	You are terse.
//	### user
//	{{question}}
var rolePattern = regexp.MustCompile(`(?m)^###\s*(system|user|assistant)\s*$`)

// codeGenSystemPrompt is CodeGen's fixed system role ("wraps
// the template with a fixed system role instructing generation of only
// source code").
const codeGenSystemPrompt = "Respond with source code only. Do not include explanations, commentary, or markdown fences."

// splitRoles parses a rendered template into role/content chat messages.
// A template with no role markers is a single user message.
func splitRoles(rendered string) []ChatMessage {
	locs := rolePattern.FindAllStringSubmatchIndex(rendered, -1)
	if len(locs) == 0 {
		if strings.TrimSpace(rendered) == "" {
			return nil
		}
		return []ChatMessage{{Role: "user", Content: rendered}}
	}
	var messages []ChatMessage
	for i, loc := range locs {
		role := rendered[loc[2]:loc[3]]
		contentStart := loc[1]
		contentEnd := len(rendered)
		if i+1 < len(locs) {
			contentEnd = locs[i+1][0]
		}
		content := strings.TrimSpace(rendered[contentStart:contentEnd])
		messages = append(messages, ChatMessage{Role: role, Content: content})
	}
	return messages
}

// compilePrompt implements Prompt/Chat and CodeGen rules.
// isCodeGen selects the CodeGen variant, which prepends a fixed system
// message instructing source-only generation.
func compilePrompt(cell *models.Cell, opID models.OperationID, deps Dependencies, isCodeGen bool) (*engine.OperationNode, error) {
	cfg := cell.Prompt
	if cfg.Config.FunctionName == "" && cell.IsFunctionInvocation() {
		return nil, models.ErrMissingFunctionName
	}
	partials := referencedPartials(cfg.Template)

	input := engine.InputSignature{}
	for _, name := range partials {
		input.Globals = append(input.Globals, engine.ValueSpec{Name: name, Optional: cfg.Config.FunctionName != ""})
	}

	output := engine.OutputSignature{}
	if cfg.Config.FunctionName != "" {
		output.Functions = []engine.FunctionExport{{Name: cfg.Config.FunctionName, Args: argSpecs(partials)}}
	} else {
		output.Globals = []string{cell.Name}
	}

	run := func(ctx context.Context, globals map[string]value.Value) (*engine.OperationFnOutput, error) {
		rendered, err := renderPartials(cfg.Template, globals)
		if err != nil {
			return &engine.OperationFnOutput{HasError: true}, err
		}
		messages := splitRoles(rendered)
		if isCodeGen {
			messages = append([]ChatMessage{{Role: "system", Content: codeGenSystemPrompt}}, messages...)
		}
		if deps.LLM == nil {
			return &engine.OperationFnOutput{HasError: true}, fmt.Errorf("%s: no LLM client configured", cfg.Provider)
		}
		content, err := deps.LLM.Complete(ctx, ChatRequest{Provider: cfg.Provider, Messages: messages, Config: cfg.Config})
		if err != nil {
			return &engine.OperationFnOutput{HasError: true}, err
		}
		return &engine.OperationFnOutput{Output: value.String(content)}, nil
	}

	execute := func(ctx context.Context, state *engine.ExecutionState, payload engine.OperationPayload, env map[string]string, rpc engine.AsyncRPC) (*engine.OperationFnOutput, error) {
		if cfg.Config.FunctionName != "" && !payload.IsFunctionInvocation {
			// Plain-cell run of a function-producing Prompt cell: output
			// Null and succeed.
			return &engine.OperationFnOutput{Output: value.Null()}, nil
		}
		globals := payload.Globals
		if cfg.Config.FunctionName != "" {
			globals = map[string]value.Value{}
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
		}
		return run(ctx, globals)
	}

	return &engine.OperationNode{
		ID:          opID,
		DisplayName: cell.Name,
		Input:       input,
		Output:      output,
		Execute:     execute,
	}, nil
}
