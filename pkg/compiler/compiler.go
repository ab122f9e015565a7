// Package compiler implements the Cell Compiler:
// Compile(cell, opID, deps) -> Operation Node. Compilation is keyed by the
// operation id; no execution state id is taken.
package compiler

import (
	"github.com/smilemakc/mbflow/pkg/engine"
	"github.com/smilemakc/mbflow/pkg/models"
	"github.com/smilemakc/mbflow/pkg/scripthost"
)

// Dependencies bundles everything a cell kind's compile function needs
// that isn't carried on the Cell itself: the script host registry, the
// provider clients for Prompt/CodeGen/Embedding cells, the cell-name
// resolver and the optional trigger store.
type Dependencies struct {
	ScriptHosts *scripthost.Registry
	LLM         LLMClient
	Embeddings  EmbeddingClient

	// ResolveCell maps a cell's display name to the operation id it
	// currently compiles to. Web and Schedule cells name their targets
	// by cell, not by operation id, so they resolve through this at
	// invocation time (populated by the orchestrator, which owns the
	// cell-name -> operation-id table).
	ResolveCell func(cellName string) (models.OperationID, bool)

	// TriggerStore optionally persists Schedule cell last-fire
	// times so they survive process restarts. Nil runs Schedule
	// cells purely in-process.
	TriggerStore TriggerStore
}

// Compile dispatches on cell.Kind to the matching per-kind compile
// function.
func Compile(cell *models.Cell, opID models.OperationID, deps Dependencies) (*engine.OperationNode, error) {
	switch cell.Kind {
	case models.CellKindCode:
		return compileCode(cell, opID, deps)
	case models.CellKindTemplate:
		return compileTemplate(cell, opID, deps)
	case models.CellKindPrompt:
		return compilePrompt(cell, opID, deps, false)
	case models.CellKindCodeGen:
		return compilePrompt(cell, opID, deps, true)
	case models.CellKindEmbedding:
		return compileEmbedding(cell, opID, deps)
	case models.CellKindMemory:
		return compileMemory(cell, opID, deps)
	case models.CellKindWeb:
		return compileWeb(cell, opID, deps)
	case models.CellKindSchedule:
		return compileSchedule(cell, opID, deps)
	default:
		return nil, models.ErrUnsupportedLanguage
	}
}
