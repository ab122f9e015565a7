// Package scripthost defines the contract consumed from an embedded
// script host and the registry that picks one by language tag.
package scripthost

import (
	"context"

	"github.com/smilemakc/mbflow/pkg/models"
	"github.com/smilemakc/mbflow/pkg/value"
)

// Config carries source-level options (e.g. entry-point function name)
// passed from the Cell Compiler to an Adapter.
type Config struct {
	// FunctionName, when set, invokes a specific source-exposed function
	// instead of running the module at top level.
	FunctionName string
	Args         []value.Value
	Kwargs       map[string]value.Value

	// ExposedGlobals names the module-scope bindings a plain (non-
	// function-invocation) run should read back after executing the
	// source, so the Cell Compiler can populate Outputs.globals.
	ExposedGlobals []string
}

// Result is what run() produces: a value plus captured
// stdout/stderr. It carries no replacement state, so module-scope
// bindings mutated by a function invocation are not reported back.
type Result struct {
	Output value.Value
	Stdout []string
	Stderr []string
}

// Adapter runs source text of one language against a payload and
// returns its result, honoring cooperative cancellation via ctx.
type Adapter interface {
	Run(ctx context.Context, source string, payload value.Value, cfg Config) (Result, error)
}

// Registry looks up an Adapter for a language tag.
type Registry struct {
	adapters map[models.LanguageTag]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: map[models.LanguageTag]Adapter{}}
}

func (r *Registry) Register(lang models.LanguageTag, adapter Adapter) {
	r.adapters[lang] = adapter
}

func (r *Registry) For(lang models.LanguageTag) (Adapter, bool) {
	a, ok := r.adapters[lang]
	return a, ok
}
