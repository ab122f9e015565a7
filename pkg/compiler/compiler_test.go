package compiler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smilemakc/mbflow/pkg/engine"
	"github.com/smilemakc/mbflow/pkg/models"
	"github.com/smilemakc/mbflow/pkg/scripthost"
	"github.com/smilemakc/mbflow/pkg/value"
)

// fakeAdapter is a minimal scripthost.Adapter stand-in: it echoes back the
// exposed-globals list as a bound object, or, under function invocation,
// doubles its first argument. No real script host is exercised here; that
// belongs to the scripthost package's own tests.
type fakeAdapter struct{}

func (fakeAdapter) Run(ctx context.Context, source string, payload value.Value, cfg scripthost.Config) (scripthost.Result, error) {
	if cfg.FunctionName != "" {
		n := cfg.Args[0].AsInt()
		return scripthost.Result{Output: value.Int(n * 2)}, nil
	}
	pairs := make(map[string]value.Value, len(cfg.ExposedGlobals))
	for _, name := range cfg.ExposedGlobals {
		pairs[name] = value.Int(1)
	}
	return scripthost.Result{Output: value.ObjectFromMap(pairs)}, nil
}

func registryWith(lang models.LanguageTag, a scripthost.Adapter) *scripthost.Registry {
	r := scripthost.NewRegistry()
	r.Register(lang, a)
	return r
}

func TestCompileCode_PlainRunReadsExposedGlobals(t *testing.T) {
	cell := &models.Cell{
		Name: "arith",
		Kind: models.CellKindCode,
		Code: &models.CodeCellConfig{Language: models.LanguagePython, Source: "y = 20\ndef add(a, b):\n    return a + b\n"},
	}
	opID := models.NewOperationID()

	node, err := compileCode(cell, opID, Dependencies{ScriptHosts: registryWith(models.LanguagePython, fakeAdapter{})})
	if err != nil {
		t.Fatalf("compileCode: %v", err)
	}
	if len(node.Output.Globals) == 0 {
		t.Fatal("expected at least one exposed global from the analyzer report")
	}
	if len(node.Output.Functions) == 0 {
		t.Fatal("expected add to be reported as a triggerable function")
	}

	out, err := node.Execute(context.Background(), nil, engine.OperationPayload{Globals: map[string]value.Value{}}, nil, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.HasError {
		t.Fatalf("Execute reported has_error: %v", out.Stderr)
	}
}

func TestCompileCode_UnsupportedLanguage(t *testing.T) {
	cell := &models.Cell{
		Name: "bad",
		Kind: models.CellKindCode,
		Code: &models.CodeCellConfig{Language: "ruby", Source: "puts 1"},
	}
	_, err := compileCode(cell, models.NewOperationID(), Dependencies{})
	if !errors.Is(err, models.ErrUnsupportedLanguage) {
		t.Fatalf("compileCode err = %v, want ErrUnsupportedLanguage", err)
	}
}

func TestCompileCode_MissingScriptHostIsAnError(t *testing.T) {
	cell := &models.Cell{
		Name: "arith",
		Kind: models.CellKindCode,
		Code: &models.CodeCellConfig{Language: models.LanguagePython, Source: "y = 1\n"},
	}
	node, err := compileCode(cell, models.NewOperationID(), Dependencies{ScriptHosts: scripthost.NewRegistry()})
	if err != nil {
		t.Fatalf("compileCode: %v", err)
	}
	if _, err := node.Execute(context.Background(), nil, engine.OperationPayload{}, nil, nil); !errors.Is(err, models.ErrUnsupportedLanguage) {
		t.Fatalf("Execute err = %v, want ErrUnsupportedLanguage", err)
	}
}

func TestCompileTemplate_RendersPartials(t *testing.T) {
	cell := &models.Cell{
		Name:     "greet",
		Kind:     models.CellKindTemplate,
		Template: &models.TemplateCellConfig{Body: "Hello, {{who}}!"},
	}
	node, err := compileTemplate(cell, models.NewOperationID(), Dependencies{})
	if err != nil {
		t.Fatalf("compileTemplate: %v", err)
	}
	if len(node.Input.Globals) != 1 || node.Input.Globals[0].Name != "who" {
		t.Fatalf("Input.Globals = %+v, want [who]", node.Input.Globals)
	}
	if len(node.Output.Globals) != 1 || node.Output.Globals[0] != "greet" {
		t.Fatalf("Output.Globals = %+v, want [greet]", node.Output.Globals)
	}

	out, err := node.Execute(context.Background(), nil, engine.OperationPayload{Globals: map[string]value.Value{"who": value.String("World")}}, nil, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Output.AsString() != "Hello, World!" {
		t.Fatalf("Output = %q, want %q", out.Output.AsString(), "Hello, World!")
	}
}

func TestCompileTemplate_UnboundPartialIsAnError(t *testing.T) {
	cell := &models.Cell{
		Name:     "greet",
		Kind:     models.CellKindTemplate,
		Template: &models.TemplateCellConfig{Body: "Hello, {{who}}!"},
	}
	node, err := compileTemplate(cell, models.NewOperationID(), Dependencies{})
	if err != nil {
		t.Fatalf("compileTemplate: %v", err)
	}
	out, err := node.Execute(context.Background(), nil, engine.OperationPayload{Globals: map[string]value.Value{}}, nil, nil)
	if err == nil {
		t.Fatal("expected an error for an unbound partial")
	}
	if !out.HasError {
		t.Fatal("expected HasError on an unbound partial")
	}
}

type fakeLLM struct {
	lastReq ChatRequest
	reply   string
	err     error
}

func (f *fakeLLM) Complete(ctx context.Context, req ChatRequest) (string, error) {
	f.lastReq = req
	return f.reply, f.err
}

func TestCompilePrompt_PlainCellRendersAndCompletes(t *testing.T) {
	cell := &models.Cell{
		Name: "summary",
		Kind: models.CellKindPrompt,
		Prompt: &models.PromptCellConfig{
			Provider: "openai",
			Template: "### system\nBe terse.\n### user\n{{text}}",
		},
	}
	llm := &fakeLLM{reply: "a terse summary"}
	node, err := compilePrompt(cell, models.NewOperationID(), Dependencies{LLM: llm}, false)
	if err != nil {
		t.Fatalf("compilePrompt: %v", err)
	}

	out, err := node.Execute(context.Background(), nil, engine.OperationPayload{Globals: map[string]value.Value{"text": value.String("abc")}}, nil, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Output.AsString() != "a terse summary" {
		t.Fatalf("Output = %q, want %q", out.Output.AsString(), "a terse summary")
	}
	if len(llm.lastReq.Messages) != 2 || llm.lastReq.Messages[0].Role != "system" || llm.lastReq.Messages[1].Role != "user" {
		t.Fatalf("Messages = %+v, want [system, user]", llm.lastReq.Messages)
	}
}

func TestCompilePrompt_FunctionInvocationExportsFunctionAndBindsNullOnPlainRun(t *testing.T) {
	cell := &models.Cell{
		Name: "summarize",
		Kind: models.CellKindPrompt,
		Prompt: &models.PromptCellConfig{
			Provider: "openai",
			Template: "{{text}}",
			Config:   models.PromptConfig{FunctionName: "summarize"},
		},
	}
	llm := &fakeLLM{reply: "summary: abc"}
	node, err := compilePrompt(cell, models.NewOperationID(), Dependencies{LLM: llm}, false)
	if err != nil {
		t.Fatalf("compilePrompt: %v", err)
	}
	if len(node.Output.Functions) != 1 || node.Output.Functions[0].Name != "summarize" {
		t.Fatalf("Output.Functions = %+v, want [summarize]", node.Output.Functions)
	}

	plain, err := node.Execute(context.Background(), nil, engine.OperationPayload{}, nil, nil)
	if err != nil {
		t.Fatalf("plain Execute: %v", err)
	}
	if plain.Output.Kind() != value.KindNull {
		t.Fatalf("plain run output = %v, want Null", plain.Output)
	}

	invoked, err := node.Execute(context.Background(), nil, engine.OperationPayload{
		IsFunctionInvocation: true,
		Args:                 []value.Value{value.String("abc")},
	}, nil, nil)
	if err != nil {
		t.Fatalf("invoked Execute: %v", err)
	}
	if invoked.Output.AsString() != "summary: abc" {
		t.Fatalf("invoked Output = %q, want %q", invoked.Output.AsString(), "summary: abc")
	}
}

func TestCompilePrompt_CodeGenPrependsSystemMessage(t *testing.T) {
	cell := &models.Cell{
		Name: "gen",
		Kind: models.CellKindCodeGen,
		Prompt: &models.PromptCellConfig{
			Provider: "openai",
			Template: "{{spec}}",
		},
	}
	llm := &fakeLLM{reply: "func main() {}"}
	node, err := compilePrompt(cell, models.NewOperationID(), Dependencies{LLM: llm}, true)
	if err != nil {
		t.Fatalf("compilePrompt: %v", err)
	}
	if _, err := node.Execute(context.Background(), nil, engine.OperationPayload{Globals: map[string]value.Value{"spec": value.String("a function")}}, nil, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(llm.lastReq.Messages) != 2 || llm.lastReq.Messages[0].Role != "system" || llm.lastReq.Messages[0].Content != codeGenSystemPrompt {
		t.Fatalf("Messages = %+v, want a prepended fixed system message", llm.lastReq.Messages)
	}
}

func TestCompilePrompt_NoLLMConfiguredIsAnError(t *testing.T) {
	cell := &models.Cell{
		Name:   "summary",
		Kind:   models.CellKindPrompt,
		Prompt: &models.PromptCellConfig{Provider: "openai", Template: "hi"},
	}
	node, err := compilePrompt(cell, models.NewOperationID(), Dependencies{}, false)
	if err != nil {
		t.Fatalf("compilePrompt: %v", err)
	}
	out, err := node.Execute(context.Background(), nil, engine.OperationPayload{Globals: map[string]value.Value{}}, nil, nil)
	if err == nil {
		t.Fatal("expected an error with no LLM client configured")
	}
	if !out.HasError {
		t.Fatal("expected HasError with no LLM client configured")
	}
}

type fakeEmbedder struct {
	vec []float64
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, provider, model, text string) ([]float64, error) {
	return f.vec, f.err
}

func TestCompileEmbedding_RendersTemplateAndEmbeds(t *testing.T) {
	cell := &models.Cell{
		Name: "embed",
		Kind: models.CellKindEmbedding,
		Embedding: &models.EmbeddingCellConfig{
			Template: "{{text}}",
			Provider: "openai",
			Model:    "text-embedding-3-small",
		},
	}
	embedder := &fakeEmbedder{vec: []float64{0.1, 0.2, 0.3}}
	node, err := compileEmbedding(cell, models.NewOperationID(), Dependencies{Embeddings: embedder})
	if err != nil {
		t.Fatalf("compileEmbedding: %v", err)
	}
	if len(node.Output.Functions) != 1 || node.Output.Functions[0].Name != "embed" {
		t.Fatalf("Output.Functions = %+v, want [embed]", node.Output.Functions)
	}

	out, err := node.Execute(context.Background(), nil, engine.OperationPayload{
		IsFunctionInvocation: true,
		Args:                 []value.Value{value.String("hello")},
	}, nil, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	arr := out.Output.AsArray()
	if len(arr) != 3 || arr[0].AsFloat() != 0.1 {
		t.Fatalf("Output = %+v, want [0.1 0.2 0.3]", arr)
	}
}

func TestCompileEmbedding_PlainRunBindsNull(t *testing.T) {
	cell := &models.Cell{
		Name:      "embed",
		Kind:      models.CellKindEmbedding,
		Embedding: &models.EmbeddingCellConfig{Template: "{{text}}", Provider: "openai"},
	}
	node, err := compileEmbedding(cell, models.NewOperationID(), Dependencies{})
	if err != nil {
		t.Fatalf("compileEmbedding: %v", err)
	}
	out, err := node.Execute(context.Background(), nil, engine.OperationPayload{}, nil, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Output.Kind() != value.KindNull {
		t.Fatalf("plain run output = %v, want Null", out.Output)
	}
}

// fakeMemoryRPC drives compileMemory's execute loop through one add then
// one query request over the Async RPC channel, the way the scheduler
// would for a long-running operation.
type fakeMemoryRPC struct {
	requests chan engine.RPCRequest
}

func newFakeMemoryRPC() *fakeMemoryRPC {
	return &fakeMemoryRPC{requests: make(chan engine.RPCRequest, 4)}
}

func (r *fakeMemoryRPC) Publish(functions []string) {}
func (r *fakeMemoryRPC) Requests() <-chan engine.RPCRequest { return r.requests }
func (r *fakeMemoryRPC) Invoke(ctx context.Context, fn value.FunctionPointer, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	return value.Null(), nil
}

func (r *fakeMemoryRPC) call(kwargs map[string]value.Value) engine.RPCReply {
	reply := make(chan engine.RPCReply, 1)
	r.requests <- engine.RPCRequest{Method: "run", Payload: value.ObjectFromMap(kwargs), Reply: reply}
	return <-reply
}

func TestCompileMemory_AddThenQueryRoundTripsThroughTheRPCLoop(t *testing.T) {
	cell := &models.Cell{
		Name: "memory",
		Kind: models.CellKindMemory,
		Memory: &models.MemoryCellConfig{
			Provider:  "in_memory",
			Embedding: models.EmbeddingCellConfig{Provider: "openai", Model: "text-embedding-3-small"},
		},
	}
	calls := 0
	embedder := &fakeEmbedderFunc{fn: func(text string) []float64 {
		calls++
		if text == "cats are great" {
			return []float64{1, 0}
		}
		return []float64{0.9, 0.1}
	}}
	node, err := compileMemory(cell, models.NewOperationID(), Dependencies{Embeddings: embedder})
	if err != nil {
		t.Fatalf("compileMemory: %v", err)
	}

	rpc := newFakeMemoryRPC()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, execErr := node.Execute(ctx, nil, engine.OperationPayload{}, nil, rpc)
		done <- execErr
	}()

	addReply := rpc.call(map[string]value.Value{
		"op":   value.String("add"),
		"id":   value.String("1"),
		"text": value.String("cats are great"),
	})
	if addReply.Err != nil {
		t.Fatalf("add reply err: %v", addReply.Err)
	}

	queryReply := rpc.call(map[string]value.Value{
		"op":   value.String("query"),
		"text": value.String("cats are great"),
		"k":    value.Int(1),
	})
	if queryReply.Err != nil {
		t.Fatalf("query reply err: %v", queryReply.Err)
	}
	matches := queryReply.Output.AsArray()
	if len(matches) != 1 {
		t.Fatalf("len(matches) = %d, want 1", len(matches))
	}
	idField, ok := matches[0].Get("id")
	if !ok || idField.AsString() != "1" {
		t.Fatalf("matches[0] = %+v, want id=1", matches[0])
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("Execute returned %v after cancel, want context.Canceled", err)
	}
	if calls < 2 {
		t.Fatalf("expected the embedder to be called for both add and query, got %d calls", calls)
	}
}

type fakeEmbedderFunc struct{ fn func(text string) []float64 }

func (f *fakeEmbedderFunc) Embed(ctx context.Context, provider, model, text string) ([]float64, error) {
	return f.fn(text), nil
}

func TestCompileWeb_ShutsDownCleanlyOnCancel(t *testing.T) {
	cell := &models.Cell{
		Name: "api",
		Kind: models.CellKindWeb,
		Web:  &models.WebCellConfig{Addr: "127.0.0.1:0"},
	}
	node, err := compileWeb(cell, models.NewOperationID(), Dependencies{})
	if err != nil {
		t.Fatalf("compileWeb: %v", err)
	}
	if !node.IsAsync || !node.IsLongRunning {
		t.Fatal("Web operation must be async and long-running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, execErr := node.Execute(ctx, nil, engine.OperationPayload{}, nil, nil)
		done <- execErr
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Execute returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Execute did not return after cancellation")
	}
}

func TestCompile_DispatchesOnCellKind(t *testing.T) {
	cases := []*models.Cell{
		{Name: "c", Kind: models.CellKindCode, Code: &models.CodeCellConfig{Language: models.LanguagePython, Source: "x = 1\n"}},
		{Name: "t", Kind: models.CellKindTemplate, Template: &models.TemplateCellConfig{Body: "hi"}},
		{Name: "p", Kind: models.CellKindPrompt, Prompt: &models.PromptCellConfig{Template: "hi"}},
		{Name: "g", Kind: models.CellKindCodeGen, Prompt: &models.PromptCellConfig{Template: "hi"}},
		{Name: "e", Kind: models.CellKindEmbedding, Embedding: &models.EmbeddingCellConfig{Template: "hi"}},
		{Name: "m", Kind: models.CellKindMemory, Memory: &models.MemoryCellConfig{}},
		{Name: "w", Kind: models.CellKindWeb, Web: &models.WebCellConfig{Addr: "127.0.0.1:0"}},
		{Name: "s", Kind: models.CellKindSchedule, Schedule: &models.ScheduleCellConfig{}},
	}
	deps := Dependencies{ScriptHosts: registryWith(models.LanguagePython, fakeAdapter{})}
	for _, cell := range cases {
		node, err := Compile(cell, models.NewOperationID(), deps)
		if err != nil {
			t.Fatalf("Compile(%s): %v", cell.Kind, err)
		}
		if node.DisplayName != cell.Name {
			t.Fatalf("Compile(%s).DisplayName = %q, want %q", cell.Kind, node.DisplayName, cell.Name)
		}
	}

	if _, err := Compile(&models.Cell{Kind: "bogus"}, models.NewOperationID(), Dependencies{}); !errors.Is(err, models.ErrUnsupportedLanguage) {
		t.Fatalf("Compile(bogus) err = %v, want ErrUnsupportedLanguage", err)
	}
}
