package models

// CellKind identifies which of the eight cell kinds a Cell carries.
type CellKind string

const (
	CellKindCode      CellKind = "code"
	CellKindPrompt    CellKind = "prompt"
	CellKindCodeGen   CellKind = "codegen"
	CellKindEmbedding CellKind = "embedding"
	CellKindTemplate  CellKind = "template"
	CellKindMemory    CellKind = "memory"
	CellKindWeb       CellKind = "web"
	CellKindSchedule  CellKind = "schedule"
)

// LanguageTag identifies the source language of a Code cell.
type LanguageTag string

const (
	LanguagePython     LanguageTag = "python"
	LanguageJavaScript LanguageTag = "javascript"
)

// TextRange is a byte-offset span into the originating source file. It
// is excluded from Cell equality.
type TextRange struct {
	Path  string
	Start int
	End   int
}

// Cell is the tagged-union authored unit. Exactly
// one of the kind-specific payload fields is populated, selected by Kind.
type Cell struct {
	Name  string
	Kind  CellKind
	Range TextRange

	Code      *CodeCellConfig
	Prompt    *PromptCellConfig
	Embedding *EmbeddingCellConfig
	Template  *TemplateCellConfig
	Memory    *MemoryCellConfig
	Web       *WebCellConfig
	Schedule  *ScheduleCellConfig
}

// CodeCellConfig is the payload of a Code cell.
type CodeCellConfig struct {
	Language           LanguageTag
	Source             string
	FunctionInvocation string // optional function-invocation name
}

// PromptCellConfig is the payload of a Prompt or CodeGen cell.
type PromptCellConfig struct {
	Provider string
	Template string // template string, with role blocks
	Config   PromptConfig
}

// PromptConfig mirrors configuration fields.
type PromptConfig struct {
	Model            string
	Temperature      float64
	TopP             float64
	MaxTokens        int
	FrequencyPenalty float64
	PresencePenalty  float64
	Stop             []string
	Seed             *int
	FunctionName     string // set => cell produces a function handle
	Imports          []string
}

// Equal compares two PromptConfig values field-by-field, normalizing nil
// and empty slices as equal.
func (c PromptConfig) Equal(o PromptConfig) bool {
	if c.Model != o.Model || c.Temperature != o.Temperature || c.TopP != o.TopP ||
		c.MaxTokens != o.MaxTokens || c.FrequencyPenalty != o.FrequencyPenalty ||
		c.PresencePenalty != o.PresencePenalty || c.FunctionName != o.FunctionName {
		return false
	}
	if !stringSliceEqual(c.Stop, o.Stop) || !stringSliceEqual(c.Imports, o.Imports) {
		return false
	}
	switch {
	case c.Seed == nil && o.Seed == nil:
		return true
	case c.Seed == nil || o.Seed == nil:
		return false
	default:
		return *c.Seed == *o.Seed
	}
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// EmbeddingCellConfig is the payload of an Embedding cell.
type EmbeddingCellConfig struct {
	Template string
	Provider string
	Model    string
}

// TemplateCellConfig is the payload of a Template cell.
type TemplateCellConfig struct {
	Body string
}

// MemoryCellConfig is the payload of a Memory cell.
type MemoryCellConfig struct {
	Provider  string // "in_memory" currently the only supported provider
	Embedding EmbeddingCellConfig
}

// WebRoute names a single HTTP route forwarding onto an operation's
// function.
type WebRoute struct {
	Method       string
	Path         string
	FunctionCell string // name of the cell whose function handles the route
	FunctionName string
}

// WebCellConfig is the payload of a Web cell.
type WebCellConfig struct {
	Addr   string
	Routes []WebRoute
}

// ScheduleEntry names one cron-like schedule line.
type ScheduleEntry struct {
	Expr               string
	TargetFunctionCell string
	TargetFunctionName string
}

// ScheduleCellConfig is the payload of a Schedule cell.
type ScheduleCellConfig struct {
	Entries []ScheduleEntry
}

// Equal reports structural equality excluding Range.
func (c *Cell) Equal(o *Cell) bool {
	if c == nil || o == nil {
		return c == o
	}
	if c.Name != o.Name || c.Kind != o.Kind {
		return false
	}
	switch c.Kind {
	case CellKindCode:
		return c.Code != nil && o.Code != nil && *c.Code == *o.Code
	case CellKindPrompt, CellKindCodeGen:
		if c.Prompt == nil || o.Prompt == nil {
			return c.Prompt == o.Prompt
		}
		return c.Prompt.Provider == o.Prompt.Provider &&
			c.Prompt.Template == o.Prompt.Template &&
			c.Prompt.Config.Equal(o.Prompt.Config)
	case CellKindEmbedding:
		return c.Embedding != nil && o.Embedding != nil && *c.Embedding == *o.Embedding
	case CellKindTemplate:
		return c.Template != nil && o.Template != nil && *c.Template == *o.Template
	case CellKindMemory:
		return c.Memory != nil && o.Memory != nil && *c.Memory == *o.Memory
	case CellKindWeb:
		return c.Web != nil && o.Web != nil && webConfigEqual(*c.Web, *o.Web)
	case CellKindSchedule:
		return c.Schedule != nil && o.Schedule != nil && scheduleConfigEqual(*c.Schedule, *o.Schedule)
	default:
		return false
	}
}

func webConfigEqual(a, b WebCellConfig) bool {
	if a.Addr != b.Addr || len(a.Routes) != len(b.Routes) {
		return false
	}
	for i := range a.Routes {
		if a.Routes[i] != b.Routes[i] {
			return false
		}
	}
	return true
}

func scheduleConfigEqual(a, b ScheduleCellConfig) bool {
	if len(a.Entries) != len(b.Entries) {
		return false
	}
	for i := range a.Entries {
		if a.Entries[i] != b.Entries[i] {
			return false
		}
	}
	return true
}

// IsFunctionInvocation reports whether a Prompt/CodeGen cell is declared
// to run as a function invocation rather than a plain cell.
func (c *Cell) IsFunctionInvocation() bool {
	return c.Prompt != nil && c.Prompt.Config.FunctionName != ""
}
