// Package loader is the markdown-directory loader: an out-of-scope I/O
// collaborator that turns a directory of markdown files into the
// []*models.Cell a Compiler/Orchestrator can commit. A document is a
// sequence of fenced code blocks; each fence opening names a tag word,
// an optional parenthesized display name, and an optional YAML front
// matter block.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/smilemakc/mbflow/pkg/models"
)

// tagKind maps a fence tag word to the cell kind and, for Code cells,
// the language it selects.
var tagKind = map[string]struct {
	kind models.CellKind
	lang models.LanguageTag
}{
	"python":     {models.CellKindCode, models.LanguagePython},
	"py":         {models.CellKindCode, models.LanguagePython},
	"javascript": {models.CellKindCode, models.LanguageJavaScript},
	"js":         {models.CellKindCode, models.LanguageJavaScript},
	"typescript": {models.CellKindCode, models.LanguageJavaScript},
	"ts":         {models.CellKindCode, models.LanguageJavaScript},
	"prompt":     {models.CellKindPrompt, ""},
	"codegen":    {models.CellKindCodeGen, ""},
	"embedding":  {models.CellKindEmbedding, ""},
	"html":       {models.CellKindTemplate, ""},
	"memory":     {models.CellKindMemory, ""},
	// [EXPANSION]: spec.md's tag list has no word for Web or Schedule
	// cells; these two are added here rather than left unauthorable from
	// markdown, the most natural resolution of that silence.
	"web":      {models.CellKindWeb, ""},
	"schedule": {models.CellKindSchedule, ""},
}

// fenceOpen matches a fence opening line: ```tag or ```tag(name).
var fenceOpen = regexp.MustCompile("^```\\s*([a-zA-Z]+)\\s*(?:\\(([^)]+)\\))?\\s*$")

const fenceClose = "```"

// LoadDirectory reads every *.md file directly under dir, parses each
// concurrently, and returns every cell found, sorted by (file path,
// starting byte offset) as spec.md §6 requires.
func LoadDirectory(dir string) ([]*models.Cell, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)

	perFile := make([][]*models.Cell, len(paths))
	var g errgroup.Group
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			content, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("read %s: %w", p, err)
			}
			cells, err := ParseFile(p, content)
			if err != nil {
				return err
			}
			perFile[i] = cells
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []*models.Cell
	for _, cells := range perFile {
		all = append(all, cells...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Range.Path != all[j].Range.Path {
			return all[i].Range.Path < all[j].Range.Path
		}
		return all[i].Range.Start < all[j].Range.Start
	})
	return all, nil
}

// ParseFile extracts every fenced cell block from one file's content.
func ParseFile(path string, content []byte) ([]*models.Cell, error) {
	lines := strings.Split(string(content), "\n")
	offset := 0
	lineOffsets := make([]int, len(lines))
	for i, l := range lines {
		lineOffsets[i] = offset
		offset += len(l) + 1
	}

	var cells []*models.Cell
	var anonCount int
	for i := 0; i < len(lines); i++ {
		m := fenceOpen.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		tag, name := strings.ToLower(m[1]), m[2]
		info, ok := tagKind[tag]
		if !ok {
			return nil, &models.CellParseError{Path: path, Offset: lineOffsets[i], Reason: "unrecognized tag: " + tag}
		}

		start := i + 1
		end := -1
		for j := start; j < len(lines); j++ {
			if strings.TrimSpace(lines[j]) == fenceClose {
				end = j
				break
			}
		}
		if end == -1 {
			return nil, &models.CellParseError{Path: path, Offset: lineOffsets[i], Reason: "unterminated fenced block"}
		}

		body := strings.Join(lines[start:end], "\n")
		front, rest, err := splitFrontMatter(body)
		if err != nil {
			return nil, &models.CellParseError{Path: path, Offset: lineOffsets[start], Reason: err.Error()}
		}

		if name == "" {
			anonCount++
			name = fmt.Sprintf("_cell_%d", anonCount)
		}

		cell, err := buildCell(name, info.kind, info.lang, front, rest)
		if err != nil {
			return nil, &models.CellParseError{Path: path, Offset: lineOffsets[start], Reason: err.Error()}
		}
		cell.Range = models.TextRange{Path: path, Start: lineOffsets[i], End: lineOffsets[end] + len(fenceClose)}
		cells = append(cells, cell)

		i = end
	}
	return cells, nil
}

// frontMatter is the union of every field any cell kind's YAML front
// matter may set. Unused fields for a given kind are simply ignored.
type frontMatter struct {
	FunctionInvocation string `yaml:"function_invocation"`

	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`

	Temperature      float64  `yaml:"temperature"`
	TopP             float64  `yaml:"top_p"`
	MaxTokens        int      `yaml:"max_tokens"`
	FrequencyPenalty float64  `yaml:"frequency_penalty"`
	PresencePenalty  float64  `yaml:"presence_penalty"`
	Stop             []string `yaml:"stop"`
	Seed             *int     `yaml:"seed"`
	FunctionName     string   `yaml:"function_name"`
	Imports          []string `yaml:"imports"`

	MemoryProvider string                  `yaml:"memory_provider"`
	Embedding      *embeddingFrontMatter   `yaml:"embedding"`

	Addr   string           `yaml:"addr"`
	Routes []webRouteYAML   `yaml:"routes"`

	Entries []scheduleEntryYAML `yaml:"entries"`
}

type embeddingFrontMatter struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type webRouteYAML struct {
	Method       string `yaml:"method"`
	Path         string `yaml:"path"`
	FunctionCell string `yaml:"function_cell"`
	FunctionName string `yaml:"function_name"`
}

type scheduleEntryYAML struct {
	Expr               string `yaml:"expr"`
	TargetFunctionCell string `yaml:"target_function_cell"`
	TargetFunctionName string `yaml:"target_function_name"`
}

// splitFrontMatter separates an optional leading "---\n...\n---\n" YAML
// block from the remaining cell body.
func splitFrontMatter(body string) (frontMatter, string, error) {
	var fm frontMatter
	trimmed := strings.TrimLeft(body, "\n")
	if !strings.HasPrefix(trimmed, "---") {
		return fm, body, nil
	}
	lines := strings.Split(trimmed, "\n")
	if strings.TrimSpace(lines[0]) != "---" {
		return fm, body, nil
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			yamlBlock := strings.Join(lines[1:i], "\n")
			if err := yaml.Unmarshal([]byte(yamlBlock), &fm); err != nil {
				return fm, "", fmt.Errorf("%w: %s", models.ErrYaml, err)
			}
			rest := strings.Join(lines[i+1:], "\n")
			return fm, strings.TrimPrefix(rest, "\n"), nil
		}
	}
	return fm, "", fmt.Errorf("%w: unterminated front matter", models.ErrFrontMatter)
}

func buildCell(name string, kind models.CellKind, lang models.LanguageTag, fm frontMatter, body string) (*models.Cell, error) {
	cell := &models.Cell{Name: name, Kind: kind}
	switch kind {
	case models.CellKindCode:
		cell.Code = &models.CodeCellConfig{Language: lang, Source: body, FunctionInvocation: fm.FunctionInvocation}
	case models.CellKindPrompt, models.CellKindCodeGen:
		cell.Prompt = &models.PromptCellConfig{
			Provider: fm.Provider,
			Template: body,
			Config: models.PromptConfig{
				Model:            fm.Model,
				Temperature:      fm.Temperature,
				TopP:             fm.TopP,
				MaxTokens:        fm.MaxTokens,
				FrequencyPenalty: fm.FrequencyPenalty,
				PresencePenalty:  fm.PresencePenalty,
				Stop:             fm.Stop,
				Seed:             fm.Seed,
				FunctionName:     fm.FunctionName,
				Imports:          fm.Imports,
			},
		}
	case models.CellKindEmbedding:
		cell.Embedding = &models.EmbeddingCellConfig{Template: body, Provider: fm.Provider, Model: fm.Model}
	case models.CellKindTemplate:
		cell.Template = &models.TemplateCellConfig{Body: body}
	case models.CellKindMemory:
		provider := fm.MemoryProvider
		if provider == "" {
			provider = "in_memory"
		}
		mc := models.MemoryCellConfig{Provider: provider}
		if fm.Embedding != nil {
			mc.Embedding = models.EmbeddingCellConfig{Provider: fm.Embedding.Provider, Model: fm.Embedding.Model}
		}
		cell.Memory = &mc
	case models.CellKindWeb:
		routes := make([]models.WebRoute, len(fm.Routes))
		for i, r := range fm.Routes {
			routes[i] = models.WebRoute{Method: r.Method, Path: r.Path, FunctionCell: r.FunctionCell, FunctionName: r.FunctionName}
		}
		cell.Web = &models.WebCellConfig{Addr: fm.Addr, Routes: routes}
	case models.CellKindSchedule:
		entries := make([]models.ScheduleEntry, len(fm.Entries))
		for i, e := range fm.Entries {
			entries[i] = models.ScheduleEntry{Expr: e.Expr, TargetFunctionCell: e.TargetFunctionCell, TargetFunctionName: e.TargetFunctionName}
		}
		cell.Schedule = &models.ScheduleCellConfig{Entries: entries}
	default:
		return nil, models.ErrUnsupportedLanguage
	}
	return cell, nil
}
