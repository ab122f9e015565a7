package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/pkg/models"
)

func TestParseFileBasicCells(t *testing.T) {
	doc := "# notebook\n" +
		"```python (greeting)\n" +
		"name = \"world\"\n" +
		"```\n" +
		"text before\n" +
		"```prompt (hello)\n" +
		"---\n" +
		"provider: openai\n" +
		"model: gpt-4o-mini\n" +
		"---\n" +
		"### user\n" +
		"Say hi to {{greeting}}.\n" +
		"```\n"

	cells, err := ParseFile("notebook.md", []byte(doc))
	require.NoError(t, err)
	require.Len(t, cells, 2)

	assert.Equal(t, "greeting", cells[0].Name)
	assert.Equal(t, models.CellKindCode, cells[0].Kind)
	assert.Equal(t, models.LanguagePython, cells[0].Code.Language)
	assert.Equal(t, "name = \"world\"", cells[0].Code.Source)

	assert.Equal(t, "hello", cells[1].Name)
	assert.Equal(t, models.CellKindPrompt, cells[1].Kind)
	assert.Equal(t, "openai", cells[1].Prompt.Provider)
	assert.Equal(t, "gpt-4o-mini", cells[1].Prompt.Config.Model)
	assert.Contains(t, cells[1].Prompt.Template, "### user")
	assert.True(t, cells[1].Range.Start < cells[1].Range.End)
}

func TestParseFileAnonymousCellsGetSequentialNames(t *testing.T) {
	doc := "```js\n" +
		"export const x = 1;\n" +
		"```\n" +
		"```js\n" +
		"export const y = 2;\n" +
		"```\n"

	cells, err := ParseFile("anon.md", []byte(doc))
	require.NoError(t, err)
	require.Len(t, cells, 2)
	assert.Equal(t, "_cell_1", cells[0].Name)
	assert.Equal(t, "_cell_2", cells[1].Name)
}

func TestParseFileUnrecognizedTag(t *testing.T) {
	_, err := ParseFile("bad.md", []byte("```rust\nfn main() {}\n```\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrCellParse)
}

func TestParseFileUnterminatedFence(t *testing.T) {
	_, err := ParseFile("bad.md", []byte("```python\nx = 1\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrCellParse)
}

func TestLoadDirectorySortsByPathThenOffset(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("```python (b1)\nx = 1\n```\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("```python (a1)\ny = 2\n```\n```python (a2)\nz = 3\n```\n"), 0o644))

	cells, err := LoadDirectory(dir)
	require.NoError(t, err)
	require.Len(t, cells, 3)
	assert.Equal(t, "a1", cells[0].Name)
	assert.Equal(t, "a2", cells[1].Name)
	assert.Equal(t, "b1", cells[2].Name)
}

func TestParseFileWebAndScheduleCells(t *testing.T) {
	doc := "```web (api)\n" +
		"---\n" +
		"addr: \":8080\"\n" +
		"routes:\n" +
		"  - method: POST\n" +
		"    path: /run\n" +
		"    function_cell: handler\n" +
		"    function_name: run\n" +
		"---\n" +
		"```\n" +
		"```schedule (daily)\n" +
		"---\n" +
		"entries:\n" +
		"  - expr: \"0 0 * * * *\"\n" +
		"    target_function_cell: handler\n" +
		"    target_function_name: run\n" +
		"---\n" +
		"```\n"

	cells, err := ParseFile("routes.md", []byte(doc))
	require.NoError(t, err)
	require.Len(t, cells, 2)

	assert.Equal(t, models.CellKindWeb, cells[0].Kind)
	assert.Equal(t, ":8080", cells[0].Web.Addr)
	require.Len(t, cells[0].Web.Routes, 1)
	assert.Equal(t, "handler", cells[0].Web.Routes[0].FunctionCell)

	assert.Equal(t, models.CellKindSchedule, cells[1].Kind)
	require.Len(t, cells[1].Schedule.Entries, 1)
	assert.Equal(t, "handler", cells[1].Schedule.Entries[0].TargetFunctionCell)
}
