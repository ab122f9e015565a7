package orchestrator

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/pkg/compiler"
	"github.com/smilemakc/mbflow/pkg/engine"
	"github.com/smilemakc/mbflow/pkg/models"
)

func codeCell(name, source string) *models.Cell {
	return &models.Cell{
		Name: name,
		Kind: models.CellKindCode,
		Code: &models.CodeCellConfig{Language: models.LanguagePython, Source: source},
	}
}

func newTestInstance() *Instance {
	return New(compiler.Dependencies{})
}

func TestReloadCellsCommitsFreshCells(t *testing.T) {
	inst := newTestInstance()
	events := inst.Subscribe()

	err := inst.Handle(context.Background(), ReloadCellsMsg{Cells: []*models.Cell{
		codeCell("greeting", "name = \"world\""),
	}})
	require.NoError(t, err)

	opID, ok := inst.resolveCell("greeting")
	require.True(t, ok)
	assert.NotEqual(t, models.OperationID{}, opID)

	var sawDefUpdate bool
	for i := 0; i < len(events); i++ {
		select {
		case evt := <-events:
			if evt.Type == EventDefinitionGraphUpdated {
				sawDefUpdate = true
			}
		default:
		}
	}
	assert.True(t, sawDefUpdate, "expected a definition_graph_updated event")
}

func TestReloadCellsNoOpOnUnchangedCell(t *testing.T) {
	inst := newTestInstance()
	cell := codeCell("greeting", "name = \"world\"")

	require.NoError(t, inst.Handle(context.Background(), ReloadCellsMsg{Cells: []*models.Cell{cell}}))
	headAfterFirst := inst.headID()

	require.NoError(t, inst.Handle(context.Background(), ReloadCellsMsg{Cells: []*models.Cell{cell}}))
	assert.Equal(t, headAfterFirst, inst.headID(), "reloading an unchanged cell should not advance the head")
}

func TestReloadCellsPreservesOperationIDAcrossEdits(t *testing.T) {
	inst := newTestInstance()
	require.NoError(t, inst.Handle(context.Background(), ReloadCellsMsg{Cells: []*models.Cell{
		codeCell("greeting", "name = \"world\""),
	}}))
	firstOpID, _ := inst.resolveCell("greeting")

	require.NoError(t, inst.Handle(context.Background(), ReloadCellsMsg{Cells: []*models.Cell{
		codeCell("greeting", "name = \"there\""),
	}}))
	secondOpID, _ := inst.resolveCell("greeting")

	assert.Equal(t, firstOpID, secondOpID, "editing a cell under the same name must keep its operation id")
}

func TestReloadCellsLinksGlobalDependency(t *testing.T) {
	inst := newTestInstance()
	err := inst.Handle(context.Background(), ReloadCellsMsg{Cells: []*models.Cell{
		codeCell("producer", "x = 1"),
		codeCell("consumer", "y = x + 1"),
	}})
	require.NoError(t, err)

	producerID, ok := inst.resolveCell("producer")
	require.True(t, ok)
	consumerID, ok := inst.resolveCell("consumer")
	require.True(t, ok)

	state, err := inst.graph.State(inst.headID())
	require.NoError(t, err)
	assert.Contains(t, state.DependencyGraph().Producers(consumerID), producerID)
}

func TestJumpToRejectsUnknownNode(t *testing.T) {
	inst := newTestInstance()
	require.NoError(t, inst.Handle(context.Background(), ReloadCellsMsg{Cells: []*models.Cell{
		codeCell("a", "x = 1"),
	}}))

	err := inst.Handle(context.Background(), JumpToMsg{NodeID: engine.ExecutionNodeID(uuid.New())})
	assert.Error(t, err)
}

func TestShutdownStopsScheduler(t *testing.T) {
	inst := newTestInstance()
	require.NoError(t, inst.Handle(context.Background(), ShutdownMsg{}))
	assert.Equal(t, engine.ModeStopped, inst.scheduler.Mode())
}

func TestHandleUnknownMessage(t *testing.T) {
	inst := newTestInstance()
	err := inst.Handle(context.Background(), nil)
	assert.Error(t, err)
}
