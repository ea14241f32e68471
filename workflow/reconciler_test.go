package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songzhibin97/workflow-steps/storage"
	"github.com/songzhibin97/workflow-steps/testutil"
	"github.com/songzhibin97/workflow-steps/types"
)

type failingGenerator struct{}

func (failingGenerator) NextID() (uint64, error) {
	return 0, errors.New("clock moved backwards")
}

func edge(workflowID, from, to string) types.Connection {
	return types.Connection{WorkflowID: workflowID, FromStepID: from, ToStepID: to}
}

func connectionIDs(connections []types.Connection) map[types.EdgeKey]string {
	ids := make(map[types.EdgeKey]string, len(connections))
	for _, c := range connections {
		ids[c.Key()] = c.ConnectionID
	}
	return ids
}

func TestReconcileCreatesAndReuses(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	r := NewReconciler(store, &MockGenerator{}, nil)

	derived := []types.Connection{edge("wf-1", "", "a"), edge("wf-1", "a", "b"), edge("wf-1", "b", "c")}

	first, err := r.Reconcile(ctx, "wf-1", derived, false)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Created)
	assert.Zero(t, first.Reused)
	require.Len(t, first.Connections, 3)
	assert.Equal(t, "1", first.Connections[0].ConnectionID)
	assert.Equal(t, "3", first.Connections[2].ConnectionID)

	second, err := r.Reconcile(ctx, "wf-1", derived, false)
	require.NoError(t, err)
	assert.Zero(t, second.Created)
	assert.Equal(t, 3, second.Reused)
	assert.Equal(t, first.Connections, second.Connections)

	stored, err := r.repo.connections(ctx, "wf-1")
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	t.Run("AddsWithoutRemoving", func(t *testing.T) {
		result, err := r.Reconcile(ctx, "wf-1", []types.Connection{edge("wf-1", "a", "d")}, false)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Created)

		stored, err := r.repo.connections(ctx, "wf-1")
		require.NoError(t, err)
		assert.Len(t, stored, 4)
	})
}

func TestReconcileUpdatesDefaultFlag(t *testing.T) {
	ctx := context.Background()
	r := NewReconciler(storage.NewMemoryStorage(), &MockGenerator{}, nil)

	plain := edge("wf-1", "group", "fallback")
	_, err := r.Reconcile(ctx, "wf-1", []types.Connection{plain}, false)
	require.NoError(t, err)

	flagged := plain
	flagged.IsConditionGroupDefaultStep = true
	result, err := r.Reconcile(ctx, "wf-1", []types.Connection{flagged}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Reused)
	assert.True(t, result.Connections[0].IsConditionGroupDefaultStep)

	stored, err := r.repo.connections(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].IsConditionGroupDefaultStep)
	assert.Equal(t, "1", stored[0].ConnectionID)
}

func TestReconcileReplaceAll(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	r := NewReconciler(store, &MockGenerator{}, nil)

	for _, id := range []string{"a", "b", "c", "d"} {
		step := testutil.NewAction(message(id), testutil.WithID(id), testutil.WithWorkflow("wf-1"))
		require.NoError(t, r.repo.saveStep(ctx, step))
	}
	other := testutil.NewAction(message("other"), testutil.WithID("c"), testutil.WithWorkflow("wf-2"))
	require.NoError(t, r.repo.saveStep(ctx, other))

	initial, err := r.Reconcile(ctx, "wf-1", []types.Connection{
		edge("wf-1", "", "a"), edge("wf-1", "a", "b"), edge("wf-1", "b", "c"),
	}, false)
	require.NoError(t, err)
	_, err = r.Reconcile(ctx, "wf-2", []types.Connection{edge("wf-2", "", "c")}, false)
	require.NoError(t, err)

	result, err := r.Reconcile(ctx, "wf-1", []types.Connection{
		edge("wf-1", "", "a"), edge("wf-1", "a", "b"), edge("wf-1", "b", "d"),
	}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Reused)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, []string{"c"}, result.PrunedStepIDs)

	before := connectionIDs(initial.Connections)
	after := connectionIDs(result.Connections)
	assert.Equal(t, before[types.EdgeKey{From: "", To: "a"}], after[types.EdgeKey{From: "", To: "a"}])
	assert.Equal(t, before[types.EdgeKey{From: "a", To: "b"}], after[types.EdgeKey{From: "a", To: "b"}])

	stored, err := r.repo.connections(ctx, "wf-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, result.Connections, stored)

	remaining, err := r.repo.steps(ctx, "wf-1")
	require.NoError(t, err)
	var ids []string
	for _, step := range remaining {
		ids = append(ids, step.ID())
	}
	assert.ElementsMatch(t, []string{"a", "b", "d"}, ids)

	// The other workflow's step with the same id and its connection survive.
	otherSteps, err := r.repo.steps(ctx, "wf-2")
	require.NoError(t, err)
	assert.Len(t, otherSteps, 1)
	otherConnections, err := r.repo.connections(ctx, "wf-2")
	require.NoError(t, err)
	assert.Len(t, otherConnections, 1)

	t.Run("EmptyDefinitionPrunesAllSteps", func(t *testing.T) {
		result, err := r.Reconcile(ctx, "wf-1", nil, true)
		require.NoError(t, err)
		assert.Empty(t, result.Connections)
		assert.ElementsMatch(t, []string{"a", "b", "d"}, result.PrunedStepIDs)

		stored, err := r.repo.connections(ctx, "wf-1")
		require.NoError(t, err)
		assert.Empty(t, stored)
	})
}

func TestReconcileGeneratorFailure(t *testing.T) {
	store := storage.NewMemoryStorage()
	r := NewReconciler(store, failingGenerator{}, nil)

	_, err := r.Reconcile(context.Background(), "wf-1", []types.Connection{edge("wf-1", "", "a")}, true)
	assert.ErrorContains(t, err, "clock moved backwards")

	stored, err := r.repo.connections(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRepositorySaveStep(t *testing.T) {
	ctx := context.Background()
	repo := repository{store: storage.NewMemoryStorage()}

	step := testutil.NewAction(message("hello"), testutil.WithID("a"), testutil.WithWorkflow("wf-1"))
	require.NoError(t, repo.saveStep(ctx, step))
	require.NoError(t, repo.saveStep(ctx, step))

	changed := testutil.NewAction(message("bye"), testutil.WithID("a"), testutil.WithWorkflow("wf-1"))
	require.NoError(t, repo.saveStep(ctx, changed))

	steps, err := repo.steps(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, steps, 1)
	saved, ok := steps[0].(*types.ActionStep)
	require.True(t, ok)
	assert.Equal(t, "bye", saved.Data.NewValue)

	require.NoError(t, repo.deleteSteps(ctx, "wf-1", []string{"a"}))
	steps, err = repo.steps(ctx, "wf-1")
	require.NoError(t, err)
	assert.Empty(t, steps)
}
