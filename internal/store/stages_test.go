package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateStageAppendsToBoard(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	s, err := CreateStage(ctx, db, 1, "Phone Screen", "#8b5cf6")
	require.NoError(t, err)
	assert.Equal(t, 6, s.SortOrder) // after the five system stages
	require.NotNil(t, s.UserID)
	assert.Equal(t, int64(1), *s.UserID)
	assert.False(t, s.IsSystem)

	// Another user does not see it.
	stages, err := ListStagesForUser(ctx, db, 2)
	require.NoError(t, err)
	assert.Len(t, stages, 5)

	stages, err = ListStagesForUser(ctx, db, 1)
	require.NoError(t, err)
	require.Len(t, stages, 6)
	assert.Equal(t, "Phone Screen", stages[5].Name)
}

func TestReorderStages(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	stages, err := ListStagesForUser(ctx, db, 1)
	require.NoError(t, err)
	require.Len(t, stages, 5)

	// Reverse the board.
	var orders []StageOrder
	for i, s := range stages {
		orders = append(orders, StageOrder{StageID: s.ID, SortOrder: len(stages) - i})
	}
	require.NoError(t, ReorderStages(ctx, db, 1, orders))

	got, err := ListStagesForUser(ctx, db, 1)
	require.NoError(t, err)
	assert.Equal(t, "Rejected", got[0].Name)
	assert.Equal(t, "Inbox", got[4].Name)
}

func TestReorderStagesAtomicRollback(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	before, err := ListStagesForUser(ctx, db, 1)
	require.NoError(t, err)

	// Second assignment targets a stage that does not exist; the first one
	// must be rolled back with it.
	err = ReorderStages(ctx, db, 1, []StageOrder{
		{StageID: before[0].ID, SortOrder: 99},
		{StageID: 12345, SortOrder: 1},
	})
	assert.ErrorIs(t, err, ErrReorderFailed)

	after, err := ListStagesForUser(ctx, db, 1)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestReorderStagesForeignStageFails(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	theirs, err := CreateStage(ctx, db, 2, "Their Stage", "#000")
	require.NoError(t, err)

	err = ReorderStages(ctx, db, 1, []StageOrder{{StageID: theirs.ID, SortOrder: 1}})
	assert.ErrorIs(t, err, ErrReorderFailed)
}

func TestReorderStagesLastAssignmentWins(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	stages, err := ListStagesForUser(ctx, db, 1)
	require.NoError(t, err)
	target := stages[0]

	require.NoError(t, ReorderStages(ctx, db, 1, []StageOrder{
		{StageID: target.ID, SortOrder: 42},
		{StageID: target.ID, SortOrder: 7},
	}))

	got, err := GetStage(ctx, db, target.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.SortOrder)
}

func TestDeleteStage(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	mine, err := CreateStage(ctx, db, 1, "Mine", "#111")
	require.NoError(t, err)
	theirs, err := CreateStage(ctx, db, 2, "Theirs", "#222")
	require.NoError(t, err)

	system, err := DefaultStage(ctx, db)
	require.NoError(t, err)

	assert.ErrorIs(t, DeleteStage(ctx, db, 1, system.ID), ErrStageNotVisible)
	assert.ErrorIs(t, DeleteStage(ctx, db, 1, theirs.ID), ErrStageNotVisible)
	assert.ErrorIs(t, DeleteStage(ctx, db, 1, 9999), ErrNotFound)

	require.NoError(t, DeleteStage(ctx, db, 1, mine.ID))
	_, err = GetStage(ctx, db, mine.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteStageInUse(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	mine, err := CreateStage(ctx, db, 1, "Mine", "#111")
	require.NoError(t, err)

	j := insertTestJob(t, db, "SRE", "Acme", "https://acme.com/jobs/1")
	_, err = GetOrCreateUserJob(ctx, db, 1, j.ID)
	require.NoError(t, err)
	_, err = UpdateUserJobStage(ctx, db, 1, j.ID, mine.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, DeleteStage(ctx, db, 1, mine.ID), ErrStageInUse)

	// Moving the record away frees the stage.
	def, err := DefaultStage(ctx, db)
	require.NoError(t, err)
	_, err = UpdateUserJobStage(ctx, db, 1, j.ID, def.ID)
	require.NoError(t, err)
	require.NoError(t, DeleteStage(ctx, db, 1, mine.ID))
}
