package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateUserJob(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	j := insertTestJob(t, db, "SRE", "Acme", "https://acme.com/jobs/1")

	uj, err := GetOrCreateUserJob(ctx, db, 1, j.ID)
	require.NoError(t, err)

	def, err := DefaultStage(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, def.ID, uj.StageID)
	assert.False(t, uj.Interested)
	assert.Empty(t, uj.Notes)

	// Second call returns the same record.
	again, err := GetOrCreateUserJob(ctx, db, 1, j.ID)
	require.NoError(t, err)
	assert.Equal(t, uj.ID, again.ID)

	// Unknown job: no record created.
	_, err = GetOrCreateUserJob(ctx, db, 1, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateUserJobStageVisibility(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	j := insertTestJob(t, db, "SRE", "Acme", "https://acme.com/jobs/1")
	_, err := GetOrCreateUserJob(ctx, db, 1, j.ID)
	require.NoError(t, err)

	theirs, err := CreateStage(ctx, db, 2, "Theirs", "#222")
	require.NoError(t, err)

	// Foreign stage is rejected and the record stays put.
	_, err = UpdateUserJobStage(ctx, db, 1, j.ID, theirs.ID)
	assert.ErrorIs(t, err, ErrStageNotVisible)

	def, err := DefaultStage(ctx, db)
	require.NoError(t, err)
	got, err := GetOrCreateUserJob(ctx, db, 1, j.ID)
	require.NoError(t, err)
	assert.Equal(t, def.ID, got.StageID)

	mine, err := CreateStage(ctx, db, 1, "Mine", "#111")
	require.NoError(t, err)
	got, err = UpdateUserJobStage(ctx, db, 1, j.ID, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, mine.ID, got.StageID)

	_, err = UpdateUserJobStage(ctx, db, 1, j.ID, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateUserJobFields(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	j := insertTestJob(t, db, "SRE", "Acme", "https://acme.com/jobs/1")
	_, err := GetOrCreateUserJob(ctx, db, 1, j.ID)
	require.NoError(t, err)

	uj, err := UpdateUserJobInterested(ctx, db, 1, j.ID, true)
	require.NoError(t, err)
	assert.True(t, uj.Interested)

	uj, err = UpdateUserJobNotes(ctx, db, 1, j.ID, "referred by Sam")
	require.NoError(t, err)
	assert.Equal(t, "referred by Sam", uj.Notes)

	uj, err = UpdateUserJobDates(ctx, db, 1, j.ID, strptr("2026-08-20"), nil)
	require.NoError(t, err)
	require.NotNil(t, uj.AppliedAt)
	assert.Equal(t, "2026-08-20", *uj.AppliedAt)
	assert.Nil(t, uj.InterviewAt)

	// Clearing a date passes a pointer to the empty string.
	uj, err = UpdateUserJobDates(ctx, db, 1, j.ID, strptr(""), strptr("2026-09-01"))
	require.NoError(t, err)
	assert.Nil(t, uj.AppliedAt)
	require.NotNil(t, uj.InterviewAt)

	uj, err = UpdateUserJobMeta(ctx, db, 1, j.ID, "https://acme.com/apply", "sam@acme.com", "120k")
	require.NoError(t, err)
	assert.Equal(t, "https://acme.com/apply", uj.ApplicationURL)
	assert.Equal(t, "sam@acme.com", uj.Contact)
	assert.Equal(t, "120k", uj.SalaryExpectation)

	// Updates on a record that does not exist report not found.
	_, err = UpdateUserJobNotes(ctx, db, 2, j.ID, "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteUserJob(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	j := insertTestJob(t, db, "SRE", "Acme", "https://acme.com/jobs/1")
	_, err := GetOrCreateUserJob(ctx, db, 1, j.ID)
	require.NoError(t, err)

	require.NoError(t, DeleteUserJob(ctx, db, 1, j.ID))
	assert.ErrorIs(t, DeleteUserJob(ctx, db, 1, j.ID), ErrNotFound)

	// The job itself survives.
	_, err = GetJob(ctx, db, j.ID)
	assert.NoError(t, err)
}

func TestListUserJobsScopedToUser(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	j1 := insertTestJob(t, db, "SRE", "Acme", "https://acme.com/jobs/1")
	j2 := insertTestJob(t, db, "Backend", "Initech", "https://initech.com/jobs/2")

	_, err := GetOrCreateUserJob(ctx, db, 1, j1.ID)
	require.NoError(t, err)
	_, err = GetOrCreateUserJob(ctx, db, 1, j2.ID)
	require.NoError(t, err)
	_, err = GetOrCreateUserJob(ctx, db, 2, j1.ID)
	require.NoError(t, err)

	mine, err := ListUserJobs(ctx, db, 1)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	theirs, err := ListUserJobs(ctx, db, 2)
	require.NoError(t, err)
	assert.Len(t, theirs, 1)
}

func TestDeleteUserCascades(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	u, err := CreateUser(ctx, db, "sam@example.com", "12345")
	require.NoError(t, err)

	j := insertTestJob(t, db, "SRE", "Acme", "https://acme.com/jobs/1")
	_, err = GetOrCreateUserJob(ctx, db, u.ID, j.ID)
	require.NoError(t, err)
	custom, err := CreateStage(ctx, db, u.ID, "Mine", "#111")
	require.NoError(t, err)

	require.NoError(t, DeleteUser(ctx, db, u.ID))

	board, err := ListUserJobs(ctx, db, u.ID)
	require.NoError(t, err)
	assert.Empty(t, board)
	_, err = GetStage(ctx, db, custom.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	users, err := ListUsers(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, users)
}
