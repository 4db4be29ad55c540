package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/domain/workspace"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &DB{DB: db}, mock
}

func TestWorkspaceRepository_CreateWithMember(t *testing.T) {
	ctx := context.Background()
	creator := shared.NewID()
	ws, err := workspace.NewWorkspace(shared.NewID(), "Backend", "", creator)
	require.NoError(t, err)

	t.Run("commits both rows", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO workspaces ").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO workspace_members ").
			WithArgs(ws.ID().String(), creator.String()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, NewWorkspaceRepository(db).CreateWithMember(ctx, ws, creator))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("member failure rolls back the workspace", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO workspaces ").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO workspace_members ").WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		err := NewWorkspaceRepository(db).CreateWithMember(ctx, ws, creator)
		require.ErrorIs(t, err, workspace.ErrAlreadyMember)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate name stops before the member insert", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO workspaces ").WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		err := NewWorkspaceRepository(db).CreateWithMember(ctx, ws, creator)
		require.ErrorIs(t, err, workspace.ErrNameTaken)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
