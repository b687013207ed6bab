package workspace

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuomag9/paperdrive/internal/database/dbtest"
	"github.com/fuomag9/paperdrive/internal/errs"
	"github.com/fuomag9/paperdrive/internal/logger"
	"github.com/fuomag9/paperdrive/internal/models"
	"github.com/fuomag9/paperdrive/internal/storage/storagetest"
)

func TestDirectory_ResolveCreatesOnce(t *testing.T) {
	dir := NewDirectory(dbtest.Open(t), logger.Nop())
	mem := storagetest.NewMemory()
	ctx := context.Background()

	first, err := dir.Resolve(ctx, "ada@example.org", mem)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := dir.Resolve(ctx, "ada@example.org", mem)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, mem.Calls["create_container"])
}

func TestDirectory_ResolveIdentity(t *testing.T) {
	dir := NewDirectory(dbtest.Open(t), logger.Nop())
	mem := storagetest.NewMemory()
	ctx := context.Background()

	ws, err := dir.Resolve(ctx, "ada@example.org", mem)
	require.NoError(t, err)

	identity, err := dir.ResolveIdentity(ctx, ws)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.org", identity)

	_, err = dir.ResolveIdentity(ctx, "unknown-folder")
	assert.ErrorIs(t, err, errs.ErrWorkspaceNotFound)
}

func TestDirectory_ResolveProviderFailure(t *testing.T) {
	dir := NewDirectory(dbtest.Open(t), logger.Nop())
	mem := storagetest.NewMemory()
	mem.Err = errors.Join(errs.ErrRemote, errors.New("quota exceeded"))

	_, err := dir.Resolve(context.Background(), "ada@example.org", mem)
	assert.ErrorIs(t, err, errs.ErrRemote)

	_, err = dir.ResolveIdentity(context.Background(), "obj-1")
	assert.ErrorIs(t, err, errs.ErrWorkspaceNotFound, "no mapping must be written when creation fails")
}

func TestDirectory_ResolveRejectsEmptyIdentity(t *testing.T) {
	dir := NewDirectory(dbtest.Open(t), logger.Nop())
	_, err := dir.Resolve(context.Background(), "", storagetest.NewMemory())
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestDirectory_ResolveSurfacesMappingConflict(t *testing.T) {
	db := dbtest.Open(t)
	dir := NewDirectory(db, logger.Nop())
	mem := storagetest.NewMemory()

	// The provider hands out obj-1, which is already mapped to someone else.
	require.NoError(t, db.Create(&models.WorkspaceMapping{Identity: "other@example.org", WorkspaceID: "obj-1"}).Error)

	_, err := dir.Resolve(context.Background(), "ada@example.org", mem)
	assert.Error(t, err)
}
