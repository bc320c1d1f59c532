package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teresy/marathon/internal/state"
	"github.com/teresy/marathon/internal/storage"
)

func TestStoreAppLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.PutApp(ctx, "/a", 1))
	require.NoError(t, store.PutApp(ctx, "/a", 2))
	require.NoError(t, store.PutApp(ctx, "/b", 1))

	ids, err := store.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []state.PathID{"/a", "/b"}, ids)

	versions, err := store.Versions(ctx, "/a")
	require.NoError(t, err)
	assert.Equal(t, []state.Version{1, 2}, versions)

	require.NoError(t, store.DeleteVersion(ctx, "/a", 1))
	versions, err = store.Versions(ctx, "/a")
	require.NoError(t, err)
	assert.Equal(t, []state.Version{2}, versions)

	// Deleting the last version removes the id.
	require.NoError(t, store.DeleteVersion(ctx, "/a", 2))
	ids, err = store.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []state.PathID{"/b"}, ids)

	require.NoError(t, store.Delete(ctx, "/b"))
	assert.False(t, store.HasAnyApp("/b"))
}

func TestStorePodViewIsIndependent(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	pods := store.Pods()

	require.NoError(t, store.PutApp(ctx, "/shared", 1))
	require.NoError(t, store.PutPod(ctx, "/shared", 2))

	appVersions, err := store.Versions(ctx, "/shared")
	require.NoError(t, err)
	assert.Equal(t, []state.Version{1}, appVersions)

	podVersions, err := pods.Versions(ctx, "/shared")
	require.NoError(t, err)
	assert.Equal(t, []state.Version{2}, podVersions)

	require.NoError(t, pods.Delete(ctx, "/shared"))
	assert.True(t, store.HasAnyApp("/shared"))
	assert.False(t, store.HasAnyPod("/shared"))
}

func TestStoreRootTracking(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	_, err := store.Root(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.PutRoot(ctx, state.RootSnapshot{Version: 1}))
	require.NoError(t, store.PutRoot(ctx, state.RootSnapshot{Version: 2}))

	current, err := store.Root(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.Version(2), current.Version)

	versions, err := store.RootVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []state.Version{1, 2}, versions)

	snapshot, err := store.RootVersion(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, state.Version(1), snapshot.Version)

	missing, err := store.RootVersion(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, store.DeleteRootVersion(ctx, 1))
	assert.False(t, store.HasRoot(1))
	assert.Equal(t, 1, store.RootCount())
}

func TestStorePlans(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	plan := state.NewPlan(state.RootSnapshot{Version: 1}, state.RootSnapshot{Version: 2})
	require.NoError(t, store.PutPlan(ctx, plan))

	refs, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, plan.Ref(), refs[0])

	require.NoError(t, store.DeletePlan(ctx, plan.ID))
	refs, err = store.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestStoreDeleteHook(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.PutApp(ctx, "/a", 1))

	injected := errors.New("delete refused")
	var calls []string
	store.OnDelete = func(kind string, id state.PathID, v state.Version) error {
		calls = append(calls, kind)
		return injected
	}

	assert.ErrorIs(t, store.Delete(ctx, "/a"), injected)
	assert.True(t, store.HasAnyApp("/a"), "refused delete must not apply")
	assert.Equal(t, []string{DeleteApp}, calls)
}

func TestStoreRootVersionHook(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.PutRoot(ctx, state.RootSnapshot{Version: 1}))

	injected := errors.New("hydration refused")
	store.OnRootVersion = func(v state.Version) error {
		if v == 1 {
			return injected
		}
		return nil
	}

	_, err := store.RootVersion(ctx, 1)
	assert.ErrorIs(t, err, injected)
}

func TestStoreClosed(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.Close())

	_, err := store.IDs(ctx)
	assert.ErrorIs(t, err, storage.ErrClosed)
	assert.ErrorIs(t, store.PutApp(ctx, "/a", 1), storage.ErrClosed)
	_, err = store.RootVersions(ctx)
	assert.ErrorIs(t, err, storage.ErrClosed)
}
