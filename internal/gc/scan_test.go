package gc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teresy/marathon/internal/logging"
	"github.com/teresy/marathon/internal/state"
	"github.com/teresy/marathon/internal/storage/memory"
)

func newScanner(store *memory.Store, maxVersions, batchSize int) *scanner {
	return &scanner{
		apps:        store,
		pods:        store.Pods(),
		groups:      store,
		deployments: store,
		maxVersions: maxVersions,
		batchSize:   batchSize,
		logger:      logging.DefaultLogger(),
	}
}

func storeRoots(t *testing.T, store *memory.Store, roots ...state.RootSnapshot) {
	t.Helper()
	ctx := context.Background()
	for _, root := range roots {
		require.NoError(t, store.PutRoot(ctx, root))
	}
}

func TestScanUnderCapIsEmpty(t *testing.T) {
	store := memory.NewStore()
	storeRoots(t, store,
		state.RootSnapshot{Version: 1},
		state.RootSnapshot{Version: 2},
		state.RootSnapshot{Version: 3},
	)

	result, err := newScanner(store, 10, 32).scan(context.Background())
	require.NoError(t, err)
	assert.True(t, result.IsEmpty())
}

func TestScanPrunesOldestRoots(t *testing.T) {
	store := memory.NewStore()
	storeRoots(t, store,
		state.RootSnapshot{Version: 1},
		state.RootSnapshot{Version: 2},
		state.RootSnapshot{Version: 3},
		state.RootSnapshot{Version: 4},
		state.RootSnapshot{Version: 5},
	)

	result, err := newScanner(store, 2, 32).scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []state.Version{1, 2, 3}, result.RootsToDelete.Sorted())
}

func TestScanSparesPlanPinnedRoots(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	root1 := state.RootSnapshot{Version: 1}
	storeRoots(t, store, root1,
		state.RootSnapshot{Version: 2},
		state.RootSnapshot{Version: 3},
	)
	require.NoError(t, store.PutPlan(ctx, state.NewPlan(root1, root1)))

	result, err := newScanner(store, 1, 32).scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, []state.Version{2}, result.RootsToDelete.Sorted())
}

func TestScanAllRootsPinnedIsEmpty(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	root1 := state.RootSnapshot{Version: 1}
	root2 := state.RootSnapshot{Version: 2}
	storeRoots(t, store, root1, root2, state.RootSnapshot{Version: 3})
	require.NoError(t, store.PutPlan(ctx, state.NewPlan(root1, root2)))

	// Every root is either plan-pinned or current; the cap is exceeded
	// but nothing is deletable.
	result, err := newScanner(store, 1, 32).scan(ctx)
	require.NoError(t, err)
	assert.True(t, result.IsEmpty())
}

func TestScanDeletesUnusedAppsAndPods(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.PutApp(ctx, "/used", 10))
	require.NoError(t, store.PutApp(ctx, "/orphan", 10))
	require.NoError(t, store.PutPod(ctx, "/pod-used", 10))
	require.NoError(t, store.PutPod(ctx, "/pod-orphan", 10))
	storeRoots(t, store,
		state.RootSnapshot{Version: 1},
		state.RootSnapshot{
			Version: 2,
			Apps:    state.VersionsByPath{"/used": state.NewVersionSet(10)},
			Pods:    state.VersionsByPath{"/pod-used": state.NewVersionSet(10)},
		},
	)

	result, err := newScanner(store, 1, 32).scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, []state.PathID{"/orphan"}, result.AppsToDelete.Sorted())
	assert.Equal(t, []state.PathID{"/pod-orphan"}, result.PodsToDelete.Sorted())
	assert.Empty(t, result.AppVersionsToDelete)
	assert.Empty(t, result.PodVersionsToDelete)
	assert.Equal(t, []state.Version{1}, result.RootsToDelete.Sorted())
}

func TestScanCapsVersionHistories(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	for _, v := range []state.Version{1, 2, 3} {
		require.NoError(t, store.PutApp(ctx, "/app", v))
		require.NoError(t, store.PutPod(ctx, "/pod", v))
	}
	storeRoots(t, store,
		state.RootSnapshot{Version: 1},
		state.RootSnapshot{
			Version: 2,
			Apps:    state.VersionsByPath{"/app": state.NewVersionSet(3)},
			Pods:    state.VersionsByPath{"/pod": state.NewVersionSet(3)},
		},
	)

	// History cap is 1 and only v3 is referenced, so the two oldest
	// unreferenced versions go.
	result, err := newScanner(store, 1, 32).scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, []state.Version{1, 2}, result.AppVersionsToDelete["/app"].Sorted())
	assert.Equal(t, []state.Version{1, 2}, result.PodVersionsToDelete["/pod"].Sorted())
}

// A referenced version is skipped even when it is among the oldest; the cut
// falls on the oldest unreferenced versions instead.
func TestScanVersionCapSkipsReferencedVersions(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	for _, v := range []state.Version{1, 2, 3, 4} {
		require.NoError(t, store.PutApp(ctx, "/app", v))
	}
	storeRoots(t, store,
		state.RootSnapshot{Version: 1},
		state.RootSnapshot{Version: 2},
		state.RootSnapshot{
			Version: 3,
			Apps:    state.VersionsByPath{"/app": state.NewVersionSet(1, 4)},
		},
	)

	result, err := newScanner(store, 2, 32).scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, []state.Version{2, 3}, result.AppVersionsToDelete["/app"].Sorted())
}

func TestScanHydratesPlanRootsForUsage(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.PutApp(ctx, "/plan-only", 10))
	planRoot := state.RootSnapshot{
		Version: 1,
		Apps:    state.VersionsByPath{"/plan-only": state.NewVersionSet(10)},
	}
	storeRoots(t, store, planRoot,
		state.RootSnapshot{Version: 2},
		state.RootSnapshot{Version: 3},
	)
	require.NoError(t, store.PutPlan(ctx, state.NewPlan(planRoot, planRoot)))

	// The app appears only in the plan-pinned root, not in the current
	// one; hydration must keep it alive.
	result, err := newScanner(store, 1, 32).scan(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.AppsToDelete)
	assert.Equal(t, []state.Version{2}, result.RootsToDelete.Sorted())
}

func TestScanSurvivesBatchFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.PutApp(ctx, "/orphan", 10))

	badRoot := state.RootSnapshot{Version: 1}
	goodRoot := state.RootSnapshot{Version: 2}
	storeRoots(t, store, badRoot, goodRoot,
		state.RootSnapshot{Version: 3},
		state.RootSnapshot{Version: 4},
	)
	require.NoError(t, store.PutPlan(ctx, state.NewPlan(badRoot, badRoot)))
	require.NoError(t, store.PutPlan(ctx, state.NewPlan(goodRoot, goodRoot)))

	hydrationFailed := errors.New("hydration failed")
	store.OnRootVersion = func(v state.Version) error {
		if v == 1 {
			return hydrationFailed
		}
		return nil
	}

	// Batch size 1 puts each pinned root in its own batch; the failing
	// batch contributes nothing while the healthy one still reports the
	// orphan and the root candidates.
	result, err := newScanner(store, 1, 1).scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, []state.PathID{"/orphan"}, result.AppsToDelete.Sorted())
	assert.Equal(t, []state.Version{3}, result.RootsToDelete.Sorted())
}

func TestScanFailsWhenRootListingFails(t *testing.T) {
	store := memory.NewStore()
	store.RootVersionsErr = errors.New("listing failed")

	_, err := newScanner(store, 1, 32).scan(context.Background())
	assert.Error(t, err)
}

func TestScanMissingPlanRootIsSkipped(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	storeRoots(t, store,
		state.RootSnapshot{Version: 1},
		state.RootSnapshot{Version: 2},
		state.RootSnapshot{Version: 3},
	)
	// The plan references a root that no longer exists.
	ghost := state.RootSnapshot{Version: 99}
	require.NoError(t, store.PutPlan(ctx, state.NewPlan(ghost, ghost)))

	result, err := newScanner(store, 1, 32).scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, []state.Version{1, 2}, result.RootsToDelete.Sorted())
}
