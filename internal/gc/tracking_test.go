package gc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teresy/marathon/internal/state"
)

func version(v state.Version) *state.Version {
	return &v
}

func TestTrackedWritesFilterSparesAnnouncedRecords(t *testing.T) {
	scan := state.EmptyScanResult()
	scan.AppsToDelete.Add("/a")
	scan.AppsToDelete.Add("/b")
	scan.AppVersionsToDelete.Add("/c", 1)
	scan.AppVersionsToDelete.Add("/c", 2)
	scan.PodsToDelete.Add("/p")
	scan.PodVersionsToDelete.Add("/q", 5)
	scan.RootsToDelete.Add(10)
	scan.RootsToDelete.Add(11)

	tracked := newTrackedWrites()
	tracked.noteApp("/a", nil)
	tracked.noteApp("/c", version(1))
	tracked.notePod("/q", version(5))
	tracked.noteRoot(state.RootSnapshot{Version: 10})

	effective := tracked.filter(scan)

	assert.Equal(t, []state.PathID{"/b"}, effective.AppsToDelete.Sorted())
	assert.Equal(t, []state.Version{2}, effective.AppVersionsToDelete["/c"].Sorted())
	assert.Equal(t, []state.PathID{"/p"}, effective.PodsToDelete.Sorted())
	assert.Empty(t, effective.PodVersionsToDelete)
	assert.Equal(t, []state.Version{11}, effective.RootsToDelete.Sorted())
}

// An app version announced during the scan also spares the app from full
// deletion: the id is live again.
func TestTrackedWritesVersionWriteSparesFullDelete(t *testing.T) {
	scan := state.EmptyScanResult()
	scan.AppsToDelete.Add("/a")

	tracked := newTrackedWrites()
	tracked.noteApp("/a", version(3))

	effective := tracked.filter(scan)
	assert.Empty(t, effective.AppsToDelete)
}

func TestTrackedWritesNoteRootRecordsTransitives(t *testing.T) {
	root := state.RootSnapshot{
		Version: 42,
		Apps:    state.VersionsByPath{"/a": state.NewVersionSet(1, 2)},
		Pods:    state.VersionsByPath{"/p": state.NewVersionSet(3)},
	}

	tracked := newTrackedWrites()
	tracked.noteRoot(root)

	assert.True(t, tracked.rootsStored.Has(42))
	assert.True(t, tracked.appVersionsStored.Has("/a", 1))
	assert.True(t, tracked.appVersionsStored.Has("/a", 2))
	assert.True(t, tracked.podVersionsStored.Has("/p", 3))
}

func TestTrackedWritesNotePlanRecordsBothRoots(t *testing.T) {
	plan := state.Plan{
		ID:       "deploy-1",
		Original: state.RootSnapshot{Version: 1, Apps: state.VersionsByPath{"/a": state.NewVersionSet(1)}},
		Target:   state.RootSnapshot{Version: 2, Pods: state.VersionsByPath{"/p": state.NewVersionSet(2)}},
	}

	tracked := newTrackedWrites()
	tracked.notePlan(plan)

	assert.True(t, tracked.rootsStored.Has(1))
	assert.True(t, tracked.rootsStored.Has(2))
	assert.True(t, tracked.appVersionsStored.Has("/a", 1))
	assert.True(t, tracked.podVersionsStored.Has("/p", 2))
}

func TestBlockedWritesPinApp(t *testing.T) {
	deletes := state.EmptyScanResult()
	deletes.AppsToDelete.Add("/doomed")
	deletes.AppVersionsToDelete.Add("/capped", 1)
	b := newBlockedWrites(deletes, false)

	assert.True(t, b.shouldPinApp("/doomed", nil))
	assert.True(t, b.shouldPinApp("/doomed", version(9)))
	assert.True(t, b.shouldPinApp("/capped", version(1)))
	assert.False(t, b.shouldPinApp("/capped", version(2)))
	assert.False(t, b.shouldPinApp("/capped", nil))
	assert.False(t, b.shouldPinApp("/other", version(1)))
}

func TestBlockedWritesPinPod(t *testing.T) {
	deletes := state.EmptyScanResult()
	deletes.PodsToDelete.Add("/doomed")
	deletes.PodVersionsToDelete.Add("/capped", 1)
	b := newBlockedWrites(deletes, false)

	assert.True(t, b.shouldPinPod("/doomed", nil))
	assert.True(t, b.shouldPinPod("/capped", version(1)))
	assert.False(t, b.shouldPinPod("/capped", version(2)))
}

func TestBlockedWritesPinRoot(t *testing.T) {
	deletes := state.EmptyScanResult()
	deletes.RootsToDelete.Add(5)
	deletes.AppsToDelete.Add("/doomed")
	deletes.AppVersionsToDelete.Add("/capped", 1)
	b := newBlockedWrites(deletes, false)

	assert.True(t, b.shouldPinRoot(state.RootSnapshot{Version: 5}),
		"a root under deletion pins")
	assert.True(t, b.shouldPinRoot(state.RootSnapshot{
		Version: 9,
		Apps:    state.VersionsByPath{"/doomed": state.NewVersionSet(1)},
	}), "a root naming an app under full deletion pins")
	assert.True(t, b.shouldPinRoot(state.RootSnapshot{
		Version: 9,
		Apps:    state.VersionsByPath{"/capped": state.NewVersionSet(99)},
	}), "the app-version check pins on the id alone")
	assert.False(t, b.shouldPinRoot(state.RootSnapshot{
		Version: 9,
		Apps:    state.VersionsByPath{"/other": state.NewVersionSet(1)},
	}))
}

// Root admission looks at app references only; a root naming a pod under
// deletion is admitted as-is.
func TestBlockedWritesRootPodsNotConsulted(t *testing.T) {
	deletes := state.EmptyScanResult()
	deletes.PodsToDelete.Add("/doomed")
	deletes.PodVersionsToDelete.Add("/capped", 1)
	b := newBlockedWrites(deletes, false)

	root := state.RootSnapshot{
		Version: 9,
		Pods: state.VersionsByPath{
			"/doomed": state.NewVersionSet(1),
			"/capped": state.NewVersionSet(1),
		},
	}
	assert.False(t, b.shouldPinRoot(root))
}

func TestBlockedWritesReleaseAll(t *testing.T) {
	b := newBlockedWrites(state.EmptyScanResult(), false)
	h1 := newHandle()
	h2 := newHandle()
	b.pin(h1)
	b.pin(h2)

	b.releaseAll()

	select {
	case <-h1.Done():
	default:
		t.Fatal("first handle not resolved")
	}
	select {
	case <-h2.Done():
	default:
		t.Fatal("second handle not resolved")
	}
	assert.Empty(t, b.pending)
}
