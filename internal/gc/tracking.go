package gc

import "github.com/teresy/marathon/internal/state"

// trackedWrites records every store announced while a scan is in flight.
// The scan has no visible effect yet, so writers are acknowledged
// immediately; their records are subtracted from the scan output before
// compaction starts.
type trackedWrites struct {
	appsStored        state.PathSet
	appVersionsStored state.VersionsByPath
	podsStored        state.PathSet
	podVersionsStored state.VersionsByPath
	rootsStored       state.VersionSet
	gcRequested       bool
}

func newTrackedWrites() *trackedWrites {
	return &trackedWrites{
		appsStored:        make(state.PathSet),
		appVersionsStored: make(state.VersionsByPath),
		podsStored:        make(state.PathSet),
		podVersionsStored: make(state.VersionsByPath),
		rootsStored:       make(state.VersionSet),
	}
}

func (t *trackedWrites) noteApp(id state.PathID, v *state.Version) {
	if v == nil {
		t.appsStored.Add(id)
		return
	}
	t.appVersionsStored.Add(id, *v)
}

func (t *trackedWrites) notePod(id state.PathID, v *state.Version) {
	if v == nil {
		t.podsStored.Add(id)
		return
	}
	t.podVersionsStored.Add(id, *v)
}

func (t *trackedWrites) noteRoot(root state.RootSnapshot) {
	t.rootsStored.Add(root.Version)
	for id, versions := range root.Apps {
		for v := range versions {
			t.appVersionsStored.Add(id, v)
		}
	}
	for id, versions := range root.Pods {
		for v := range versions {
			t.podVersionsStored.Add(id, v)
		}
	}
}

func (t *trackedWrites) notePlan(plan state.Plan) {
	t.noteRoot(plan.Original)
	t.noteRoot(plan.Target)
}

// filter subtracts every record announced during the scan from the scan's
// deletion candidates. Anything a writer stored while the scan ran is
// spared, even if the scan believed it was garbage.
func (t *trackedWrites) filter(scan state.ScanResult) state.ScanResult {
	return state.ScanResult{
		AppsToDelete:        scan.AppsToDelete.Diff(t.appsStored.Union(t.appVersionsStored.Keys())),
		AppVersionsToDelete: subtractVersions(scan.AppVersionsToDelete, t.appVersionsStored),
		PodsToDelete:        scan.PodsToDelete.Diff(t.podsStored.Union(t.podVersionsStored.Keys())),
		PodVersionsToDelete: subtractVersions(scan.PodVersionsToDelete, t.podVersionsStored),
		RootsToDelete:       scan.RootsToDelete.Diff(t.rootsStored),
	}
}

func subtractVersions(candidates, stored state.VersionsByPath) state.VersionsByPath {
	out := make(state.VersionsByPath, len(candidates))
	for id, versions := range candidates {
		remaining := versions.Diff(stored[id])
		if len(remaining) > 0 {
			out[id] = remaining
		}
	}
	return out
}

// blockedWrites is the compaction-phase bookkeeping: the deletion set being
// executed, the writers pinned behind it, and whether another cycle was
// requested while compacting.
type blockedWrites struct {
	deletes     state.ScanResult
	pending     []*Handle
	gcRequested bool
}

func newBlockedWrites(deletes state.ScanResult, gcRequested bool) *blockedWrites {
	return &blockedWrites{deletes: deletes, gcRequested: gcRequested}
}

func (b *blockedWrites) pin(h *Handle) {
	b.pending = append(b.pending, h)
}

func (b *blockedWrites) releaseAll() {
	for _, h := range b.pending {
		h.resolve()
	}
	b.pending = nil
}

func (b *blockedWrites) shouldPinApp(id state.PathID, v *state.Version) bool {
	if b.deletes.AppsToDelete.Has(id) {
		return true
	}
	return v != nil && b.deletes.AppVersionsToDelete.Has(id, *v)
}

func (b *blockedWrites) shouldPinPod(id state.PathID, v *state.Version) bool {
	if b.deletes.PodsToDelete.Has(id) {
		return true
	}
	return v != nil && b.deletes.PodVersionsToDelete.Has(id, *v)
}

// shouldPinRoot holds a root whose version is being deleted, or that
// references any app under full deletion, or any app with versions under
// deletion. The app-version check is coarse on purpose: it pins on the app
// id alone rather than risk admitting a root with a dangling version
// reference. Pod references do not pin a root.
func (b *blockedWrites) shouldPinRoot(root state.RootSnapshot) bool {
	if b.deletes.RootsToDelete.Has(root.Version) {
		return true
	}
	for id := range root.Apps {
		if b.deletes.AppsToDelete.Has(id) {
			return true
		}
		if _, ok := b.deletes.AppVersionsToDelete[id]; ok {
			return true
		}
	}
	return false
}
