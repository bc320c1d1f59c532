package gc

import (
	"context"
	"fmt"

	"github.com/teresy/marathon/internal/logging"
	"github.com/teresy/marathon/internal/state"
	"github.com/teresy/marathon/internal/storage"
)

// scanner computes the deletion candidate set for one cycle. It runs as a
// background task and reports through a single scanDoneMsg; it never touches
// coordinator state directly.
type scanner struct {
	apps        storage.AppRepository
	pods        storage.PodRepository
	groups      storage.GroupRepository
	deployments storage.DeploymentRepository
	maxVersions int
	batchSize   int
	logger      *logging.Logger
}

// scan walks the repositories and returns everything eligible for deletion.
//
// Root snapshots come first: only when the stored root count exceeds the cap
// is there anything to do at all. The current root and every root a stored
// plan references are pinned; the oldest unpinned roots beyond the cap
// become deletion candidates. App and pod usage is then computed from the
// pinning roots, hydrated in bounded batches, and per-id version histories
// over the cap lose their oldest unused versions.
func (s *scanner) scan(ctx context.Context) (state.ScanResult, error) {
	rootVersions, err := s.groups.RootVersions(ctx)
	if err != nil {
		return state.ScanResult{}, fmt.Errorf("list root versions: %w", err)
	}
	state.SortedVersions(rootVersions)
	if len(rootVersions) <= s.maxVersions {
		return state.EmptyScanResult(), nil
	}

	// Current root and stored plans are independent reads; overlap them.
	type rootRead struct {
		root state.RootSnapshot
		err  error
	}
	rootCh := make(chan rootRead, 1)
	go func() {
		root, err := s.groups.Root(ctx)
		rootCh <- rootRead{root: root, err: err}
	}()
	plans, plansErr := s.deployments.All(ctx)
	current := <-rootCh
	if current.err != nil {
		return state.ScanResult{}, fmt.Errorf("read current root: %w", current.err)
	}
	if plansErr != nil {
		return state.ScanResult{}, fmt.Errorf("list deployment plans: %w", plansErr)
	}

	pinned := state.NewVersionSet(current.root.Version)
	var planRoots []state.Version
	for _, plan := range plans {
		for _, v := range []state.Version{plan.OriginalVersion, plan.TargetVersion} {
			if !pinned.Has(v) {
				planRoots = append(planRoots, v)
			}
			pinned.Add(v)
		}
	}

	candidates := make([]state.Version, 0, len(rootVersions))
	for _, v := range rootVersions {
		if !pinned.Has(v) {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		return state.EmptyScanResult(), nil
	}

	excess := len(rootVersions) - s.maxVersions
	if excess > len(candidates) {
		excess = len(candidates)
	}
	rootsToDelete := state.NewVersionSet(candidates[:excess]...)

	allAppIDs, err := s.apps.IDs(ctx)
	if err != nil {
		return state.ScanResult{}, fmt.Errorf("list app ids: %w", err)
	}
	allPodIDs, err := s.pods.IDs(ctx)
	if err != nil {
		return state.ScanResult{}, fmt.Errorf("list pod ids: %w", err)
	}

	// Usage is computed per batch of pinning roots; batching bounds the
	// number of hydrated snapshots held at once. A plan-free store still
	// runs one batch so the current root's usage is accounted.
	batches := chunkVersions(planRoots, s.batchSize)
	if len(batches) == 0 {
		batches = [][]state.Version{nil}
	}

	result := state.EmptyScanResult()
	for i, batch := range batches {
		batchResult, err := s.scanBatch(ctx, batch, current.root, allAppIDs, allPodIDs, rootsToDelete)
		if err != nil {
			s.logger.Warnf("gc scan batch failed", map[string]any{
				"batch": i,
				"error": err.Error(),
			})
			batchResult = state.EmptyScanResult()
		}
		result = result.Merge(batchResult)
	}
	return result, nil
}

// scanBatch hydrates one batch of pinning roots and derives the deletion
// candidates visible from that batch. Hydration is sequential: one snapshot
// fetch in flight at a time.
func (s *scanner) scanBatch(
	ctx context.Context,
	batch []state.Version,
	current state.RootSnapshot,
	allAppIDs, allPodIDs []state.PathID,
	rootsToDelete state.VersionSet,
) (state.ScanResult, error) {
	appsInUse := current.Apps.Union(nil)
	podsInUse := current.Pods.Union(nil)
	for _, v := range batch {
		root, err := s.groups.RootVersion(ctx, v)
		if err != nil {
			return state.ScanResult{}, fmt.Errorf("hydrate root %s: %w", v, err)
		}
		if root == nil {
			continue
		}
		appsInUse = appsInUse.Union(root.Apps)
		podsInUse = podsInUse.Union(root.Pods)
	}

	out := state.EmptyScanResult()
	out.RootsToDelete = rootsToDelete.Union(nil)

	for _, id := range allAppIDs {
		if _, ok := appsInUse[id]; !ok {
			out.AppsToDelete.Add(id)
		}
	}
	for _, id := range allPodIDs {
		if _, ok := podsInUse[id]; !ok {
			out.PodsToDelete.Add(id)
		}
	}

	for id, inUse := range appsInUse {
		doomed, err := s.versionsOverCap(ctx, s.apps.Versions, id, inUse)
		if err != nil {
			return state.ScanResult{}, fmt.Errorf("app %s versions: %w", id, err)
		}
		for _, v := range doomed {
			out.AppVersionsToDelete.Add(id, v)
		}
	}
	for id, inUse := range podsInUse {
		doomed, err := s.versionsOverCap(ctx, s.pods.Versions, id, inUse)
		if err != nil {
			return state.ScanResult{}, fmt.Errorf("pod %s versions: %w", id, err)
		}
		for _, v := range doomed {
			out.PodVersionsToDelete.Add(id, v)
		}
	}
	return out, nil
}

// versionsOverCap returns the oldest versions of id that push its history
// over the cap, skipping any version a pinning root references.
func (s *scanner) versionsOverCap(
	ctx context.Context,
	fetch func(context.Context, state.PathID) ([]state.Version, error),
	id state.PathID,
	inUse state.VersionSet,
) ([]state.Version, error) {
	versions, err := fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(versions) <= s.maxVersions {
		return nil, nil
	}
	state.SortedVersions(versions)
	take := len(versions) - s.maxVersions
	doomed := make([]state.Version, 0, take)
	for _, v := range versions {
		if take == 0 {
			break
		}
		if inUse.Has(v) {
			continue
		}
		doomed = append(doomed, v)
		take--
	}
	return doomed, nil
}

func chunkVersions(versions []state.Version, size int) [][]state.Version {
	if len(versions) == 0 {
		return nil
	}
	chunks := make([][]state.Version, 0, (len(versions)+size-1)/size)
	for start := 0; start < len(versions); start += size {
		end := start + size
		if end > len(versions) {
			end = len(versions)
		}
		chunks = append(chunks, versions[start:end])
	}
	return chunks
}
