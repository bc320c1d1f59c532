// Package memory implements the storage repositories in process memory.
// It backs the default daemon profile and the test suites; hooks allow
// tests to inject failures or block deletes mid-flight.
package memory

import (
	"context"
	"sync"

	"github.com/teresy/marathon/internal/state"
	"github.com/teresy/marathon/internal/storage"
)

// Delete operation kinds passed to the OnDelete hook.
const (
	DeleteApp        = "app"
	DeleteAppVersion = "appVersion"
	DeletePod        = "pod"
	DeletePodVersion = "podVersion"
	DeleteRoot       = "root"
)

// Store implements AppRepository, PodRepository, GroupRepository, and
// DeploymentRepository over maps. All methods are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	apps    map[state.PathID]state.VersionSet
	pods    map[state.PathID]state.VersionSet
	roots   map[state.Version]state.RootSnapshot
	current *state.RootSnapshot
	plans   map[string]state.Plan
	closed  bool

	// OnDelete, when set, runs before every delete without the store lock
	// held. Returning an error aborts that delete; blocking holds the
	// delete open.
	OnDelete func(kind string, id state.PathID, v state.Version) error

	// OnRootVersion, when set, runs before every root snapshot fetch.
	// Returning an error fails that fetch.
	OnRootVersion func(v state.Version) error

	// RootVersionsErr, when set, fails every RootVersions call.
	RootVersionsErr error
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		apps:  make(map[state.PathID]state.VersionSet),
		pods:  make(map[state.PathID]state.VersionSet),
		roots: make(map[state.Version]state.RootSnapshot),
		plans: make(map[string]state.Plan),
	}
}

// Close marks the store closed; subsequent operations fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) checkOpen() error {
	if s.closed {
		return storage.ErrClosed
	}
	return nil
}

// PutApp records one stored app version.
func (s *Store) PutApp(_ context.Context, id state.PathID, v state.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	set, ok := s.apps[id]
	if !ok {
		set = make(state.VersionSet)
		s.apps[id] = set
	}
	set.Add(v)
	return nil
}

// PutPod records one stored pod version.
func (s *Store) PutPod(_ context.Context, id state.PathID, v state.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	set, ok := s.pods[id]
	if !ok {
		set = make(state.VersionSet)
		s.pods[id] = set
	}
	set.Add(v)
	return nil
}

// PutRoot stores a root snapshot and makes it the current root.
func (s *Store) PutRoot(_ context.Context, root state.RootSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.roots[root.Version] = root
	snapshot := root
	s.current = &snapshot
	return nil
}

// PutPlan stores a deployment plan.
func (s *Store) PutPlan(_ context.Context, plan state.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.plans[plan.ID] = plan
	return nil
}

// DeletePlan removes a deployment plan. Absent plans are not an error.
func (s *Store) DeletePlan(_ context.Context, planID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	delete(s.plans, planID)
	return nil
}

// IDs returns every app identifier with at least one stored version.
func (s *Store) IDs(_ context.Context) ([]state.PathID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return sortedIDs(s.apps), nil
}

// Versions returns the stored versions for one app.
func (s *Store) Versions(_ context.Context, id state.PathID) ([]state.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.apps[id].Sorted(), nil
}

// Delete removes an app and its entire version history.
func (s *Store) Delete(ctx context.Context, id state.PathID) error {
	if err := s.runDeleteHook(DeleteApp, id, 0); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	delete(s.apps, id)
	return nil
}

// DeleteVersion removes a single app version.
func (s *Store) DeleteVersion(ctx context.Context, id state.PathID, v state.Version) error {
	if err := s.runDeleteHook(DeleteAppVersion, id, v); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if set, ok := s.apps[id]; ok {
		delete(set, v)
		if len(set) == 0 {
			delete(s.apps, id)
		}
	}
	return nil
}

// Pods returns a view of the store implementing PodRepository. The pod
// family shares hooks with the rest of the store.
func (s *Store) Pods() storage.PodRepository {
	return podView{s}
}

// podView routes PodRepository calls to the pod maps.
type podView struct {
	s *Store
}

func (p podView) IDs(_ context.Context) ([]state.PathID, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	if err := p.s.checkOpen(); err != nil {
		return nil, err
	}
	return sortedIDs(p.s.pods), nil
}

func (p podView) Versions(_ context.Context, id state.PathID) ([]state.Version, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	if err := p.s.checkOpen(); err != nil {
		return nil, err
	}
	return p.s.pods[id].Sorted(), nil
}

func (p podView) Delete(ctx context.Context, id state.PathID) error {
	if err := p.s.runDeleteHook(DeletePod, id, 0); err != nil {
		return err
	}
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if err := p.s.checkOpen(); err != nil {
		return err
	}
	delete(p.s.pods, id)
	return nil
}

func (p podView) DeleteVersion(ctx context.Context, id state.PathID, v state.Version) error {
	if err := p.s.runDeleteHook(DeletePodVersion, id, v); err != nil {
		return err
	}
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if err := p.s.checkOpen(); err != nil {
		return err
	}
	if set, ok := p.s.pods[id]; ok {
		delete(set, v)
		if len(set) == 0 {
			delete(p.s.pods, id)
		}
	}
	return nil
}

// RootVersions returns the versions of every stored root.
func (s *Store) RootVersions(_ context.Context) ([]state.Version, error) {
	s.mu.RLock()
	injected := s.RootVersionsErr
	s.mu.RUnlock()
	if injected != nil {
		return nil, injected
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	versions := make([]state.Version, 0, len(s.roots))
	for v := range s.roots {
		versions = append(versions, v)
	}
	return state.SortedVersions(versions), nil
}

// Root returns the current root snapshot.
func (s *Store) Root(_ context.Context) (state.RootSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return state.RootSnapshot{}, err
	}
	if s.current == nil {
		return state.RootSnapshot{}, storage.ErrNotFound
	}
	return *s.current, nil
}

// RootVersion returns the snapshot stored at v, or nil when absent.
func (s *Store) RootVersion(_ context.Context, v state.Version) (*state.RootSnapshot, error) {
	if hook := s.rootVersionHook(); hook != nil {
		if err := hook(v); err != nil {
			return nil, err
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	root, ok := s.roots[v]
	if !ok {
		return nil, nil
	}
	snapshot := root
	return &snapshot, nil
}

// DeleteRootVersion removes the snapshot stored at v.
func (s *Store) DeleteRootVersion(ctx context.Context, v state.Version) error {
	if err := s.runDeleteHook(DeleteRoot, "", v); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	delete(s.roots, v)
	return nil
}

// All returns the stored deployment plans as refs.
func (s *Store) All(_ context.Context) ([]state.PlanRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	refs := make([]state.PlanRef, 0, len(s.plans))
	for _, plan := range s.plans {
		refs = append(refs, plan.Ref())
	}
	return refs, nil
}

// HasApp reports whether the app exists with the given version.
func (s *Store) HasApp(id state.PathID, v state.Version) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apps[id].Has(v)
}

// HasAnyApp reports whether any version of the app exists.
func (s *Store) HasAnyApp(id state.PathID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.apps[id]
	return ok
}

// HasPod reports whether the pod exists with the given version.
func (s *Store) HasPod(id state.PathID, v state.Version) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pods[id].Has(v)
}

// HasAnyPod reports whether any version of the pod exists.
func (s *Store) HasAnyPod(id state.PathID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pods[id]
	return ok
}

// HasRoot reports whether a root snapshot exists at v.
func (s *Store) HasRoot(v state.Version) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.roots[v]
	return ok
}

// RootCount returns the number of stored root snapshots.
func (s *Store) RootCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.roots)
}

func (s *Store) runDeleteHook(kind string, id state.PathID, v state.Version) error {
	s.mu.RLock()
	hook := s.OnDelete
	s.mu.RUnlock()
	if hook == nil {
		return nil
	}
	return hook(kind, id, v)
}

func (s *Store) rootVersionHook() func(state.Version) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.OnRootVersion
}

func sortedIDs(m map[state.PathID]state.VersionSet) []state.PathID {
	ids := make(state.PathSet, len(m))
	for id := range m {
		ids.Add(id)
	}
	return ids.Sorted()
}
