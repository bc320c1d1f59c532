// Package oxia implements the storage repositories over an Oxia namespace.
package oxia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	oxiaclient "github.com/oxia-db/oxia/oxia"

	"github.com/teresy/marathon/internal/state"
	"github.com/teresy/marathon/internal/storage"
	"github.com/teresy/marathon/internal/storage/keys"
)

// Config configures the Oxia storage backend.
type Config struct {
	// ServiceAddress is the Oxia service endpoint (e.g. "localhost:6648").
	ServiceAddress string

	// Namespace scopes all keys (e.g. "marathon/cluster-1").
	Namespace string

	// RequestTimeout is the timeout for individual requests.
	// Default: 30 seconds.
	RequestTimeout time.Duration
}

// Store implements AppRepository, GroupRepository, and DeploymentRepository
// over Oxia; Pods returns the symmetric PodRepository view. Records are
// JSON documents; version ordering is carried by the key encoding.
type Store struct {
	client oxiaclient.SyncClient

	mu     sync.RWMutex
	closed bool
}

// New connects a store to the configured Oxia namespace.
func New(cfg Config) (*Store, error) {
	if cfg.ServiceAddress == "" {
		return nil, errors.New("oxia: service address is required")
	}
	if cfg.Namespace == "" {
		return nil, errors.New("oxia: namespace is required")
	}

	opts := []oxiaclient.ClientOption{
		oxiaclient.WithNamespace(cfg.Namespace),
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, oxiaclient.WithRequestTimeout(cfg.RequestTimeout))
	}

	client, err := oxiaclient.NewSyncClient(cfg.ServiceAddress, opts...)
	if err != nil {
		return nil, fmt.Errorf("oxia: failed to create client: %w", err)
	}
	return &Store{client: client}, nil
}

// Close releases the client connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.ErrClosed
	}
	return nil
}

// versionRecord is the stored form of one app or pod version.
type versionRecord struct {
	ID       state.PathID  `json:"id"`
	Version  state.Version `json:"version"`
	StoredAt int64         `json:"storedAt"`
}

// planRecord is the stored form of a deployment plan.
type planRecord struct {
	ID              string        `json:"id"`
	OriginalVersion state.Version `json:"originalVersion"`
	TargetVersion   state.Version `json:"targetVersion"`
}

// PutApp records one stored app version.
func (s *Store) PutApp(ctx context.Context, id state.PathID, v state.Version) error {
	return s.putVersioned(ctx, keys.AppVersionKey, id, v)
}

// PutPod records one stored pod version.
func (s *Store) PutPod(ctx context.Context, id state.PathID, v state.Version) error {
	return s.putVersioned(ctx, keys.PodVersionKey, id, v)
}

func (s *Store) putVersioned(ctx context.Context, keyFn func(state.PathID, state.Version) (string, error), id state.PathID, v state.Version) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	key, err := keyFn(id, v)
	if err != nil {
		return err
	}
	record := versionRecord{ID: id, Version: v, StoredAt: time.Now().UnixMilli()}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("oxia: marshal version record: %w", err)
	}
	if _, _, err := s.client.Put(ctx, key, data); err != nil {
		return fmt.Errorf("oxia: put %s: %w", key, err)
	}
	return nil
}

// PutRoot stores a root snapshot and makes it the current root.
func (s *Store) PutRoot(ctx context.Context, root state.RootSnapshot) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	key, err := keys.RootVersionKey(root.Version)
	if err != nil {
		return err
	}
	data, err := json.Marshal(root)
	if err != nil {
		return fmt.Errorf("oxia: marshal root: %w", err)
	}
	if _, _, err := s.client.Put(ctx, key, data); err != nil {
		return fmt.Errorf("oxia: put %s: %w", key, err)
	}
	if _, _, err := s.client.Put(ctx, keys.CurrentRootKey, data); err != nil {
		return fmt.Errorf("oxia: put current root: %w", err)
	}
	return nil
}

// PutPlan stores a deployment plan ref. The plan's roots are stored
// separately through PutRoot.
func (s *Store) PutPlan(ctx context.Context, plan state.Plan) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	record := planRecord{
		ID:              plan.ID,
		OriginalVersion: plan.Original.Version,
		TargetVersion:   plan.Target.Version,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("oxia: marshal plan: %w", err)
	}
	if _, _, err := s.client.Put(ctx, keys.PlanKey(plan.ID), data); err != nil {
		return fmt.Errorf("oxia: put plan %s: %w", plan.ID, err)
	}
	return nil
}

// DeletePlan removes a deployment plan. Absent plans are not an error.
func (s *Store) DeletePlan(ctx context.Context, planID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.delete(ctx, keys.PlanKey(planID))
}

// IDs returns every app identifier with at least one stored version.
func (s *Store) IDs(ctx context.Context) ([]state.PathID, error) {
	return s.familyIDs(ctx, keys.AppsPrefix)
}

// Versions returns the stored versions for one app.
func (s *Store) Versions(ctx context.Context, id state.PathID) ([]state.Version, error) {
	return s.familyVersions(ctx, keys.AppsPrefix, keys.AppVersionsPrefix(id))
}

// Delete removes an app and its entire version history.
func (s *Store) Delete(ctx context.Context, id state.PathID) error {
	return s.deletePrefix(ctx, keys.AppVersionsPrefix(id))
}

// DeleteVersion removes a single app version.
func (s *Store) DeleteVersion(ctx context.Context, id state.PathID, v state.Version) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	key, err := keys.AppVersionKey(id, v)
	if err != nil {
		return err
	}
	return s.delete(ctx, key)
}

// Pods returns the PodRepository view of the store.
func (s *Store) Pods() storage.PodRepository {
	return podView{s}
}

type podView struct {
	s *Store
}

func (p podView) IDs(ctx context.Context) ([]state.PathID, error) {
	return p.s.familyIDs(ctx, keys.PodsPrefix)
}

func (p podView) Versions(ctx context.Context, id state.PathID) ([]state.Version, error) {
	return p.s.familyVersions(ctx, keys.PodsPrefix, keys.PodVersionsPrefix(id))
}

func (p podView) Delete(ctx context.Context, id state.PathID) error {
	return p.s.deletePrefix(ctx, keys.PodVersionsPrefix(id))
}

func (p podView) DeleteVersion(ctx context.Context, id state.PathID, v state.Version) error {
	if err := p.s.checkOpen(); err != nil {
		return err
	}
	key, err := keys.PodVersionKey(id, v)
	if err != nil {
		return err
	}
	return p.s.delete(ctx, key)
}

// RootVersions returns the versions of every stored root.
func (s *Store) RootVersions(ctx context.Context) ([]state.Version, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	kvs, err := s.list(ctx, keys.RootsPrefix)
	if err != nil {
		return nil, err
	}
	versions := make([]state.Version, 0, len(kvs))
	for _, kv := range kvs {
		v, err := keys.ParseRootVersionKey(kv.key)
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	return state.SortedVersions(versions), nil
}

// Root returns the current root snapshot.
func (s *Store) Root(ctx context.Context) (state.RootSnapshot, error) {
	if err := s.checkOpen(); err != nil {
		return state.RootSnapshot{}, err
	}
	_, value, _, err := s.client.Get(ctx, keys.CurrentRootKey)
	if err != nil {
		if errors.Is(err, oxiaclient.ErrKeyNotFound) {
			return state.RootSnapshot{}, storage.ErrNotFound
		}
		return state.RootSnapshot{}, fmt.Errorf("oxia: get current root: %w", err)
	}
	var root state.RootSnapshot
	if err := json.Unmarshal(value, &root); err != nil {
		return state.RootSnapshot{}, fmt.Errorf("oxia: decode current root: %w", err)
	}
	return root, nil
}

// RootVersion returns the snapshot stored at v, or nil when absent.
func (s *Store) RootVersion(ctx context.Context, v state.Version) (*state.RootSnapshot, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	key, err := keys.RootVersionKey(v)
	if err != nil {
		return nil, err
	}
	_, value, _, err := s.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, oxiaclient.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("oxia: get %s: %w", key, err)
	}
	var root state.RootSnapshot
	if err := json.Unmarshal(value, &root); err != nil {
		return nil, fmt.Errorf("oxia: decode root %s: %w", v, err)
	}
	return &root, nil
}

// DeleteRootVersion removes the snapshot stored at v.
func (s *Store) DeleteRootVersion(ctx context.Context, v state.Version) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	key, err := keys.RootVersionKey(v)
	if err != nil {
		return err
	}
	return s.delete(ctx, key)
}

// All returns the stored deployment plans as refs.
func (s *Store) All(ctx context.Context) ([]state.PlanRef, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	kvs, err := s.list(ctx, keys.PlansPrefix)
	if err != nil {
		return nil, err
	}
	refs := make([]state.PlanRef, 0, len(kvs))
	for _, kv := range kvs {
		var record planRecord
		if err := json.Unmarshal(kv.value, &record); err != nil {
			continue
		}
		refs = append(refs, state.PlanRef{
			ID:              record.ID,
			OriginalVersion: record.OriginalVersion,
			TargetVersion:   record.TargetVersion,
		})
	}
	return refs, nil
}

func (s *Store) familyIDs(ctx context.Context, familyPrefix string) ([]state.PathID, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	kvs, err := s.list(ctx, familyPrefix)
	if err != nil {
		return nil, err
	}
	ids := make(state.PathSet)
	for _, kv := range kvs {
		id, _, err := keys.ParseVersionedKey(familyPrefix, kv.key)
		if err != nil {
			continue
		}
		ids.Add(id)
	}
	return ids.Sorted(), nil
}

func (s *Store) familyVersions(ctx context.Context, familyPrefix, versionsPrefix string) ([]state.Version, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	kvs, err := s.list(ctx, versionsPrefix)
	if err != nil {
		return nil, err
	}
	versions := make([]state.Version, 0, len(kvs))
	for _, kv := range kvs {
		_, v, err := keys.ParseVersionedKey(familyPrefix, kv.key)
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	return state.SortedVersions(versions), nil
}

func (s *Store) deletePrefix(ctx context.Context, prefix string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	kvs, err := s.list(ctx, prefix)
	if err != nil {
		return err
	}
	for _, kv := range kvs {
		if err := s.delete(ctx, kv.key); err != nil {
			return err
		}
	}
	return nil
}

// delete removes a key, treating a missing key as already deleted.
func (s *Store) delete(ctx context.Context, key string) error {
	err := s.client.Delete(ctx, key)
	if err != nil {
		if errors.Is(err, oxiaclient.ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("oxia: delete %s: %w", key, err)
	}
	return nil
}

type kv struct {
	key   string
	value []byte
}

// list returns every key-value pair under prefix. Oxia sorts keys
// hierarchically, so a prefix ending in '/' lists its direct children via
// the double-slash end key; otherwise the range ends at prefixEnd.
func (s *Store) list(ctx context.Context, prefix string) ([]kv, error) {
	startKey := prefix
	var endKey string
	if len(startKey) > 0 && startKey[len(startKey)-1] == '/' {
		endKey = startKey + "/"
	} else {
		endKey = prefixEnd(startKey)
	}

	results := s.client.RangeScan(ctx, startKey, endKey)
	var kvs []kv
	for result := range results {
		if result.Err != nil {
			return nil, fmt.Errorf("oxia: range scan %s: %w", prefix, result.Err)
		}
		kvs = append(kvs, kv{key: result.Key, value: result.Value})
	}
	return kvs, nil
}

// prefixEnd returns the key lexicographically greater than all keys with
// the given prefix.
func prefixEnd(prefix string) string {
	if prefix == "" {
		return ""
	}
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xFF {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}
