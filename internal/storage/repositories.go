// Package storage defines the repository ports the garbage collector reads
// from and deletes through. Backends implement these over the in-memory
// store or Oxia; the collector never mutates record content, only existence.
package storage

import (
	"context"
	"errors"

	"github.com/teresy/marathon/internal/state"
)

// Common errors returned by repository implementations.
var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrClosed is returned when operations are attempted on a closed store.
	ErrClosed = errors.New("storage: store closed")
)

// AppRepository enumerates and deletes app version histories.
type AppRepository interface {
	// IDs returns every app identifier with at least one stored version.
	IDs(ctx context.Context) ([]state.PathID, error)

	// Versions returns the stored versions for one app.
	Versions(ctx context.Context, id state.PathID) ([]state.Version, error)

	// Delete removes the app and its entire version history.
	Delete(ctx context.Context, id state.PathID) error

	// DeleteVersion removes a single version. Deleting an absent version
	// is not an error.
	DeleteVersion(ctx context.Context, id state.PathID, v state.Version) error
}

// PodRepository is shaped exactly like AppRepository; pods and apps are
// retained and collected symmetrically.
type PodRepository interface {
	IDs(ctx context.Context) ([]state.PathID, error)
	Versions(ctx context.Context, id state.PathID) ([]state.Version, error)
	Delete(ctx context.Context, id state.PathID) error
	DeleteVersion(ctx context.Context, id state.PathID, v state.Version) error
}

// GroupRepository stores root snapshots and tracks the current root.
type GroupRepository interface {
	// RootVersions returns the versions of every stored root.
	RootVersions(ctx context.Context) ([]state.Version, error)

	// Root returns the current root snapshot.
	Root(ctx context.Context) (state.RootSnapshot, error)

	// RootVersion returns the snapshot stored at v, or nil when absent.
	RootVersion(ctx context.Context, v state.Version) (*state.RootSnapshot, error)

	// DeleteRootVersion removes the snapshot stored at v. Deleting an
	// absent version is not an error.
	DeleteRootVersion(ctx context.Context, v state.Version) error
}

// DeploymentRepository lists in-flight deployment plans. Only the root
// versions a plan pins are materialized here; full snapshots come from
// GroupRepository.RootVersion.
type DeploymentRepository interface {
	All(ctx context.Context) ([]state.PlanRef, error)
}
