// Package state defines the value types shared by the storage layer and the
// garbage collector: hierarchical path identifiers, timestamp versions, root
// snapshots of the deployable topology, and deployment plans.
package state
