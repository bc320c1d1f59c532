package state

import "github.com/google/uuid"

// RootSnapshot is one version of the deployable topology. It names every
// (app, version) and (pod, version) pair reachable from that root. Snapshots
// are immutable once stored.
type RootSnapshot struct {
	Version Version        `json:"version"`
	Apps    VersionsByPath `json:"apps,omitempty"`
	Pods    VersionsByPath `json:"pods,omitempty"`
}

// PlanRef is the stored form of a deployment plan: its identifier and the
// two root versions it pins. Full snapshots are fetched on demand.
type PlanRef struct {
	ID              string  `json:"id"`
	OriginalVersion Version `json:"originalVersion"`
	TargetVersion   Version `json:"targetVersion"`
}

// Plan is an in-flight change from one root to another. Both roots, and
// everything they reference, stay pinned while the plan exists.
type Plan struct {
	ID       string       `json:"id"`
	Original RootSnapshot `json:"original"`
	Target   RootSnapshot `json:"target"`
}

// NewPlan builds a plan with a generated identifier.
func NewPlan(original, target RootSnapshot) Plan {
	return Plan{
		ID:       uuid.NewString(),
		Original: original,
		Target:   target,
	}
}

// Ref returns the stored form of the plan.
func (p Plan) Ref() PlanRef {
	return PlanRef{
		ID:              p.ID,
		OriginalVersion: p.Original.Version,
		TargetVersion:   p.Target.Version,
	}
}
