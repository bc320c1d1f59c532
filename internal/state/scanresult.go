package state

// ScanResult is the deletion candidate set produced by one scan, or by one
// batch within a scan. Batch results fold together with Merge, which is an
// elementwise set union (associative and commutative, with EmptyScanResult
// as identity).
type ScanResult struct {
	AppsToDelete        PathSet
	AppVersionsToDelete VersionsByPath
	PodsToDelete        PathSet
	PodVersionsToDelete VersionsByPath
	RootsToDelete       VersionSet
}

// EmptyScanResult returns a result with all sets allocated and empty.
func EmptyScanResult() ScanResult {
	return ScanResult{
		AppsToDelete:        make(PathSet),
		AppVersionsToDelete: make(VersionsByPath),
		PodsToDelete:        make(PathSet),
		PodVersionsToDelete: make(VersionsByPath),
		RootsToDelete:       make(VersionSet),
	}
}

// Merge returns the elementwise union of both results.
func (r ScanResult) Merge(other ScanResult) ScanResult {
	return ScanResult{
		AppsToDelete:        r.AppsToDelete.Union(other.AppsToDelete),
		AppVersionsToDelete: r.AppVersionsToDelete.Union(other.AppVersionsToDelete),
		PodsToDelete:        r.PodsToDelete.Union(other.PodsToDelete),
		PodVersionsToDelete: r.PodVersionsToDelete.Union(other.PodVersionsToDelete),
		RootsToDelete:       r.RootsToDelete.Union(other.RootsToDelete),
	}
}

// IsEmpty reports whether the result deletes nothing. Pod candidates count:
// a pods-only result is still actionable.
func (r ScanResult) IsEmpty() bool {
	return len(r.AppsToDelete) == 0 &&
		r.AppVersionsToDelete.Count() == 0 &&
		len(r.PodsToDelete) == 0 &&
		r.PodVersionsToDelete.Count() == 0 &&
		len(r.RootsToDelete) == 0
}

// Counts summarizes the result for logs, metrics, and events.
type Counts struct {
	Apps        int `json:"apps"`
	AppVersions int `json:"appVersions"`
	Pods        int `json:"pods"`
	PodVersions int `json:"podVersions"`
	Roots       int `json:"roots"`
}

// Counts returns the per-family candidate counts.
func (r ScanResult) Counts() Counts {
	return Counts{
		Apps:        len(r.AppsToDelete),
		AppVersions: r.AppVersionsToDelete.Count(),
		Pods:        len(r.PodsToDelete),
		PodVersions: r.PodVersionsToDelete.Count(),
		Roots:       len(r.RootsToDelete),
	}
}

// Total returns the total number of records the result would delete.
func (c Counts) Total() int {
	return c.Apps + c.AppVersions + c.Pods + c.PodVersions + c.Roots
}
