package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult(app PathID, appVersion Version, pod PathID, root Version) ScanResult {
	r := EmptyScanResult()
	r.AppsToDelete.Add(app)
	r.AppVersionsToDelete.Add(app, appVersion)
	r.PodsToDelete.Add(pod)
	r.RootsToDelete.Add(root)
	return r
}

func TestScanResultMergeIsUnion(t *testing.T) {
	a := sampleResult("/a", 1, "/p", 10)
	b := sampleResult("/b", 2, "/q", 20)

	merged := a.Merge(b)

	assert.True(t, merged.AppsToDelete.Has("/a"))
	assert.True(t, merged.AppsToDelete.Has("/b"))
	assert.True(t, merged.AppVersionsToDelete.Has("/a", 1))
	assert.True(t, merged.AppVersionsToDelete.Has("/b", 2))
	assert.True(t, merged.PodsToDelete.Has("/p"))
	assert.True(t, merged.PodsToDelete.Has("/q"))
	assert.True(t, merged.RootsToDelete.Has(10))
	assert.True(t, merged.RootsToDelete.Has(20))
}

func TestScanResultMergeMonoidLaws(t *testing.T) {
	a := sampleResult("/a", 1, "/p", 10)
	b := sampleResult("/b", 2, "/q", 20)
	c := sampleResult("/c", 3, "/r", 30)

	left := a.Merge(b).Merge(c)
	right := a.Merge(b.Merge(c))
	assert.Equal(t, left, right, "merge must be associative")

	assert.Equal(t, a.Merge(b), b.Merge(a), "merge must be commutative")

	assert.Equal(t, a, a.Merge(EmptyScanResult()), "empty must be the identity")
	assert.Equal(t, a, EmptyScanResult().Merge(a), "empty must be the identity")
}

func TestScanResultMergeDoesNotMutateOperands(t *testing.T) {
	a := sampleResult("/a", 1, "/p", 10)
	b := sampleResult("/b", 2, "/q", 20)

	_ = a.Merge(b)

	assert.False(t, a.AppsToDelete.Has("/b"))
	assert.False(t, b.AppsToDelete.Has("/a"))
}

func TestScanResultIsEmpty(t *testing.T) {
	assert.True(t, EmptyScanResult().IsEmpty())

	r := EmptyScanResult()
	r.RootsToDelete.Add(1)
	assert.False(t, r.IsEmpty())

	r = EmptyScanResult()
	r.AppVersionsToDelete.Add("/a", 1)
	assert.False(t, r.IsEmpty())
}

// A result holding only pod candidates is actionable; discarding it would
// leave pod histories uncollectable whenever apps and roots are clean.
func TestScanResultEmptyIncludesPods(t *testing.T) {
	r := EmptyScanResult()
	r.PodsToDelete.Add("/p")
	assert.False(t, r.IsEmpty())

	r = EmptyScanResult()
	r.PodVersionsToDelete.Add("/p", 7)
	assert.False(t, r.IsEmpty())
}

func TestScanResultCounts(t *testing.T) {
	r := sampleResult("/a", 1, "/p", 10)
	r.AppVersionsToDelete.Add("/a", 2)
	r.PodVersionsToDelete.Add("/p", 3)

	counts := r.Counts()
	require.Equal(t, Counts{Apps: 1, AppVersions: 2, Pods: 1, PodVersions: 1, Roots: 1}, counts)
	assert.Equal(t, 6, counts.Total())
}
