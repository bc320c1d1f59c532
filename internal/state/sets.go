package state

import "sort"

// PathSet is a set of path identifiers.
type PathSet map[PathID]struct{}

// NewPathSet builds a set from the given ids.
func NewPathSet(ids ...PathID) PathSet {
	s := make(PathSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id into the set.
func (s PathSet) Add(id PathID) {
	s[id] = struct{}{}
}

// Has reports whether id is in the set.
func (s PathSet) Has(id PathID) bool {
	_, ok := s[id]
	return ok
}

// Union returns a new set containing the members of both sets.
func (s PathSet) Union(other PathSet) PathSet {
	out := make(PathSet, len(s)+len(other))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

// Diff returns the members of s that are not in other.
func (s PathSet) Diff(other PathSet) PathSet {
	out := make(PathSet, len(s))
	for id := range s {
		if !other.Has(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// Sorted returns the members in lexicographic order.
func (s PathSet) Sorted() []PathID {
	out := make([]PathID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// VersionsByPath maps a path identifier to a set of versions.
type VersionsByPath map[PathID]VersionSet

// Add inserts v into the set for id, creating the set if needed.
func (m VersionsByPath) Add(id PathID, v Version) {
	set, ok := m[id]
	if !ok {
		set = make(VersionSet)
		m[id] = set
	}
	set.Add(v)
}

// Has reports whether (id, v) is present.
func (m VersionsByPath) Has(id PathID, v Version) bool {
	return m[id].Has(v)
}

// Keys returns the path identifiers as a set.
func (m VersionsByPath) Keys() PathSet {
	out := make(PathSet, len(m))
	for id := range m {
		out[id] = struct{}{}
	}
	return out
}

// Union returns a new map with the elementwise union of both maps.
func (m VersionsByPath) Union(other VersionsByPath) VersionsByPath {
	out := make(VersionsByPath, len(m)+len(other))
	for id, set := range m {
		out[id] = set.Union(nil)
	}
	for id, set := range other {
		if existing, ok := out[id]; ok {
			out[id] = existing.Union(set)
		} else {
			out[id] = set.Union(nil)
		}
	}
	return out
}

// Count returns the total number of (id, version) pairs.
func (m VersionsByPath) Count() int {
	n := 0
	for _, set := range m {
		n += len(set)
	}
	return n
}
