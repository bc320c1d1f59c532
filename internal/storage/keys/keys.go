// Package keys provides key encoding for the KV-backed repositories.
// Versions are encoded as zero-padded decimal nanosecond timestamps so that
// lexicographic key order matches version order:
//
//	/marathon/v1/apps/<escapedId>/versions/<versionZ>
//	/marathon/v1/pods/<escapedId>/versions/<versionZ>
//	/marathon/v1/roots/<versionZ>
//	/marathon/v1/root
//	/marathon/v1/plans/<planId>
//
// Path identifiers contain slashes, so each id is URL-escaped as a single
// key segment.
package keys

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/teresy/marathon/internal/state"
)

// VersionWidth is the number of digits for zero-padded version encoding.
// Width 20 holds any non-negative int64 nanosecond timestamp.
const VersionWidth = 20

// Key prefixes.
const (
	// Prefix is the root prefix for all keys.
	Prefix = "/marathon/v1"

	// AppsPrefix is the prefix for app version records.
	AppsPrefix = Prefix + "/apps"

	// PodsPrefix is the prefix for pod version records.
	PodsPrefix = Prefix + "/pods"

	// RootsPrefix is the prefix for root snapshot records.
	RootsPrefix = Prefix + "/roots"

	// CurrentRootKey holds the current root snapshot.
	CurrentRootKey = Prefix + "/root"

	// PlansPrefix is the prefix for deployment plan records.
	PlansPrefix = Prefix + "/plans"
)

// Common errors.
var (
	// ErrInvalidKey is returned when a key cannot be parsed.
	ErrInvalidKey = errors.New("keys: invalid key format")

	// ErrInvalidVersion is returned when a version is negative.
	ErrInvalidVersion = errors.New("keys: version must be non-negative")
)

// EncodeVersion encodes a version as a zero-padded decimal string.
func EncodeVersion(v state.Version) (string, error) {
	if v < 0 {
		return "", ErrInvalidVersion
	}
	return fmt.Sprintf("%0*d", VersionWidth, int64(v)), nil
}

// DecodeVersion decodes a zero-padded decimal string back to a version.
func DecodeVersion(s string) (state.Version, error) {
	if len(s) != VersionWidth {
		return 0, fmt.Errorf("%w: version %q has width %d, want %d", ErrInvalidKey, s, len(s), VersionWidth)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: version %q: %v", ErrInvalidKey, s, err)
	}
	return state.Version(n), nil
}

// AppVersionsPrefix returns the key prefix covering every version of an app.
func AppVersionsPrefix(id state.PathID) string {
	return AppsPrefix + "/" + url.PathEscape(string(id)) + "/versions/"
}

// AppVersionKey returns the key for one stored app version.
func AppVersionKey(id state.PathID, v state.Version) (string, error) {
	enc, err := EncodeVersion(v)
	if err != nil {
		return "", err
	}
	return AppVersionsPrefix(id) + enc, nil
}

// PodVersionsPrefix returns the key prefix covering every version of a pod.
func PodVersionsPrefix(id state.PathID) string {
	return PodsPrefix + "/" + url.PathEscape(string(id)) + "/versions/"
}

// PodVersionKey returns the key for one stored pod version.
func PodVersionKey(id state.PathID, v state.Version) (string, error) {
	enc, err := EncodeVersion(v)
	if err != nil {
		return "", err
	}
	return PodVersionsPrefix(id) + enc, nil
}

// RootVersionKey returns the key for one stored root snapshot.
func RootVersionKey(v state.Version) (string, error) {
	enc, err := EncodeVersion(v)
	if err != nil {
		return "", err
	}
	return RootsPrefix + "/" + enc, nil
}

// PlanKey returns the key for one stored deployment plan.
func PlanKey(planID string) string {
	return PlansPrefix + "/" + url.PathEscape(planID)
}

// ParseVersionedKey splits a key of the form <familyPrefix>/<escapedId>/versions/<versionZ>
// into its id and version. familyPrefix is AppsPrefix or PodsPrefix.
func ParseVersionedKey(familyPrefix, key string) (state.PathID, state.Version, error) {
	rest, ok := strings.CutPrefix(key, familyPrefix+"/")
	if !ok {
		return "", 0, fmt.Errorf("%w: %q lacks prefix %q", ErrInvalidKey, key, familyPrefix)
	}
	escapedID, versionPart, ok := strings.Cut(rest, "/versions/")
	if !ok {
		return "", 0, fmt.Errorf("%w: %q lacks versions segment", ErrInvalidKey, key)
	}
	rawID, err := url.PathUnescape(escapedID)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %q: %v", ErrInvalidKey, key, err)
	}
	id, err := state.ParsePathID(rawID)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %q: %v", ErrInvalidKey, key, err)
	}
	v, err := DecodeVersion(versionPart)
	if err != nil {
		return "", 0, err
	}
	return id, v, nil
}

// ParseRootVersionKey extracts the version from a root snapshot key.
func ParseRootVersionKey(key string) (state.Version, error) {
	rest, ok := strings.CutPrefix(key, RootsPrefix+"/")
	if !ok {
		return 0, fmt.Errorf("%w: %q lacks prefix %q", ErrInvalidKey, key, RootsPrefix)
	}
	return DecodeVersion(rest)
}
