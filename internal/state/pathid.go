package state

import (
	"errors"
	"strings"
)

// PathID identifies an app or pod by its position in the group hierarchy,
// e.g. "/prod/db/postgres". Comparison and map keying are by value.
type PathID string

// ErrEmptyPathID is returned when parsing an empty identifier.
var ErrEmptyPathID = errors.New("state: empty path id")

// ParsePathID normalizes a slash-separated identifier into a PathID.
// Leading slashes are made canonical and trailing slashes dropped, so
// "prod/db/" and "/prod/db" parse to the same value.
func ParsePathID(raw string) (PathID, error) {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "", ErrEmptyPathID
	}
	parts := strings.Split(trimmed, "/")
	for _, p := range parts {
		if p == "" {
			return "", errors.New("state: empty path segment in " + raw)
		}
	}
	return PathID("/" + strings.Join(parts, "/")), nil
}

// Segments returns the path components in order.
func (id PathID) Segments() []string {
	return strings.Split(strings.TrimPrefix(string(id), "/"), "/")
}

func (id PathID) String() string {
	return string(id)
}
