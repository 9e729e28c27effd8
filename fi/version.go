package fi

import "fmt"

// Version represents a fabric API semantic version. Some wire-visible fields
// are only populated for consumers that negotiated a recent enough API; see
// CompletionQueue.ReadError.
type Version struct {
	Major uint
	Minor uint
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compare returns -1 if v < other, 0 if equal, and 1 if v > other.
func (v Version) Compare(other Version) int {
	switch {
	case v.Major < other.Major:
		return -1
	case v.Major > other.Major:
		return 1
	case v.Minor < other.Minor:
		return -1
	case v.Minor > other.Minor:
		return 1
	default:
		return 0
	}
}

// GE reports whether v is at least other.
func (v Version) GE(other Version) bool {
	return v.Compare(other) >= 0
}

// DefaultAPIVersion is assumed for domains that do not negotiate one.
var DefaultAPIVersion = Version{Major: 1, Minor: 6}
