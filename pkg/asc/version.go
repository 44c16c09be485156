package asc

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a graph-node mapping API version such as 0.0.5.
type Version struct {
	Major, Minor, Patch uint16
}

// Supported ABI versions. All of them use the AssemblyScript 0.19 object
// layout; later versions add record fields and imports.
var (
	V0_0_5 = Version{0, 0, 5}
	V0_0_6 = Version{0, 0, 6}
	V0_0_7 = Version{0, 0, 7}
)

// Latest is the newest version this module can speak.
var Latest = V0_0_7

// SupportedVersions lists every version with a registered header codec.
func SupportedVersions() []Version {
	return []Version{V0_0_5, V0_0_6, V0_0_7}
}

// ParseVersion parses a "major.minor.patch" string.
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("invalid API version %q", s)
	}
	var nums [3]uint16
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return Version{}, fmt.Errorf("invalid API version %q: %w", s, err)
		}
		nums[i] = uint16(n)
	}
	return Version{nums[0], nums[1], nums[2]}, nil
}

// MustParseVersion is ParseVersion for constants.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// IsZero reports whether v is the zero Version.
func (v Version) IsZero() bool {
	return v == Version{}
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return cmpU16(v.Major, o.Major)
	case v.Minor != o.Minor:
		return cmpU16(v.Minor, o.Minor)
	default:
		return cmpU16(v.Patch, o.Patch)
	}
}

// AtLeast reports whether v >= o.
func (v Version) AtLeast(o Version) bool {
	return v.Compare(o) >= 0
}

// Supported reports whether a header codec exists for v.
func (v Version) Supported() bool {
	_, ok := headerCodecs[v]
	return ok
}

func cmpU16(a, b uint16) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
