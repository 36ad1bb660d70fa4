package modhost

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Version is a parsed module version. Components are compared numerically:
// major, then minor, then patch, then revision.
type Version struct {
	Major      int
	Minor      int
	Patch      int
	Revision   int
	Prerelease string
	Original   string
}

var versionRegex = regexp.MustCompile(`^v?(\d+)\.(\d+)(?:\.(\d+))?(?:\.(\d+))?(?:-([0-9A-Za-z\-\.]+))?(?:\+([0-9A-Za-z\-\.]+))?$`)

// ParseVersion parses MAJOR.MINOR[.PATCH[.REVISION]] with an optional leading
// "v", prerelease suffix and build metadata. Missing components are zero.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	matches := versionRegex.FindStringSubmatch(s)
	if matches == nil {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}

	v := Version{Original: s, Prerelease: matches[5]}
	parts := []*int{&v.Major, &v.Minor, &v.Patch, &v.Revision}
	for i, dst := range parts {
		raw := matches[i+1]
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q: %v", ErrInvalidVersion, s, err)
		}
		*dst = n
	}

	return v, nil
}

// MustParseVersion is ParseVersion for constants; it panics on bad input.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as it was written.
func (v Version) String() string {
	if v.Original != "" {
		return v.Original
	}
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Revision != 0 {
		s += "." + strconv.Itoa(v.Revision)
	}
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}
	return s
}

// Compare returns -1 if v < other, 0 if equal and 1 if v > other.
// A prerelease sorts before the release it precedes.
func (v Version) Compare(other Version) int {
	for _, pair := range [][2]int{
		{v.Major, other.Major},
		{v.Minor, other.Minor},
		{v.Patch, other.Patch},
		{v.Revision, other.Revision},
	} {
		if pair[0] != pair[1] {
			if pair[0] < pair[1] {
				return -1
			}
			return 1
		}
	}

	switch {
	case v.Prerelease == other.Prerelease:
		return 0
	case v.Prerelease == "":
		return 1
	case other.Prerelease == "":
		return -1
	case v.Prerelease < other.Prerelease:
		return -1
	default:
		return 1
	}
}

// InRange reports whether version lies within [minVersion, maxVersion].
// An empty bound leaves that side unconstrained. Any string that does not
// parse is reported as an error.
func InRange(version, minVersion, maxVersion string) (bool, error) {
	v, err := ParseVersion(version)
	if err != nil {
		return false, err
	}

	if minVersion != "" {
		lo, err := ParseVersion(minVersion)
		if err != nil {
			return false, err
		}
		if v.Compare(lo) < 0 {
			return false, nil
		}
	}

	if maxVersion != "" {
		hi, err := ParseVersion(maxVersion)
		if err != nil {
			return false, err
		}
		if v.Compare(hi) > 0 {
			return false, nil
		}
	}

	return true, nil
}
