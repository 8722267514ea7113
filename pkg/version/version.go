// Package version implements bundle versions and version ranges.
//
// Versions follow the OSGi layout major.minor.micro[.qualifier]. Numeric
// components compare numerically; the qualifier compares lexically, and an
// empty qualifier sorts before any non-empty one.
//
// Ranges use interval notation:
//
//	[1.0.0,2.0.0)   1.0.0 <= v < 2.0.0
//	(1.0,2.0]       1.0.0 <  v <= 2.0.0
//	1.2             v >= 1.2.0 (no upper bound)
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidVersion is returned when a version string cannot be parsed.
var ErrInvalidVersion = errors.New("invalid version")

// Version is a bundle version. The zero value is 0.0.0.
// Version is comparable and may be used as a map key.
type Version struct {
	Major     int
	Minor     int
	Micro     int
	Qualifier string
}

// Zero is the lowest possible version.
var Zero = Version{}

// New returns a version without a qualifier.
func New(major, minor, micro int) Version {
	return Version{Major: major, Minor: minor, Micro: micro}
}

// Parse parses a version string. Missing numeric components default to zero.
func Parse(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}, fmt.Errorf("%w: empty string", ErrInvalidVersion)
	}

	parts := strings.SplitN(s, ".", 4)
	var nums [3]int
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil || !allDigits(parts[i]) {
			return Version{}, fmt.Errorf("%w: %q: bad numeric component %q", ErrInvalidVersion, s, parts[i])
		}
		nums[i] = n
	}

	v := Version{Major: nums[0], Minor: nums[1], Micro: nums[2]}
	if len(parts) == 4 {
		q := parts[3]
		if q == "" || !validQualifier(q) {
			return Version{}, fmt.Errorf("%w: %q: bad qualifier %q", ErrInvalidVersion, s, q)
		}
		v.Qualifier = q
	}
	return v, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func validQualifier(q string) bool {
	for _, r := range q {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}

// Compare returns -1, 0 or +1 depending on whether v is lower than, equal to
// or higher than other.
func (v Version) Compare(other Version) int {
	if c := compareInt(v.Major, other.Major); c != 0 {
		return c
	}
	if c := compareInt(v.Minor, other.Minor); c != 0 {
		return c
	}
	if c := compareInt(v.Micro, other.Micro); c != 0 {
		return c
	}
	return strings.Compare(v.Qualifier, other.Qualifier)
}

// Less reports whether v sorts before other.
func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// String returns the canonical form, always with three numeric components.
func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Micro)
	if v.Qualifier != "" {
		s += "." + v.Qualifier
	}
	return s
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
