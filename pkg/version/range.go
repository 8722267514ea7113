package version

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRange is returned when a range string cannot be parsed.
var ErrInvalidRange = errors.New("invalid version range")

// Range is an interval over the version ordering.
//
// The zero value matches every version (floor 0.0.0 inclusive, no ceiling).
// Range is comparable, so two ranges parsed from equivalent strings are equal
// and can key a map.
type Range struct {
	Floor     Version
	FloorOpen bool // floor excluded

	HasCeiling  bool
	Ceiling     Version
	CeilingOpen bool // ceiling excluded
}

// AtLeast returns the unbounded range v <= x.
func AtLeast(v Version) Range {
	return Range{Floor: v}
}

// Between returns the half-open range [floor, ceiling).
func Between(floor, ceiling Version) Range {
	return Range{Floor: floor, HasCeiling: true, Ceiling: ceiling, CeilingOpen: true}
}

// Exact returns the range [v, v].
func Exact(v Version) Range {
	return Range{Floor: v, HasCeiling: true, Ceiling: v}
}

// ParseRange parses interval notation or a bare version.
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Range{}, fmt.Errorf("%w: empty string", ErrInvalidRange)
	}

	lead, trail := s[0], s[len(s)-1]
	if lead != '[' && lead != '(' {
		v, err := Parse(s)
		if err != nil {
			return Range{}, fmt.Errorf("%w: %w", ErrInvalidRange, err)
		}
		return AtLeast(v), nil
	}
	if trail != ']' && trail != ')' {
		return Range{}, fmt.Errorf("%w: %q: missing closing bracket", ErrInvalidRange, s)
	}

	bounds := strings.Split(s[1:len(s)-1], ",")
	if len(bounds) != 2 {
		return Range{}, fmt.Errorf("%w: %q: want exactly two bounds", ErrInvalidRange, s)
	}
	floor, err := Parse(bounds[0])
	if err != nil {
		return Range{}, fmt.Errorf("%w: %q: %w", ErrInvalidRange, s, err)
	}
	r := Range{Floor: floor, FloorOpen: lead == '('}

	// "[1.0,)" leaves the ceiling off.
	if strings.TrimSpace(bounds[1]) == "" {
		if trail != ')' {
			return Range{}, fmt.Errorf("%w: %q: open ceiling must use ')'", ErrInvalidRange, s)
		}
		return r, nil
	}
	ceiling, err := Parse(bounds[1])
	if err != nil {
		return Range{}, fmt.Errorf("%w: %q: %w", ErrInvalidRange, s, err)
	}
	r.HasCeiling = true
	r.Ceiling = ceiling
	r.CeilingOpen = trail == ')'

	if r.Empty() {
		return Range{}, fmt.Errorf("%w: %q: matches no version", ErrInvalidRange, s)
	}
	return r, nil
}

// MustParseRange is like ParseRange but panics on error.
func MustParseRange(s string) Range {
	r, err := ParseRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Includes reports whether v lies within the range.
func (r Range) Includes(v Version) bool {
	c := v.Compare(r.Floor)
	if c < 0 || (c == 0 && r.FloorOpen) {
		return false
	}
	if !r.HasCeiling {
		return true
	}
	c = v.Compare(r.Ceiling)
	return c < 0 || (c == 0 && !r.CeilingOpen)
}

// Empty reports whether no version can satisfy the range.
func (r Range) Empty() bool {
	if !r.HasCeiling {
		return false
	}
	c := r.Floor.Compare(r.Ceiling)
	if c > 0 {
		return true
	}
	return c == 0 && (r.FloorOpen || r.CeilingOpen)
}

// String renders the range in the notation accepted by ParseRange.
func (r Range) String() string {
	if !r.HasCeiling && !r.FloorOpen {
		return r.Floor.String()
	}

	var b strings.Builder
	if r.FloorOpen {
		b.WriteByte('(')
	} else {
		b.WriteByte('[')
	}
	b.WriteString(r.Floor.String())
	b.WriteByte(',')
	if r.HasCeiling {
		b.WriteString(r.Ceiling.String())
	}
	if r.CeilingOpen || !r.HasCeiling {
		b.WriteByte(')')
	} else {
		b.WriteByte(']')
	}
	return b.String()
}

// MarshalText implements encoding.TextMarshaler.
func (r Range) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Range) UnmarshalText(text []byte) error {
	parsed, err := ParseRange(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
