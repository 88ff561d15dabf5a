package rules

import (
	"fmt"
	"strings"
)

// Pattern is a compiled glob over dot-or-slash-segmented identifiers.
//
// A `*` segment matches exactly one identifier segment, except in final
// position where it matches one or more remaining segments ("door.*" matches
// both "door.front" and "door.front.sensor"). A bare "*" matches everything.
// All other segments are literal, case-sensitive matches.
type Pattern struct {
	raw      string
	segments []string
}

// CompilePattern validates and compiles a glob pattern.
func CompilePattern(raw string) (*Pattern, error) {
	if raw == "" {
		return nil, fmt.Errorf("pattern must not be empty")
	}
	segs := splitSegments(raw)
	for i, s := range segs {
		if s == "" {
			return nil, fmt.Errorf("pattern %q: empty segment at position %d", raw, i)
		}
		if s != "*" && strings.Contains(s, "*") {
			return nil, fmt.Errorf("pattern %q: wildcard must be a whole segment, got %q", raw, s)
		}
	}
	return &Pattern{raw: raw, segments: segs}, nil
}

// Match reports whether id matches the pattern.
func (p *Pattern) Match(id string) bool {
	if id == "" {
		return false
	}
	segs := splitSegments(id)
	for i, ps := range p.segments {
		last := i == len(p.segments)-1
		if i >= len(segs) {
			return false
		}
		if ps == "*" {
			if last {
				return true // consumes the remainder
			}
			continue
		}
		if ps != segs[i] {
			return false
		}
		if last {
			return len(segs) == len(p.segments)
		}
	}
	return false
}

// String returns the original pattern text.
func (p *Pattern) String() string {
	return p.raw
}

func splitSegments(s string) []string {
	return strings.Split(strings.ReplaceAll(s, "/", "."), ".")
}
