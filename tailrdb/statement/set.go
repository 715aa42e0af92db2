// Package statement models a resource state as an unordered set of
// canonical N-Triple/N-Quad lines. Downstream code never interprets the
// lines, it only unions, diffs and patches them.
package statement

import (
	"sort"
	"strings"
)

// Patch line prefixes. A directed delta consists of one line per changed
// statement, "A <stmt>" for additions and "D <stmt>" for removals.
const (
	ModeAdd = 'A'
	ModeDel = 'D'
)

// Set is an unordered collection of statement lines.
type Set map[string]struct{}

// NewSet builds a Set from the given lines.
func NewSet(lines ...string) Set {
	s := make(Set, len(lines))
	for _, l := range lines {
		s.Add(l)
	}
	return s
}

// SplitLines builds a Set from newline separated data, dropping empty
// lines.
func SplitLines(data []byte) Set {
	lines := strings.Split(string(data), "\n")
	s := make(Set, len(lines))
	for _, l := range lines {
		if l != "" {
			s.Add(l)
		}
	}
	return s
}

// Add inserts a line into the set.
func (s Set) Add(line string) {
	s[line] = struct{}{}
}

// Discard removes a line from the set if present.
func (s Set) Discard(line string) {
	delete(s, line)
}

// Equal reports whether both sets contain exactly the same lines.
func (s Set) Equal(o Set) bool {
	if len(s) != len(o) {
		return false
	}
	for l := range s {
		if _, ok := o[l]; !ok {
			return false
		}
	}
	return true
}

// Join serializes the set as newline separated lines in lexicographic
// order, so equal sets always serialize identically.
func (s Set) Join() []byte {
	lines := make([]string, 0, len(s))
	for l := range s {
		lines = append(lines, l)
	}
	sort.Strings(lines)
	return []byte(strings.Join(lines, "\n"))
}

// Diff computes the directed delta turning s into next: one "D " line per
// statement only in s, one "A " line per statement only in next.
func (s Set) Diff(next Set) []byte {
	var lines []string
	for l := range s {
		if _, ok := next[l]; !ok {
			lines = append(lines, string(ModeDel)+" "+l)
		}
	}
	for l := range next {
		if _, ok := s[l]; !ok {
			lines = append(lines, string(ModeAdd)+" "+l)
		}
	}
	sort.Strings(lines)
	return []byte(strings.Join(lines, "\n"))
}

// Patch applies a directed delta produced by Diff to the set in place.
// Lines with an unknown mode byte are ignored, matching the permissive
// reader on the reconstruction path.
func (s Set) Patch(delta []byte) {
	for _, line := range strings.Split(string(delta), "\n") {
		if len(line) < 2 {
			continue
		}
		mode, stmt := line[0], line[2:]
		switch mode {
		case ModeAdd:
			s.Add(stmt)
		case ModeDel:
			s.Discard(stmt)
		}
	}
}
