// Package fieldpath names fields inside a field tree with flat strings and
// resolves those names back to leaves.
//
// A path is a dot-separated sequence of keys ("diagnosis.tumor_size"). An
// element of a sequence-valued field is named with a bracket suffix followed by
// a '$' marker ("ENDORSEMENTS[2]$", "diagnosis.immunostains[1]$").
package fieldpath

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	separator     = "."
	elementMarker = "$"
)

var elementPattern = regexp.MustCompile(`^(.+)\[(\d+)\]\$$`)

// Join extends prefix with key.
func Join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + separator + key
}

// Element names position i of the sequence at path.
func Element(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]" + elementMarker
}

// Path is a parsed field path.
type Path struct {
	Raw string
	// Base is the sequence path when the path names an element.
	Base      string
	Index     int
	IsElement bool
}

// Parse splits a path into its element form when it has one.
func Parse(s string) Path {
	p := Path{Raw: s}
	m := elementPattern.FindStringSubmatch(s)
	if m == nil {
		return p
	}
	idx, err := strconv.Atoi(m[2])
	if err != nil {
		return p
	}
	p.Base, p.Index, p.IsElement = m[1], idx, true
	return p
}

// Segments returns the dotted components of s.
func Segments(s string) []string {
	return strings.Split(s, separator)
}

func (p Path) String() string { return p.Raw }

func dotted(s string) bool {
	return strings.Contains(s, separator)
}
