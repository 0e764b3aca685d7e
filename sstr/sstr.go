// Package sstr implements a non-owning (pointer, length) string view. A Go
// string already is such a view over its backing array, so String is a thin
// wrapper adding search/compare/split primitives, without ever allocating a
// copy of the underlying bytes. No other package of the assembler imports
// it: lineparse and eval work on plain strings.
package sstr

import "strings"

// String is a non-owning view over a run of bytes.
type String struct {
	s string
}

// New wraps s as a String view. No copy is made.
func New(s string) String {
	return String{s: s}
}

// Len returns the view's length in bytes.
func (s String) Len() int {
	return len(s.s)
}

// Empty reports whether the view has zero length.
func (s String) Empty() bool {
	return len(s.s) == 0
}

// Raw returns the underlying string.
func (s String) Raw() string {
	return s.s
}

// At returns the byte at index i.
func (s String) At(i int) byte {
	return s.s[i]
}

// Slice returns the sub-view [from:to), still non-owning.
func (s String) Slice(from, to int) String {
	return String{s: s.s[from:to]}
}

// From returns the sub-view [from:len), still non-owning.
func (s String) From(from int) String {
	return String{s: s.s[from:]}
}

// IndexByte returns the index of the first occurrence of c, or -1.
func (s String) IndexByte(c byte) int {
	return strings.IndexByte(s.s, c)
}

// HasPrefix reports whether the view starts with prefix.
func (s String) HasPrefix(prefix string) bool {
	return strings.HasPrefix(s.s, prefix)
}

// TrimSpace returns a view with leading and trailing ASCII whitespace removed.
func (s String) TrimSpace() String {
	return String{s: strings.TrimSpace(s.s)}
}

// SplitFirstField splits the view at the first run of whitespace, returning
// the field before it and the remainder (with leading whitespace consumed).
func (s String) SplitFirstField() (field String, rest String) {
	i := 0
	for i < len(s.s) && !isSpace(s.s[i]) {
		i++
	}
	field = String{s: s.s[:i]}
	j := i
	for j < len(s.s) && isSpace(s.s[j]) {
		j++
	}
	rest = String{s: s.s[j:]}
	return field, rest
}

// EqualFold reports case-insensitive equality against other.
func (s String) EqualFold(other string) bool {
	return strings.EqualFold(s.s, other)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t'
}
