// Package progress reconciles the player's completed-word sets between
// the device and the server. Merging is a canonicalized set union:
// commutative, associative, and idempotent, so stale or duplicate
// inputs can never lose a word found offline. A server snapshot is one
// input to the union, never a replacement for local state.
package progress

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Set is a set of canonicalized completed-word keys.
type Set map[string]struct{}

// NewSet builds a canonicalized set from words.
func NewSet(words ...string) Set {
	s := make(Set, len(words))
	for _, w := range words {
		if c := Canonicalize(w); c != "" {
			s[c] = struct{}{}
		}
	}
	return s
}

// Words returns the set's elements in unspecified order.
func (s Set) Words() []string {
	out := make([]string, 0, len(s))
	for w := range s {
		out = append(out, w)
	}
	return out
}

// Canonicalize normalizes a word so semantically identical inputs
// compare equal: trim whitespace, strip combining accents down to base
// Latin letters, uppercase.
func Canonicalize(w string) string {
	w = strings.TrimSpace(w)
	if w == "" {
		return ""
	}

	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(fold, w); err == nil {
		w = folded
	}
	return strings.ToUpper(w)
}

// Merge returns the union of both sets after canonicalizing every
// element.
func Merge(local, server Set) Set {
	merged := make(Set, len(local)+len(server))
	for w := range local {
		if c := Canonicalize(w); c != "" {
			merged[c] = struct{}{}
		}
	}
	for w := range server {
		if c := Canonicalize(w); c != "" {
			merged[c] = struct{}{}
		}
	}
	return merged
}
