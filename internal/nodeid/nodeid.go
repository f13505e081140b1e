// Package nodeid generates and validates the 36-byte UUIDs spec.md uses
// to identify nodes, publishers, and subscribers. UUID generation is an
// external collaborator per spec.md section 1 ("out of scope"); this
// package is a thin wrapper so the rest of the tree has one import site.
package nodeid

import "github.com/google/uuid"

// New returns a fresh canonical (36-byte, hyphenated) UUID string.
func New() string {
	return uuid.New().String()
}

// Valid reports whether s is a syntactically valid UUID of any wire
// length accepted by spec.md's PubInfo/SubInfo layouts (36 bytes).
func Valid(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
