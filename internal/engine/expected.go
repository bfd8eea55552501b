package engine

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// ExpectedSet is the set of canonical paths that must exist remotely at the
// end of a pass. The local walk fills it; once sealed it is read-only and is
// the only thing reconciliation consults.
type ExpectedSet struct {
	paths  mapset.Set[string]
	sealed bool
}

// NewExpectedSet returns an empty, unsealed set. Passes run on a single
// goroutine, so the set is not synchronized.
func NewExpectedSet() *ExpectedSet {
	return &ExpectedSet{paths: mapset.NewThreadUnsafeSet[string]()}
}

// Add records a canonical path. It panics if the set is sealed.
func (s *ExpectedSet) Add(canonical string) {
	if s.sealed {
		panic("engine: add to sealed expected set: " + canonical)
	}
	s.paths.Add(canonical)
}

// Seal freezes the set.
func (s *ExpectedSet) Seal() {
	s.sealed = true
}

func (s *ExpectedSet) Sealed() bool {
	return s.sealed
}

func (s *ExpectedSet) Has(canonical string) bool {
	return s.paths.Contains(canonical)
}

func (s *ExpectedSet) Len() int {
	return s.paths.Cardinality()
}

// Paths returns the members in lexical order.
func (s *ExpectedSet) Paths() []string {
	out := s.paths.ToSlice()
	sort.Strings(out)
	return out
}
