package filter

import (
	"fmt"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// Chain holds ignore rules in gitignore syntax plus size limits. A nil
// *Chain includes everything.
type Chain struct {
	lines   []string
	ignore  *gitignore.GitIgnore
	minSize int64
	maxSize int64
}

// NewChain creates an empty filter chain.
func NewChain() *Chain {
	return &Chain{}
}

// AddExclude adds a gitignore-style rule. A leading "!" re-includes paths
// excluded by an earlier rule; a trailing "/" matches directories only.
func (c *Chain) AddExclude(pattern string) error {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || pattern == "!" {
		return fmt.Errorf("empty filter pattern")
	}
	c.lines = append(c.lines, pattern)
	c.ignore = gitignore.CompileIgnoreLines(c.lines...)
	return nil
}

// SetMinSize sets the minimum file size filter.
func (c *Chain) SetMinSize(n int64) {
	c.minSize = n
}

// SetMaxSize sets the maximum file size filter.
func (c *Chain) SetMaxSize(n int64) {
	c.maxSize = n
}

// Clone returns an independent copy; rules added to either chain afterwards
// do not affect the other. Cloning a nil chain yields an empty one.
func (c *Chain) Clone() *Chain {
	clone := NewChain()
	if c == nil {
		return clone
	}
	clone.lines = append([]string(nil), c.lines...)
	clone.ignore = c.ignore
	clone.minSize = c.minSize
	clone.maxSize = c.maxSize
	return clone
}

// Empty reports whether the chain has no rules and no size filters.
func (c *Chain) Empty() bool {
	return c == nil || (len(c.lines) == 0 && c.minSize == 0 && c.maxSize == 0)
}

// Rules returns the rule lines in the order they were added.
func (c *Chain) Rules() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.lines...)
}

// Match returns true if the entry should be INCLUDED (not filtered out).
// canonical is the entry's rooted path ("/sub/", "/sub/f.txt"); size is
// ignored for directories.
func (c *Chain) Match(canonical string, isDir bool, size int64) bool {
	if c.Empty() {
		return true
	}

	if !isDir {
		if c.minSize > 0 && size < c.minSize {
			return false
		}
		if c.maxSize > 0 && size > c.maxSize {
			return false
		}
	}

	if c.ignore == nil {
		return true
	}
	rel := strings.TrimPrefix(canonical, "/")
	if isDir && !strings.HasSuffix(rel, "/") {
		rel += "/"
	}
	return !c.ignore.MatchesPath(rel)
}
