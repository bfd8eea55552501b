package engine

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// PathMapper converts local paths under a synchronized root into canonical
// remote paths: rooted at "/", forward slashes, trailing "/" for directories.
type PathMapper struct {
	root string
}

// NewPathMapper returns a mapper for the tree rooted at root.
func NewPathMapper(root string) PathMapper {
	return PathMapper{root: filepath.Clean(root)}
}

// Root returns the cleaned synchronized root.
func (m PathMapper) Root() string {
	return m.root
}

// Canonical maps localPath to its canonical remote path. The root itself
// maps to "/".
func (m PathMapper) Canonical(localPath string, isDir bool) (string, error) {
	rel, err := filepath.Rel(m.root, filepath.Clean(localPath))
	if err != nil {
		return "", fmt.Errorf("map %s: %w", localPath, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("map %s: outside root %s", localPath, m.root)
	}
	if rel == "." {
		return "/", nil
	}

	p := "/" + filepath.ToSlash(rel)
	if isDir {
		p += "/"
	}
	return p, nil
}

// Local maps a canonical path back to its location under the root.
func (m PathMapper) Local(canonical string) string {
	rel := strings.Trim(path.Clean("/"+canonical), "/")
	if rel == "" {
		return m.root
	}
	return filepath.Join(m.root, filepath.FromSlash(rel))
}

// ParentDirs returns the directory levels above a canonical file path, top
// down: "/a/b/c.txt" yields ["a", "b"].
func ParentDirs(canonical string) []string {
	dir := path.Dir(path.Clean("/" + canonical))
	if dir == "/" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(dir, "/"), "/")
}
