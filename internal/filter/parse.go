package filter

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
)

// IgnoreFileName is the per-root rules file, read from the top of the
// synchronized directory.
const IgnoreFileName = ".mirrorignore"

// LoadFile reads gitignore-style rules from path on fsys and adds them to
// the chain. A missing file is not an error.
// Format:
//
//	pattern    → exclude
//	!pattern   → re-include
//	# comment  → skip
//	blank line → skip
func (c *Chain) LoadFile(fsys afero.Fs, path string) error {
	f, err := fsys.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open filter file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if err := c.AddExclude(line); err != nil {
			return fmt.Errorf("filter file %s line %d: %w", path, lineNum, err)
		}
	}

	return scanner.Err()
}
