package filter

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// ParseSize parses a human-readable size string into bytes.
// Bare single-letter suffixes (100K, 1.5G) use powers of 1024 as rsync does;
// spelled-out units follow go-humanize ("10MB" is decimal, "10MiB" binary).
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	switch strings.ToUpper(s[len(s)-1:]) {
	case "K", "M", "G", "T":
		s += "iB"
	}

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size: %q", s)
	}
	if n > uint64(1<<63-1) {
		return 0, fmt.Errorf("size out of range: %q", s)
	}
	return int64(n), nil
}
