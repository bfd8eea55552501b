package engine

import (
	"errors"
	"time"

	"github.com/bamsammich/mirror/internal/transport"
)

// Freshness is the remote state of a local file.
type Freshness int

const (
	Missing Freshness = iota + 1
	Stale
	UpToDate
)

func (f Freshness) String() string {
	switch f {
	case Missing:
		return "missing"
	case Stale:
		return "stale"
	case UpToDate:
		return "up-to-date"
	default:
		return "unknown"
	}
}

// LocalEntry is one entry found by the local walk.
type LocalEntry struct {
	Path      string // absolute local path
	Canonical string
	ModTime   time.Time // truncated to whole seconds
	Size      int64
	IsDir     bool
}

// Stamp returns the entry's modification time in remote stamp format.
func (e LocalEntry) Stamp() string {
	return transport.FormatStamp(e.ModTime)
}

// CheckFreshness compares the remote modification stamp at the entry's
// canonical path with the local one. Equality is exact string equality at
// second resolution; content is never compared.
func CheckFreshness(session transport.Session, entry LocalEntry) (Freshness, error) {
	remote, err := session.ModTime(entry.Canonical)
	if errors.Is(err, transport.ErrNotExist) {
		return Missing, nil
	}
	if err != nil {
		return 0, err
	}
	if remote == entry.Stamp() {
		return UpToDate, nil
	}
	return Stale, nil
}
