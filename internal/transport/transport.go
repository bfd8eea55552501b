package transport

import (
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

var (
	// ErrConnect is returned by Dial when the session cannot be established
	// (unreachable host, refused login).
	ErrConnect = errors.New("connect")

	// ErrConnLost marks a failure of the underlying connection rather than of
	// a single remote operation. A session that returned it is unusable.
	ErrConnLost = errors.New("connection lost")

	// ErrNotExist is returned by ModTime when the remote entry is absent.
	ErrNotExist = errors.New("remote entry does not exist")
)

// RemoteEntry describes one entry of a remote directory listing.
type RemoteEntry struct {
	Name    string
	Parent  string // canonical path of the listed directory
	ModTime string // Stamp of the entry's modification time
	Size    int64
	IsDir   bool
}

// Path returns the canonical path of the entry, with a trailing slash for
// directories.
func (e RemoteEntry) Path() string {
	p := path.Join("/", e.Parent, e.Name)
	if e.IsDir {
		p += "/"
	}
	return p
}

// Session is a stateful connection to a remote file store. The current
// working directory is part of its state, so a Session must not be used by
// more than one goroutine at a time.
//
// Paths are canonical: rooted at "/" which the session maps onto its
// configured base directory. Relative paths resolve against the working
// directory.
type Session interface {
	// SetBinaryMode switches content transfers to binary (image) mode.
	SetBinaryMode() error

	// ChangeDir makes dir the working directory. It fails if dir does not
	// exist or is not a directory.
	ChangeDir(dir string) error

	// List returns the entries of dir, excluding "." and "..".
	List(dir string) ([]RemoteEntry, error)

	// Store writes the full content of r to p, replacing any existing file.
	Store(p string, r io.Reader) error

	// Retrieve opens p for reading. The caller must close the reader.
	Retrieve(p string) (io.ReadCloser, error)

	// DeleteFile removes a single file.
	DeleteFile(p string) error

	// RemoveDir removes an empty directory.
	RemoveDir(dir string) error

	// MakeDir creates a single directory level.
	MakeDir(dir string) error

	// ModTime returns the modification Stamp of p, or ErrNotExist.
	ModTime(p string) (string, error)

	// SetModTime sets the modification time of p from a Stamp.
	SetModTime(p string, stamp string) error

	// Ping performs a no-op round trip to detect dropped connections.
	Ping() error

	// LastError returns the message of the most recent failed operation.
	LastError() string

	// Close ends the session.
	Close() error
}

// StampLayout is the fixed-width, second-resolution timestamp used to compare
// local and remote modification times (the FTP MDTM/MFMT format).
const StampLayout = "20060102150405"

// FormatStamp formats t as a UTC Stamp, truncated to whole seconds.
func FormatStamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(StampLayout)
}

// ParseStamp parses a Stamp. Fractional seconds some servers append
// ("20240102030405.123") are ignored.
func ParseStamp(s string) (time.Time, error) {
	if len(s) > len(StampLayout) {
		s = s[:len(StampLayout)]
	}
	return time.ParseInLocation(StampLayout, s, time.UTC)
}

// resolve joins p onto cwd when p is relative and cleans the result into a
// canonical rooted path without trailing slash.
func resolve(cwd, p string) string {
	if !strings.HasPrefix(p, "/") {
		p = path.Join(cwd, p)
	}
	return path.Clean("/" + p)
}
