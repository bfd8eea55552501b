package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"path"
	"strconv"
	"time"

	"github.com/jlaffaye/ftp"
)

// Compile-time interface check.
var _ Session = (*FTPSession)(nil)

// FTP reply codes the session interprets.
const (
	ftpFileUnavailable = 550 // no such file, or permission denied
)

// FTPOpts configures an FTP connection.
type FTPOpts struct {
	Port     int // 0 = default (21)
	User     string
	Password string
	Timeout  time.Duration // dial and per-command timeout; 0 = 30s
}

// FTPSession is a Session over a plain FTP control connection.
type FTPSession struct {
	conn    *ftp.ServerConn
	base    string
	lastErr string
}

// DialFTP connects and logs in, leaving the connection in binary mode at the
// base directory.
func DialFTP(ctx context.Context, host, base string, opts FTPOpts) (*FTPSession, error) {
	port := opts.Port
	if port == 0 {
		port = 21
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	user := opts.User
	if user == "" {
		user = "anonymous"
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("%w: ftp dial %s: %w", ErrConnect, addr, err)
	}
	if err := conn.Login(user, opts.Password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("%w: ftp login %s@%s: %w", ErrConnect, user, addr, err)
	}
	// Change detection depends on reading and writing modification times.
	if !conn.IsGetTimeSupported() || !conn.IsSetTimeSupported() {
		_ = conn.Quit()
		return nil, fmt.Errorf("%w: ftp server %s does not support MDTM/MFMT", ErrConnect, addr)
	}

	s := NewFTPSession(conn, base)
	if err := s.SetBinaryMode(); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	return s, nil
}

// NewFTPSession wraps an authenticated connection rooted at base.
func NewFTPSession(conn *ftp.ServerConn, base string) *FTPSession {
	if base == "" {
		base = "/"
	}
	return &FTPSession{conn: conn, base: path.Clean(base)}
}

// abs maps a canonical path onto the server. Relative paths are passed
// through so the server resolves them against its working directory.
func (s *FTPSession) abs(p string) string {
	if path.IsAbs(p) {
		return path.Join(s.base, p)
	}
	return p
}

func (s *FTPSession) SetBinaryMode() error {
	if err := s.conn.Type(ftp.TransferTypeBinary); err != nil {
		return s.fail("type", "I", err)
	}
	return nil
}

func (s *FTPSession) ChangeDir(dir string) error {
	if err := s.conn.ChangeDir(s.abs(dir)); err != nil {
		return s.fail("cwd", dir, err)
	}
	return nil
}

func (s *FTPSession) List(dir string) ([]RemoteEntry, error) {
	canonical := path.Clean("/" + dir)
	raw, err := s.conn.List(s.abs(canonical))
	if err != nil {
		return nil, s.fail("list", canonical, err)
	}
	entries := make([]RemoteEntry, 0, len(raw))
	for _, e := range raw {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		switch e.Type {
		case ftp.EntryTypeFile, ftp.EntryTypeFolder:
		default:
			continue
		}
		entries = append(entries, RemoteEntry{
			Name:    e.Name,
			Parent:  canonical,
			ModTime: FormatStamp(e.Time),
			Size:    int64(e.Size), //nolint:gosec // G115: listing sizes fit in int64
			IsDir:   e.Type == ftp.EntryTypeFolder,
		})
	}
	return entries, nil
}

func (s *FTPSession) Store(p string, r io.Reader) error {
	if err := s.conn.Stor(s.abs(p), r); err != nil {
		return s.fail("stor", p, err)
	}
	return nil
}

func (s *FTPSession) Retrieve(p string) (io.ReadCloser, error) {
	resp, err := s.conn.Retr(s.abs(p))
	if err != nil {
		return nil, s.fail("retr", p, err)
	}
	return resp, nil
}

func (s *FTPSession) DeleteFile(p string) error {
	if err := s.conn.Delete(s.abs(p)); err != nil {
		return s.fail("dele", p, err)
	}
	return nil
}

func (s *FTPSession) RemoveDir(dir string) error {
	if err := s.conn.RemoveDir(s.abs(dir)); err != nil {
		return s.fail("rmd", dir, err)
	}
	return nil
}

func (s *FTPSession) MakeDir(dir string) error {
	if err := s.conn.MakeDir(s.abs(dir)); err != nil {
		return s.fail("mkd", dir, err)
	}
	return nil
}

func (s *FTPSession) ModTime(p string) (string, error) {
	t, err := s.conn.GetTime(s.abs(p))
	if err != nil {
		var protoErr *textproto.Error
		if errors.As(err, &protoErr) && protoErr.Code == ftpFileUnavailable {
			return "", ErrNotExist
		}
		return "", s.fail("mdtm", p, err)
	}
	return FormatStamp(t), nil
}

func (s *FTPSession) SetModTime(p string, stamp string) error {
	t, err := ParseStamp(stamp)
	if err != nil {
		return fmt.Errorf("parse stamp %q: %w", stamp, err)
	}
	if err := s.conn.SetTime(s.abs(p), t); err != nil {
		return s.fail("mfmt", p, err)
	}
	return nil
}

func (s *FTPSession) Ping() error {
	if err := s.conn.NoOp(); err != nil {
		return s.fail("noop", "", err)
	}
	return nil
}

func (s *FTPSession) LastError() string { return s.lastErr }

func (s *FTPSession) Close() error {
	return s.conn.Quit()
}

// fail records err and classifies it. A protocol reply (textproto.Error)
// means the server answered and the connection is still usable; anything
// else came from the socket.
func (s *FTPSession) fail(op, p string, err error) error {
	s.lastErr = err.Error()
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return fmt.Errorf("ftp %s %s: %w", op, p, err)
	}
	return fmt.Errorf("ftp %s %s: %w: %w", op, p, ErrConnLost, err)
}
