package transport

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"syscall"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Compile-time interface check.
var _ Session = (*SFTPSession)(nil)

// SFTPSession is a Session over an SFTP subsystem. SFTP has no server-side
// working directory, so the session tracks one itself.
type SFTPSession struct {
	client  *sftp.Client
	ssh     *ssh.Client // nil when the client was built over a bare pipe
	base    string
	cwd     string
	lastErr string
}

// NewSFTPSession creates a session backed by an SSH connection, rooted at
// base on the remote host. The caller must call Close when done.
func NewSFTPSession(sshClient *ssh.Client, base string) (*SFTPSession, error) {
	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return nil, fmt.Errorf("sftp client: %w", err)
	}
	s := NewSFTPSessionFromClient(sftpClient, base)
	s.ssh = sshClient
	return s, nil
}

// NewSFTPSessionFromClient wraps an existing sftp.Client.
func NewSFTPSessionFromClient(client *sftp.Client, base string) *SFTPSession {
	if base == "" {
		base = "/"
	}
	return &SFTPSession{
		client: client,
		base:   path.Clean(base),
		cwd:    "/",
	}
}

// abs maps a canonical path onto the remote filesystem.
func (s *SFTPSession) abs(p string) string {
	return path.Join(s.base, resolve(s.cwd, p))
}

// SetBinaryMode is a no-op: SFTP transfers are always binary.
func (s *SFTPSession) SetBinaryMode() error { return nil }

func (s *SFTPSession) ChangeDir(dir string) error {
	target := resolve(s.cwd, dir)
	info, err := s.client.Stat(path.Join(s.base, target))
	if err != nil {
		return s.fail("cwd", target, err)
	}
	if !info.IsDir() {
		return s.fail("cwd", target, syscall.ENOTDIR)
	}
	s.cwd = target
	return nil
}

func (s *SFTPSession) List(dir string) ([]RemoteEntry, error) {
	canonical := resolve(s.cwd, dir)
	infos, err := s.client.ReadDir(path.Join(s.base, canonical))
	if err != nil {
		return nil, s.fail("list", canonical, err)
	}
	entries := make([]RemoteEntry, 0, len(infos))
	for _, info := range infos {
		if info.Name() == "." || info.Name() == ".." {
			continue
		}
		entries = append(entries, RemoteEntry{
			Name:    info.Name(),
			Parent:  canonical,
			ModTime: FormatStamp(info.ModTime()),
			Size:    info.Size(),
			IsDir:   info.IsDir(),
		})
	}
	return entries, nil
}

func (s *SFTPSession) Store(p string, r io.Reader) error {
	absPath := s.abs(p)
	f, err := s.client.OpenFile(absPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return s.fail("store", p, err)
	}
	if _, err := f.ReadFrom(r); err != nil {
		f.Close()
		return s.fail("store", p, err)
	}
	if err := f.Close(); err != nil {
		return s.fail("store", p, err)
	}
	return nil
}

func (s *SFTPSession) Retrieve(p string) (io.ReadCloser, error) {
	f, err := s.client.Open(s.abs(p))
	if err != nil {
		return nil, s.fail("retrieve", p, err)
	}
	return f, nil
}

func (s *SFTPSession) DeleteFile(p string) error {
	if err := s.client.Remove(s.abs(p)); err != nil {
		return s.fail("delete", p, err)
	}
	return nil
}

func (s *SFTPSession) RemoveDir(dir string) error {
	if err := s.client.RemoveDirectory(s.abs(dir)); err != nil {
		return s.fail("rmdir", dir, err)
	}
	return nil
}

func (s *SFTPSession) MakeDir(dir string) error {
	if err := s.client.Mkdir(s.abs(dir)); err != nil {
		return s.fail("mkdir", dir, err)
	}
	return nil
}

func (s *SFTPSession) ModTime(p string) (string, error) {
	info, err := s.client.Stat(s.abs(p))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotExist
		}
		return "", s.fail("stat", p, err)
	}
	return FormatStamp(info.ModTime()), nil
}

func (s *SFTPSession) SetModTime(p string, stamp string) error {
	t, err := ParseStamp(stamp)
	if err != nil {
		return fmt.Errorf("parse stamp %q: %w", stamp, err)
	}
	if err := s.client.Chtimes(s.abs(p), t, t); err != nil {
		return s.fail("chtimes", p, err)
	}
	return nil
}

// Ping resolves "." on the server, the cheapest request with a reply.
func (s *SFTPSession) Ping() error {
	if _, err := s.client.Getwd(); err != nil {
		return s.fail("ping", ".", err)
	}
	return nil
}

func (s *SFTPSession) LastError() string { return s.lastErr }

func (s *SFTPSession) Close() error {
	err := s.client.Close()
	if s.ssh != nil {
		if sshErr := s.ssh.Close(); sshErr != nil && err == nil {
			err = sshErr
		}
	}
	return err
}

func (s *SFTPSession) fail(op, p string, err error) error {
	s.lastErr = err.Error()
	if isSFTPConnErr(err) {
		return fmt.Errorf("sftp %s %s: %w: %w", op, p, ErrConnLost, err)
	}
	return fmt.Errorf("sftp %s %s: %w", op, p, err)
}

func isSFTPConnErr(err error) bool {
	if errors.Is(err, sftp.ErrSSHFxConnectionLost) || errors.Is(err, sftp.ErrSSHFxNoConnection) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
