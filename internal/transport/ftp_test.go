package transport_test

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	ftpserver "github.com/fclairamb/ftpserverlib"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/mirror/internal/engine"
	"github.com/bamsammich/mirror/internal/transport"
)

const (
	ftpUser     = "mirror"
	ftpPassword = "secret"
)

// memFTPDriver serves one in-memory filesystem to every authenticated client.
type memFTPDriver struct {
	fs       afero.Fs
	listener net.Listener
}

func (d *memFTPDriver) GetSettings() (*ftpserver.Settings, error) {
	return &ftpserver.Settings{Listener: d.listener}, nil
}

func (d *memFTPDriver) ClientConnected(ftpserver.ClientContext) (string, error) {
	return "mirror test server", nil
}

func (d *memFTPDriver) ClientDisconnected(ftpserver.ClientContext) {}

func (d *memFTPDriver) AuthUser(_ ftpserver.ClientContext, user, pass string) (ftpserver.ClientDriver, error) {
	if user != ftpUser || pass != ftpPassword {
		return nil, errors.New("bad credentials")
	}
	return d.fs, nil
}

func (d *memFTPDriver) GetTLSConfig() (*tls.Config, error) {
	return nil, errors.New("tls not configured")
}

// startMemFTPServer runs an FTP server over an in-memory filesystem and
// returns that filesystem with the server's port.
func startMemFTPServer(t *testing.T) (afero.Fs, int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	server := ftpserver.NewFtpServer(&memFTPDriver{fs: fs, listener: ln})
	require.NoError(t, server.Listen())
	go server.Serve() //nolint:errcheck // returns once Stop closes the listener
	t.Cleanup(func() { _ = server.Stop() })

	return fs, ln.Addr().(*net.TCPAddr).Port
}

func dialMemFTP(t *testing.T, port int) *transport.FTPSession {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := transport.DialFTP(ctx, "127.0.0.1", "/", transport.FTPOpts{
		Port:     port,
		User:     ftpUser,
		Password: ftpPassword,
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newMemFTPSession(t *testing.T) (*transport.FTPSession, afero.Fs) {
	t.Helper()
	fs, port := startMemFTPServer(t)
	return dialMemFTP(t, port), fs
}

func TestFTPSession_StoreAndList(t *testing.T) {
	t.Parallel()
	s, _ := newMemFTPSession(t)

	require.NoError(t, s.MakeDir("/sub"))
	require.NoError(t, s.Store("/sub/f.txt", bytes.NewReader([]byte("hello"))))
	require.NoError(t, s.Store("/top.txt", bytes.NewReader([]byte("x"))))

	entries, err := s.List("/")
	require.NoError(t, err)

	byPath := make(map[string]transport.RemoteEntry)
	for _, e := range entries {
		byPath[e.Path()] = e
	}
	assert.Len(t, byPath, 2, "no . or .. entries")
	require.Contains(t, byPath, "/sub/")
	require.Contains(t, byPath, "/top.txt")
	assert.True(t, byPath["/sub/"].IsDir)
	assert.Equal(t, "/", byPath["/top.txt"].Parent)
	assert.Len(t, byPath["/top.txt"].ModTime, len(transport.StampLayout))

	entries, err = s.List("/sub")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "/sub/f.txt", entries[0].Path())
	assert.Equal(t, int64(5), entries[0].Size)
	assert.False(t, entries[0].IsDir)

	rc, err := s.Retrieve("/sub/f.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(data))
}

func TestFTPSession_RelativePathsFollowWorkingDirectory(t *testing.T) {
	t.Parallel()
	s, fs := newMemFTPSession(t)

	require.NoError(t, s.ChangeDir("/"))
	require.NoError(t, s.MakeDir("a"))
	require.NoError(t, s.ChangeDir("a"))
	require.NoError(t, s.MakeDir("b"))
	require.NoError(t, s.Store("b/f.txt", bytes.NewReader([]byte("rel"))))

	info, err := fs.Stat("/a/b")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	data, err := afero.ReadFile(fs, "/a/b/f.txt")
	require.NoError(t, err)
	assert.Equal(t, "rel", string(data))

	require.NoError(t, s.ChangeDir("/"))
	require.NoError(t, s.MakeDir("c"))
	ok, err := afero.DirExists(fs, "/c")
	require.NoError(t, err)
	assert.True(t, ok, "MakeDir after ChangeDir(\"/\") lands at the root")
}

func TestFTPSession_ModTime(t *testing.T) {
	t.Parallel()
	s, _ := newMemFTPSession(t)

	_, err := s.ModTime("/missing.txt")
	assert.ErrorIs(t, err, transport.ErrNotExist)
	assert.NotErrorIs(t, err, transport.ErrConnLost)

	stamp := transport.FormatStamp(time.Date(2023, 4, 5, 6, 7, 8, 0, time.UTC))
	require.NoError(t, s.Store("/f.txt", bytes.NewReader([]byte("x"))))
	require.NoError(t, s.SetModTime("/f.txt", stamp))

	got, err := s.ModTime("/f.txt")
	require.NoError(t, err)
	assert.Equal(t, stamp, got)

	assert.Error(t, s.SetModTime("/f.txt", "not a stamp"))
}

func TestFTPSession_DeleteAndRemoveDir(t *testing.T) {
	t.Parallel()
	s, fs := newMemFTPSession(t)

	require.NoError(t, s.MakeDir("/d"))
	require.NoError(t, s.Store("/d/f.txt", bytes.NewReader([]byte("x"))))

	require.NoError(t, s.DeleteFile("/d/f.txt"))
	require.NoError(t, s.RemoveDir("/d"))
	_, err := fs.Stat("/d")
	assert.ErrorIs(t, err, afero.ErrFileNotFound)

	err = s.DeleteFile("/d/f.txt")
	require.Error(t, err)
	assert.NotErrorIs(t, err, transport.ErrConnLost, "a refusal leaves the session usable")
	assert.NotEmpty(t, s.LastError())
	assert.NoError(t, s.Ping())
}

func TestDialFTP_BadCredentials(t *testing.T) {
	t.Parallel()
	_, port := startMemFTPServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := transport.DialFTP(ctx, "127.0.0.1", "/", transport.FTPOpts{
		Port:     port,
		User:     ftpUser,
		Password: "wrong",
		Timeout:  5 * time.Second,
	})
	assert.ErrorIs(t, err, transport.ErrConnect)
}

func TestFTPSession_MirrorConverges(t *testing.T) {
	t.Parallel()
	s, remote := newMemFTPSession(t)

	local := afero.NewMemMapFs()
	mtime := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	files := map[string]string{
		"/src/a.txt":       "alpha",
		"/src/sub/b.txt":   "bravo",
		"/src/sub/c/d.txt": "delta",
	}
	for p, data := range files {
		require.NoError(t, local.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, afero.WriteFile(local, p, []byte(data), 0o644))
		require.NoError(t, local.Chtimes(p, mtime, mtime))
	}
	require.NoError(t, afero.WriteFile(remote, "/stale.txt", []byte("old"), 0o644))

	m, err := engine.New(engine.Config{Root: "/src", Session: s, FS: local})
	require.NoError(t, err)

	first, err := m.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), first.Stats.FilesUploaded)
	assert.Equal(t, int64(1), first.Stats.EntriesDeleted)
	assert.Zero(t, first.Stats.Errors())

	for _, p := range []string{"/a.txt", "/sub/b.txt", "/sub/c/d.txt"} {
		stamp, err := s.ModTime(p)
		require.NoError(t, err, p)
		assert.Equal(t, transport.FormatStamp(mtime), stamp, p)
	}
	data, err := afero.ReadFile(remote, "/sub/c/d.txt")
	require.NoError(t, err)
	assert.Equal(t, "delta", string(data))
	_, err = remote.Stat("/stale.txt")
	assert.ErrorIs(t, err, afero.ErrFileNotFound)

	second, err := m.RunPass(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.Stats.FilesUploaded)
	assert.Equal(t, int64(3), second.Stats.FilesSkipped)
	assert.False(t, second.Stats.Changed())
}
