package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/mirror/internal/transport"
)

const testRoot = "/src"

type memNode struct {
	isDir bool
	data  []byte
	stamp string
}

// memSession is an in-memory transport.Session with failure injection.
// Like the FTP server it stands in for, RemoveDir refuses non-empty
// directories and MakeDir refuses existing ones.
type memSession struct {
	mu      sync.Mutex
	nodes   map[string]*memNode // keyed by clean canonical path
	cwd     string
	lastErr string

	storeErr  map[string]error
	deleteErr map[string]error
	listErr   map[string]error
	mkdirErr  map[string]error
	pingErr   error
	corrupt   bool // Store keeps a mangled copy

	stores  []string
	deletes []string
	mkdirs  []string
}

var _ transport.Session = (*memSession)(nil)

func newMemSession() *memSession {
	return &memSession{
		nodes:     map[string]*memNode{"/": {isDir: true}},
		cwd:       "/",
		storeErr:  make(map[string]error),
		deleteErr: make(map[string]error),
		listErr:   make(map[string]error),
		mkdirErr:  make(map[string]error),
	}
}

func (s *memSession) abs(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = path.Join(s.cwd, p)
	}
	return path.Clean("/" + p)
}

func (s *memSession) fail(err error) error {
	s.lastErr = err.Error()
	return err
}

// put creates a file and any missing parents.
func (s *memSession) put(p, data, stamp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = path.Clean(p)
	for dir := path.Dir(p); dir != "/"; dir = path.Dir(dir) {
		if _, ok := s.nodes[dir]; !ok {
			s.nodes[dir] = &memNode{isDir: true}
		}
	}
	s.nodes[p] = &memNode{data: []byte(data), stamp: stamp}
}

func (s *memSession) putDir(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = path.Clean(p)
	for dir := p; dir != "/"; dir = path.Dir(dir) {
		if _, ok := s.nodes[dir]; !ok {
			s.nodes[dir] = &memNode{isDir: true}
		}
	}
}

func (s *memSession) node(p string) (*memNode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[path.Clean(p)]
	return n, ok
}

// tree returns every path on the remote, directories with a trailing slash.
func (s *memSession) tree() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for p, n := range s.nodes {
		if p == "/" {
			continue
		}
		if n.isDir {
			p += "/"
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (s *memSession) calls() (stores, deletes, mkdirs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.stores...),
		append([]string(nil), s.deletes...),
		append([]string(nil), s.mkdirs...)
}

func (s *memSession) resetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stores, s.deletes, s.mkdirs = nil, nil, nil
}

func (s *memSession) hasChildren(dir string) bool {
	for p := range s.nodes {
		if p != dir && path.Dir(p) == dir {
			return true
		}
	}
	return false
}

func (s *memSession) SetBinaryMode() error { return nil }

func (s *memSession) ChangeDir(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.abs(dir)
	n, ok := s.nodes[p]
	if !ok || !n.isDir {
		return s.fail(fmt.Errorf("550 %s: no such directory", p))
	}
	s.cwd = p
	return nil
}

func (s *memSession) List(dir string) ([]transport.RemoteEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.abs(dir)
	if err, ok := s.listErr[p]; ok {
		return nil, s.fail(err)
	}
	if n, ok := s.nodes[p]; !ok || !n.isDir {
		return nil, s.fail(fmt.Errorf("550 %s: no such directory", p))
	}

	var out []transport.RemoteEntry
	for child, n := range s.nodes {
		if child == p || path.Dir(child) != p {
			continue
		}
		out = append(out, transport.RemoteEntry{
			Name:    path.Base(child),
			Parent:  p,
			ModTime: n.stamp,
			Size:    int64(len(n.data)),
			IsDir:   n.isDir,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memSession) Store(p string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p = s.abs(p)
	s.stores = append(s.stores, p)
	if err, ok := s.storeErr[p]; ok {
		return s.fail(err)
	}
	if parent, ok := s.nodes[path.Dir(p)]; !ok || !parent.isDir {
		return s.fail(fmt.Errorf("553 %s: parent missing", p))
	}
	if n, ok := s.nodes[p]; ok && n.isDir {
		return s.fail(fmt.Errorf("553 %s: is a directory", p))
	}
	if s.corrupt {
		data = append(data, '!')
	}
	s.nodes[p] = &memNode{data: data, stamp: transport.FormatStamp(time.Now())}
	return nil
}

func (s *memSession) Retrieve(p string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = s.abs(p)
	n, ok := s.nodes[p]
	if !ok || n.isDir {
		return nil, s.fail(fmt.Errorf("550 %s: no such file", p))
	}
	return io.NopCloser(bytes.NewReader(n.data)), nil
}

func (s *memSession) DeleteFile(p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = s.abs(p)
	if err, ok := s.deleteErr[p]; ok {
		return s.fail(err)
	}
	n, ok := s.nodes[p]
	if !ok || n.isDir {
		return s.fail(fmt.Errorf("550 %s: no such file", p))
	}
	delete(s.nodes, p)
	s.deletes = append(s.deletes, p)
	return nil
}

func (s *memSession) RemoveDir(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.abs(dir)
	if err, ok := s.deleteErr[p]; ok {
		return s.fail(err)
	}
	n, ok := s.nodes[p]
	if !ok || !n.isDir || p == "/" {
		return s.fail(fmt.Errorf("550 %s: no such directory", p))
	}
	if s.hasChildren(p) {
		return s.fail(fmt.Errorf("550 %s: directory not empty", p))
	}
	delete(s.nodes, p)
	s.deletes = append(s.deletes, p+"/")
	return nil
}

func (s *memSession) MakeDir(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.abs(dir)
	if err, ok := s.mkdirErr[p]; ok {
		return s.fail(err)
	}
	if _, ok := s.nodes[p]; ok {
		return s.fail(fmt.Errorf("550 %s: file exists", p))
	}
	if parent, ok := s.nodes[path.Dir(p)]; !ok || !parent.isDir {
		return s.fail(fmt.Errorf("550 %s: parent missing", p))
	}
	s.nodes[p] = &memNode{isDir: true}
	s.mkdirs = append(s.mkdirs, p+"/")
	return nil
}

func (s *memSession) ModTime(p string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[s.abs(p)]
	if !ok {
		return "", transport.ErrNotExist
	}
	return n.stamp, nil
}

func (s *memSession) SetModTime(p, stamp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[s.abs(p)]
	if !ok {
		return s.fail(fmt.Errorf("550 %s: no such file", p))
	}
	n.stamp = stamp
	return nil
}

func (s *memSession) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pingErr != nil {
		return s.fail(s.pingErr)
	}
	return nil
}

func (s *memSession) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *memSession) Close() error { return nil }

// writeLocal creates a file under testRoot with the given content and
// modification time.
func writeLocal(t *testing.T, fsys afero.Fs, rel, data string, mtime time.Time) {
	t.Helper()
	p := filepath.Join(testRoot, filepath.FromSlash(rel))
	require.NoError(t, fsys.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, afero.WriteFile(fsys, p, []byte(data), 0o644))
	require.NoError(t, fsys.Chtimes(p, mtime, mtime))
}

// newTestMirror builds a Mirror over an in-memory local tree and session.
func newTestMirror(t *testing.T, fsys afero.Fs, session transport.Session, mutate ...func(*Config)) *Mirror {
	t.Helper()
	require.NoError(t, fsys.MkdirAll(testRoot, 0o755))
	cfg := Config{Root: testRoot, Session: session, FS: fsys}
	for _, fn := range mutate {
		fn(&cfg)
	}
	m, err := New(cfg)
	require.NoError(t, err)
	return m
}

// connLost mimics a session whose connection dropped.
var connLost = fmt.Errorf("%w: read: connection reset by peer", transport.ErrConnLost)

var errDenied = errors.New("550 permission denied")
