package transport

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
)

// Scheme identifies the protocol of a remote location.
type Scheme string

const (
	SchemeFTP  Scheme = "ftp"
	SchemeSFTP Scheme = "sftp"
)

// Default ports per scheme.
const (
	DefaultFTPPort  = 21
	DefaultSFTPPort = 22
)

// Location represents a parsed remote destination argument.
type Location struct {
	Scheme   Scheme
	Host     string
	User     string
	Password string
	Path     string // base directory on the remote host
	Port     int    // 0 = scheme default
}

// EffectivePort returns the port, falling back to the scheme default.
func (l Location) EffectivePort() int {
	if l.Port != 0 {
		return l.Port
	}
	if l.Scheme == SchemeFTP {
		return DefaultFTPPort
	}
	return DefaultSFTPPort
}

// String returns a human-readable representation. The password is never
// included.
func (l Location) String() string {
	host := l.Host
	if l.User != "" {
		host = l.User + "@" + host
	}
	return fmt.Sprintf("%s://%s:%d%s", l.Scheme, host, l.EffectivePort(), l.Path)
}

// ParseLocation parses a remote location argument.
//
// Supported formats:
//   - ftp://[user[:password]@]host[:port][/path]
//   - sftp://[user@]host[:port][/path]
//   - user@host:path                  → SFTP
//   - host:path                       → SFTP (current user)
//
// An empty path means the login directory root "/". Local-looking arguments
// (absolute or dot-relative paths, bare words) are rejected.
//
//nolint:revive // cognitive-complexity: location parsing handles multiple format variants
func ParseLocation(arg string) (Location, error) {
	if strings.Contains(arg, "://") {
		return parseURL(arg)
	}

	if filepath.IsAbs(arg) || strings.HasPrefix(arg, "./") || strings.HasPrefix(arg, "../") {
		return Location{}, fmt.Errorf("%q is a local path, not a remote location", arg)
	}

	colonIdx := strings.IndexByte(arg, ':')
	if colonIdx < 0 {
		return Location{}, fmt.Errorf("%q is not a remote location (want host:path or a URL)", arg)
	}

	hostPart := arg[:colonIdx]
	pathPart := arg[colonIdx+1:]

	if hostPart == "" || strings.ContainsRune(hostPart, '/') {
		return Location{}, fmt.Errorf("%q is not a remote location (want host:path or a URL)", arg)
	}

	var user, host string
	if atIdx := strings.LastIndexByte(hostPart, '@'); atIdx >= 0 {
		user = hostPart[:atIdx]
		host = hostPart[atIdx+1:]
	} else {
		host = hostPart
	}
	if host == "" {
		return Location{}, fmt.Errorf("%q: missing host", arg)
	}

	return Location{
		Scheme: SchemeSFTP,
		Host:   host,
		User:   user,
		Path:   normalizeBase(pathPart),
	}, nil
}

func parseURL(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("parse %q: %w", raw, err)
	}

	var scheme Scheme
	switch strings.ToLower(u.Scheme) {
	case "ftp":
		scheme = SchemeFTP
	case "sftp", "ssh":
		scheme = SchemeSFTP
	default:
		return Location{}, fmt.Errorf("unsupported scheme %q (want ftp or sftp)", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return Location{}, fmt.Errorf("%q: missing host", raw)
	}

	port := 0
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return Location{}, fmt.Errorf("%q: invalid port %q", raw, p)
		}
	}

	loc := Location{
		Scheme: scheme,
		Host:   host,
		Port:   port,
		Path:   normalizeBase(u.Path),
	}
	if u.User != nil {
		loc.User = u.User.Username()
		loc.Password, _ = u.User.Password()
	}
	return loc, nil
}

func normalizeBase(p string) string {
	if p == "" {
		return "/"
	}
	return p
}
