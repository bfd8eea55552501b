package transport

import (
	"context"
	"fmt"
	"time"
)

// DialOpts carries credentials and tuning that are not part of a Location.
type DialOpts struct {
	Password string // overrides Location.Password when set
	KeyFile  string // SSH private key (SFTP only)
	Timeout  time.Duration
}

// Dial connects and authenticates to loc, returning a ready Session rooted at
// loc.Path. Any failure wraps ErrConnect.
//
//nolint:ireturn // factory returns interface by design
func Dial(ctx context.Context, loc Location, opts DialOpts) (Session, error) {
	password := loc.Password
	if opts.Password != "" {
		password = opts.Password
	}

	var (
		s   Session
		err error
	)
	switch loc.Scheme {
	case SchemeFTP:
		s, err = DialFTP(ctx, loc.Host, loc.Path, FTPOpts{
			Port:     loc.Port,
			User:     loc.User,
			Password: password,
			Timeout:  opts.Timeout,
		})
	case SchemeSFTP:
		s, err = dialSFTP(loc, password, opts)
	default:
		err = fmt.Errorf("%w: unsupported scheme %q", ErrConnect, loc.Scheme)
	}
	if err != nil {
		return nil, err
	}

	// Fail at construction, not on the first pass, when the base directory
	// is missing.
	if err := s.ChangeDir("/"); err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: base directory %s: %w", ErrConnect, loc.Path, err)
	}
	return s, nil
}

func dialSFTP(loc Location, password string, opts DialOpts) (*SFTPSession, error) {
	sshClient, err := DialSSH(loc.Host, loc.User, SSHOpts{
		Port:     loc.Port,
		KeyFile:  opts.KeyFile,
		Password: password,
		Timeout:  opts.Timeout,
	})
	if err != nil {
		return nil, err
	}
	s, err := NewSFTPSession(sshClient, loc.Path)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	return s, nil
}
