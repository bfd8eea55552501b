package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Key files tried under ~/.ssh when no key is given.
var defaultKeyNames = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

// SSHOpts configures the SSH connection underneath an SFTP session.
type SSHOpts struct {
	Port     int    // 0 = 22
	KeyFile  string // explicit private key; must be readable when set
	Password string
	Timeout  time.Duration // 0 = 30s
}

// DialSSH connects to host as userName (default: the current user). Auth
// methods are offered in order: agent, key files, password. Host keys are
// checked against ~/.ssh/known_hosts when it exists.
func DialSSH(host, userName string, opts SSHOpts) (*ssh.Client, error) {
	if userName == "" {
		u, err := user.Current()
		if err != nil {
			return nil, fmt.Errorf("%w: determine current user: %w", ErrConnect, err)
		}
		userName = u.Username
	}

	auth, err := authMethods(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("%w: no SSH credentials (start an agent, pass --ssh-key, or set a password)", ErrConnect)
	}

	port := opts.Port
	if port == 0 {
		port = DefaultSFTPPort
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	client, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            userName,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback(),
		Timeout:         timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: ssh %s@%s: %w", ErrConnect, userName, addr, err)
	}
	return client, nil
}

func authMethods(opts SSHOpts) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	if opts.KeyFile != "" {
		signer, err := loadKey(opts.KeyFile)
		if err != nil {
			return nil, err
		}
		methods = append(methods, ssh.PublicKeys(signer))
	} else if home, err := os.UserHomeDir(); err == nil {
		var signers []ssh.Signer
		for _, name := range defaultKeyNames {
			if signer, err := loadKey(filepath.Join(home, ".ssh", name)); err == nil {
				signers = append(signers, signer)
			}
		}
		if len(signers) > 0 {
			methods = append(methods, ssh.PublicKeys(signers...))
		}
	}

	if opts.Password != "" {
		methods = append(methods, ssh.Password(opts.Password))
	}
	return methods, nil
}

// loadKey reads an unencrypted private key.
func loadKey(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("key %s is passphrase protected; load it into ssh-agent", path)
		}
		return nil, fmt.Errorf("parse key %s: %w", path, err)
	}
	return signer, nil
}

// hostKeyCallback verifies against known_hosts, or accepts any key when
// there is no known_hosts file to check against.
func hostKeyCallback() ssh.HostKeyCallback {
	home, err := os.UserHomeDir()
	if err == nil {
		if cb, err := knownhosts.New(filepath.Join(home, ".ssh", "known_hosts")); err == nil {
			return cb
		}
	}
	return ssh.InsecureIgnoreHostKey() //nolint:gosec // no known_hosts to check against
}
