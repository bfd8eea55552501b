package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/bamsammich/mirror/internal/config"
	"github.com/bamsammich/mirror/internal/transport"
)

// PasswordEnv names the environment variable read for the remote password.
const PasswordEnv = "MIRROR_PASSWORD"

var errNoTerminal = errors.New("not a terminal")

// prompter asks for missing values on an interactive terminal.
type prompter struct {
	in          *bufio.Reader
	out         io.Writer
	interactive bool
	readSecret  func() (string, error)
}

func newTerminalPrompter() *prompter {
	fd := int(os.Stdin.Fd())
	return &prompter{
		in:          bufio.NewReader(os.Stdin),
		out:         os.Stderr,
		interactive: term.IsTerminal(fd),
		readSecret: func() (string, error) {
			b, err := term.ReadPassword(fd)
			return string(b), err
		},
	}
}

// ask prints label and returns the trimmed answer. Empty answers are
// rejected.
func (p *prompter) ask(label string) (string, error) {
	if !p.interactive {
		return "", fmt.Errorf("%s: %w", strings.ToLower(label), errNoTerminal)
	}
	fmt.Fprintf(p.out, "%s: ", label)
	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("%s: no value given", strings.ToLower(label))
	}
	return line, nil
}

// secret reads a value without echo.
func (p *prompter) secret(label string) (string, error) {
	if !p.interactive {
		return "", fmt.Errorf("%s: %w", strings.ToLower(label), errNoTerminal)
	}
	fmt.Fprintf(p.out, "%s: ", label)
	s, err := p.readSecret()
	fmt.Fprintln(p.out)
	return s, err
}

// resolveArgs returns the local root and remote location from args, falling
// back to the configured remote URL and then to prompts.
func resolveArgs(args []string, remote config.RemoteConfig, p *prompter) (root, loc string, err error) {
	if len(args) > 0 {
		root = args[0]
	}
	if len(args) > 1 {
		loc = args[1]
	} else if remote.URL != nil {
		loc = *remote.URL
	}

	if root == "" {
		if root, err = p.ask("Local directory"); err != nil {
			return "", "", err
		}
	}
	if loc == "" {
		if loc, err = p.ask("Remote location"); err != nil {
			return "", "", err
		}
	}
	return root, loc, nil
}

// resolvePassword picks the password from the environment, then the
// location. FTP always needs one, so it is prompted for; SFTP falls back to
// agent and key authentication instead.
func resolvePassword(loc transport.Location, env string, p *prompter) (string, error) {
	if env != "" {
		return env, nil
	}
	if loc.Password != "" {
		return loc.Password, nil
	}
	if loc.Scheme != transport.SchemeFTP {
		return "", nil
	}
	user := loc.User
	if user == "" {
		user = "anonymous"
	}
	pw, err := p.secret(fmt.Sprintf("Password for %s@%s", user, loc.Host))
	if errors.Is(err, errNoTerminal) {
		return "", fmt.Errorf("no password for %s: set %s", loc, PasswordEnv)
	}
	return pw, err
}
