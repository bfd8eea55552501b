package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/mirror/internal/config"
	"github.com/bamsammich/mirror/internal/engine"
	"github.com/bamsammich/mirror/internal/event"
	"github.com/bamsammich/mirror/internal/filter"
	"github.com/bamsammich/mirror/internal/stats"
	"github.com/bamsammich/mirror/internal/transport"
	"github.com/bamsammich/mirror/internal/ui"
)

var version = "dev"

const (
	exitLiveness = 1
	exitSetup    = 2
)

type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit %d", e.code) }

func main() {
	os.Exit(run())
}

// filterFlag appends each --exclude to the shared chain in command-line order.
type filterFlag struct {
	chain *filter.Chain
}

func (*filterFlag) String() string { return "" }
func (*filterFlag) Type() string   { return "pattern" }

func (f *filterFlag) Set(val string) error {
	return f.chain.AddExclude(val)
}

type options struct {
	interval   time.Duration
	once       bool
	verbose    bool
	quiet      bool
	dryRun     bool
	verify     bool
	bwLimitStr string
	minSizeStr string
	maxSizeStr string
	sshKeyFile string
	port       int
	timeout    time.Duration
	logFile    string
	version    bool
}

func run() int {
	var opts options
	chain := filter.NewChain()

	rootCmd := &cobra.Command{
		Use:   "mirror [flags] [<local-dir> <remote>]",
		Short: "Keep a remote FTP/SFTP directory an exact copy of a local one",
		Long: `mirror watches a local directory and, every interval, makes the remote
directory match it: missing or changed files are uploaded with their
modification times, and remote entries with no local counterpart are deleted.

Remote locations:
  ftp://[user[:password]@]host[:port][/path]
  sftp://[user@]host[:port][/path]
  [user@]host:path                      (SFTP)

The password is read from $` + PasswordEnv + `, the location, or a prompt.`,
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.version {
				fmt.Fprintf(os.Stdout, "mirror %s\n", version)
				return nil
			}
			return runMirror(cmd, args, &opts, chain)
		},
	}

	flags := rootCmd.Flags()
	flags.BoolVar(&opts.version, "version", false, "print version and exit")
	flags.DurationVar(&opts.interval, "interval", 2*time.Second, "time between synchronization passes")
	flags.BoolVar(&opts.once, "once", false, "run a single pass and exit")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress all output except errors")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "show what would change without touching the remote")
	flags.BoolVar(&opts.verify, "verify", false, "read every upload back and compare checksums (BLAKE3)")
	flags.StringVar(&opts.bwLimitStr, "bwlimit", "", "upload bandwidth limit per second (e.g. 10M)")
	flags.Var(&filterFlag{chain: chain}, "exclude", "exclude paths matching PATTERN, gitignore syntax (repeatable)")
	flags.StringVar(&opts.minSizeStr, "min-size", "", "skip files smaller than SIZE (e.g. 1K)")
	flags.StringVar(&opts.maxSizeStr, "max-size", "", "skip files larger than SIZE (e.g. 1G)")
	flags.StringVar(&opts.sshKeyFile, "ssh-key", "", "SSH private key file (default: agent and ~/.ssh)")
	flags.IntVar(&opts.port, "port", 0, "remote port (default: 21 for FTP, 22 for SFTP)")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "connection timeout")
	flags.StringVar(&opts.logFile, "log", "", "also write a rotating JSON log to FILE")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	rootCmd.AddCommand(newDocsCmd())

	if err := rootCmd.Execute(); err != nil {
		return exitCode(err)
	}
	return 0
}

// exitCode maps a command error to the process exit status, printing it
// unless it only carries a code.
func exitCode(err error) int {
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if errors.Is(err, engine.ErrLivenessLost) || errors.Is(err, transport.ErrConnLost) {
		return exitLiveness
	}
	return exitSetup
}

//nolint:gocyclo,revive // cyclomatic,cognitive-complexity: CLI entry point wires every component
func runMirror(cmd *cobra.Command, args []string, opts *options, chain *filter.Chain) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := applyConfigDefaults(cmd.Flags(), cfg, opts, chain); err != nil {
		return err
	}
	if opts.interval <= 0 {
		return fmt.Errorf("invalid --interval %s: must be positive", opts.interval)
	}

	logger, logCloser := newLogger(os.Stderr, stderrIsTTY(),
		logLevel(opts.verbose, opts.quiet), opts.logFile, cfg.Log)
	if logCloser != nil {
		defer logCloser.Close()
	}
	slog.SetDefault(logger)

	var bwLimit int64
	if opts.bwLimitStr != "" {
		bwLimit, err = filter.ParseSize(opts.bwLimitStr)
		if err != nil {
			return fmt.Errorf("invalid --bwlimit: %w", err)
		}
	}
	if opts.minSizeStr != "" {
		n, err := filter.ParseSize(opts.minSizeStr)
		if err != nil {
			return fmt.Errorf("invalid --min-size: %w", err)
		}
		chain.SetMinSize(n)
	}
	if opts.maxSizeStr != "" {
		n, err := filter.ParseSize(opts.maxSizeStr)
		if err != nil {
			return fmt.Errorf("invalid --max-size: %w", err)
		}
		chain.SetMaxSize(n)
	}

	p := newTerminalPrompter()
	rawRoot, rawRemote, err := resolveArgs(args, cfg.Remote, p)
	if err != nil {
		return err
	}

	root, err := filepath.Abs(rawRoot)
	if err != nil {
		return fmt.Errorf("%w: %w", engine.ErrInvalidRoot, err)
	}
	if info, err := os.Stat(root); err != nil {
		return fmt.Errorf("%w: %w", engine.ErrInvalidRoot, err)
	} else if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", engine.ErrInvalidRoot, root)
	}

	loc, err := transport.ParseLocation(rawRemote)
	if err != nil {
		return err
	}
	if opts.port != 0 {
		loc.Port = opts.port
	}
	password, err := resolvePassword(loc, os.Getenv(PasswordEnv), p)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Debug("connecting", "remote", loc.String())
	session, err := transport.Dial(ctx, loc, transport.DialOpts{
		Password: password,
		KeyFile:  opts.sshKeyFile,
		Timeout:  opts.timeout,
	})
	if err != nil {
		return err
	}
	defer session.Close()

	events := make(chan event.Event, 256)
	totals := stats.NewCollector()
	m, err := engine.New(engine.Config{
		Root:        root,
		Session:     session,
		Filter:      chain,
		Logger:      logger,
		Events:      events,
		Totals:      totals,
		BWLimit:     bwLimit,
		Verify:      opts.verify,
		DryRun:      opts.dryRun,
		EmitSkipped: opts.verbose,
	})
	if err != nil {
		return err
	}

	presenter := ui.NewPresenter(ui.Config{
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
		Quiet:     opts.quiet,
		Verbose:   opts.verbose,
		Stats:     totals,
	})
	var presenterWg sync.WaitGroup
	presenterWg.Add(1)
	go func() {
		defer presenterWg.Done()
		_ = presenter.Run(events) //nolint:errcheck // presenter error is non-fatal
	}()

	logger.Info("mirroring",
		"root", root,
		"remote", loc.String(),
		"interval", opts.interval,
		"rules", len(chain.Rules()),
	)

	var runErr error
	if opts.once {
		runErr = runOnce(ctx, m)
	} else {
		runErr = runScheduled(ctx, m, opts.interval, logger, events)
	}

	close(events)
	presenterWg.Wait()

	if !opts.quiet {
		if summary := presenter.Summary(); summary != "" {
			fmt.Fprintln(os.Stderr, summary)
		}
	}

	if errors.Is(runErr, engine.ErrLivenessLost) {
		if opts.once {
			logger.Error("connection lost", "error", runErr)
		}
		return &exitError{code: exitLiveness}
	}
	return runErr
}

// runOnce performs one pass and the liveness probe that would follow it.
func runOnce(ctx context.Context, m *engine.Mirror) error {
	if _, err := m.RunPass(ctx); err != nil {
		if errors.Is(err, transport.ErrConnLost) {
			return fmt.Errorf("%w: %w", engine.ErrLivenessLost, err)
		}
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	return m.Probe()
}

// runScheduled drives passes until ctx is cancelled or liveness fails.
func runScheduled(
	ctx context.Context,
	m *engine.Mirror,
	interval time.Duration,
	logger *slog.Logger,
	events chan<- event.Event,
) error {
	s := engine.NewScheduler(m, engine.SchedulerOpts{Logger: logger, Events: events})
	if err := s.Start(ctx, interval); err != nil {
		return err
	}
	s.Wait()
	return s.Err()
}

// applyConfigDefaults copies config file values into options for every flag
// not set on the command line.
func applyConfigDefaults(flags *pflag.FlagSet, cfg config.Config, opts *options, chain *filter.Chain) error {
	d := cfg.Defaults
	if !flags.Changed("interval") {
		iv, ok, err := d.IntervalDuration()
		if err != nil {
			return err
		}
		if ok {
			opts.interval = iv
		}
	}
	if !flags.Changed("bwlimit") && d.BWLimit != nil {
		opts.bwLimitStr = *d.BWLimit
	}
	if !flags.Changed("verify") && d.Verify != nil {
		opts.verify = *d.Verify
	}
	if !flags.Changed("dry-run") && d.DryRun != nil {
		opts.dryRun = *d.DryRun
	}
	// Config rules come first so command-line rules can re-include with "!".
	if len(d.Exclude) > 0 {
		cli := chain.Rules()
		merged := filter.NewChain()
		for _, pattern := range append(append([]string(nil), d.Exclude...), cli...) {
			if err := merged.AddExclude(pattern); err != nil {
				return fmt.Errorf("defaults.exclude: %w", err)
			}
		}
		*chain = *merged
	}

	r := cfg.Remote
	if !flags.Changed("ssh-key") && r.SSHKey != nil {
		opts.sshKeyFile = *r.SSHKey
	}
	if !flags.Changed("port") && r.Port != nil {
		opts.port = *r.Port
	}
	if !flags.Changed("log") && cfg.Log.File != nil {
		opts.logFile = *cfg.Log.File
	}
	return nil
}
