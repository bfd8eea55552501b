package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/bamsammich/mirror/internal/event"
	"github.com/bamsammich/mirror/internal/filter"
	"github.com/bamsammich/mirror/internal/stats"
	"github.com/bamsammich/mirror/internal/transport"
)

// Config describes one local root mirrored onto one remote session.
type Config struct {
	Root    string            // local directory to mirror
	Session transport.Session // connected and authenticated
	FS      afero.Fs          // defaults to the OS filesystem
	Filter  *filter.Chain     // copied; rules from <Root>/.mirrorignore are added to the copy
	Logger  *slog.Logger      // defaults to slog.Default()
	Events  chan<- event.Event
	Totals  *stats.Collector // every pass is merged into it, if set
	BWLimit int64            // bytes per second, 0 = unlimited
	Verify  bool             // read every upload back and compare BLAKE3 digests
	DryRun  bool

	// EmitSkipped sends a FileSkipped event per up-to-date file. Off by
	// default: on large trees they crowd out the events that matter.
	EmitSkipped bool
}

// Mirror runs synchronization passes. It is not safe for concurrent use:
// passes share the session and its working directory.
type Mirror struct {
	paths   PathMapper
	session transport.Session
	fs      afero.Fs
	filter  *filter.Chain
	logger  *slog.Logger
	events  chan<- event.Event
	totals  *stats.Collector
	limiter *rate.Limiter
	verify  bool
	dryRun  bool
	skipped bool
}

// PassResult summarizes one pass.
type PassResult struct {
	ID       string
	Expected int // size of the sealed expected set
	Stats    stats.Snapshot
}

// pass carries the state of one run. It is discarded when the run ends.
type pass struct {
	id       string
	expected *ExpectedSet
	partial  map[string]bool // local directories that could not be listed
	stats    *stats.Collector
	logger   *slog.Logger
}

// New validates cfg and returns a Mirror. The root must be an existing
// directory; anything else is ErrInvalidRoot.
func New(cfg Config) (*Mirror, error) {
	if cfg.Session == nil {
		return nil, errors.New("engine: nil session")
	}
	fsys := cfg.FS
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Root == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidRoot)
	}
	root := filepath.Clean(cfg.Root)
	info, err := fsys.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, root)
	}

	// The caller's chain may be shared between mirrors; ignore-file rules
	// go on a private copy.
	chain := cfg.Filter.Clone()
	if err := chain.LoadFile(fsys, filepath.Join(root, filter.IgnoreFileName)); err != nil {
		return nil, err
	}

	m := &Mirror{
		paths:   NewPathMapper(root),
		session: cfg.Session,
		fs:      fsys,
		filter:  chain,
		logger:  logger,
		events:  cfg.Events,
		totals:  cfg.Totals,
		verify:  cfg.Verify,
		dryRun:  cfg.DryRun,
		skipped: cfg.EmitSkipped,
	}
	if cfg.BWLimit > 0 {
		m.limiter = NewBWLimiter(cfg.BWLimit)
	}
	return m, nil
}

// Root returns the local root being mirrored.
func (m *Mirror) Root() string {
	return m.paths.Root()
}

// RunPass performs one full synchronization: walk the local tree uploading
// missing and stale files, seal the expected set, then delete remote entries
// outside it.
//
// Per-entry failures are logged and counted in the result; the returned
// error is non-nil only when the pass was aborted: cancelled context, lost
// connection (wrapping transport.ErrConnLost), or an unreadable root. An
// aborted pass never reconciles, so a partial walk cannot delete anything.
func (m *Mirror) RunPass(ctx context.Context) (PassResult, error) {
	p := &pass{
		id:       uuid.NewString(),
		expected: NewExpectedSet(),
		partial:  make(map[string]bool),
		stats:    stats.NewCollector(),
	}
	p.logger = m.logger.With("pass", p.id)
	if m.dryRun {
		p.logger = p.logger.With("dry_run", true)
	}

	m.emit(p, event.Event{Type: event.PassStarted})
	p.logger.Debug("pass started", "root", m.paths.Root())

	err := m.walk(ctx, p, m.paths.Root())
	p.expected.Seal()
	if err == nil {
		err = m.reconcile(ctx, p, "/")
	}

	if err == nil {
		p.stats.AddPasses(1)
	}
	result := PassResult{ID: p.id, Expected: p.expected.Len(), Stats: p.stats.Snapshot()}
	if m.totals != nil {
		m.totals.Merge(result.Stats)
	}
	if err != nil {
		p.logger.Debug("pass aborted", "error", err)
		return result, err
	}

	level := slog.LevelDebug
	if result.Stats.Changed() || result.Stats.Errors() > 0 {
		level = slog.LevelInfo
	}
	p.logger.Log(ctx, level, "pass complete",
		"uploaded", result.Stats.FilesUploaded,
		"bytes", stats.FormatBytes(result.Stats.BytesUploaded),
		"dirs", result.Stats.DirsCreated,
		"deleted", result.Stats.EntriesDeleted,
		"errors", result.Stats.Errors(),
		"elapsed", result.Stats.Elapsed.Round(time.Millisecond),
	)
	m.emit(p, event.Event{Type: event.PassComplete})
	return result, nil
}

// Probe checks that the session still answers.
func (m *Mirror) Probe() error {
	if err := m.session.Ping(); err != nil {
		return fmt.Errorf("%w: %w", ErrLivenessLost, err)
	}
	return nil
}

// aborts reports whether err must end the pass instead of being isolated to
// one entry.
func aborts(ctx context.Context, err error) bool {
	return errors.Is(err, transport.ErrConnLost) || ctx.Err() != nil
}

func (m *Mirror) emit(p *pass, e event.Event) {
	if m.events == nil {
		return
	}
	e.Timestamp = time.Now()
	e.PassID = p.id
	e.DryRun = m.dryRun
	select {
	case m.events <- e:
	default:
	}
}
