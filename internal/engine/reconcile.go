package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/bamsammich/mirror/internal/event"
	"github.com/bamsammich/mirror/internal/transport"
)

// reconcile walks the remote directory dir and deletes every entry whose
// canonical path is not in the sealed expected set. Expected directories are
// descended into; entries excluded by the ignore rules are left alone.
func (m *Mirror) reconcile(ctx context.Context, p *pass, dir string) error {
	entries, err := m.listRemote(dir)
	if err != nil {
		if aborts(ctx, err) {
			return err
		}
		m.reconcileFailed(p, dir, err)
		return nil
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		canonical := e.Path()
		if !m.filter.Match(canonical, e.IsDir, e.Size) {
			continue
		}

		if !p.expected.Has(canonical) {
			if err := m.removeRemote(ctx, p, e); err != nil && aborts(ctx, err) {
				return err
			}
			continue
		}

		if e.IsDir && !p.partial[canonical] {
			if err := m.reconcile(ctx, p, canonical); err != nil {
				return err
			}
		}
	}
	return nil
}

// listRemote lists dir from a freshly re-entered root, so no earlier
// directory change can skew the paths.
func (m *Mirror) listRemote(dir string) ([]transport.RemoteEntry, error) {
	if err := m.session.ChangeDir("/"); err != nil {
		return nil, fmt.Errorf("enter remote root: %w", err)
	}
	entries, err := m.session.List(dir)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	return entries, nil
}

// removeRemote deletes one unexpected entry. Directories are emptied
// depth-first and then removed.
func (m *Mirror) removeRemote(ctx context.Context, p *pass, e transport.RemoteEntry) error {
	canonical := e.Path()
	if m.dryRun {
		p.stats.AddEntriesDeleted(1)
		p.logger.Info("would delete remote entry", "path", canonical)
		m.emit(p, event.Event{Type: event.RemoteDeleted, Path: canonical})
		return nil
	}

	if e.IsDir {
		return m.purgeDir(ctx, p, canonical)
	}

	if err := m.session.DeleteFile(canonical); err != nil {
		m.reconcileFailed(p, canonical, err)
		return err
	}
	m.deleted(p, canonical)
	return nil
}

// purgeDir removes everything below dir and then dir itself. A child that
// cannot be removed leaves dir in place; its siblings are still removed.
func (m *Mirror) purgeDir(ctx context.Context, p *pass, dir string) error {
	children, err := m.listRemote(dir)
	if err != nil {
		m.reconcileFailed(p, dir, err)
		return err
	}

	var firstErr error
	for _, child := range children {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.removeRemote(ctx, p, child); err != nil {
			if aborts(ctx, err) {
				return err
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return firstErr
	}

	if err := m.session.RemoveDir(dir); err != nil {
		m.reconcileFailed(p, dir, err)
		return err
	}
	m.deleted(p, dir)
	return nil
}

func (m *Mirror) deleted(p *pass, canonical string) {
	p.stats.AddEntriesDeleted(1)
	p.logger.Info("deleted remote entry", "path", canonical)
	m.emit(p, event.Event{Type: event.RemoteDeleted, Path: canonical})
}

// reconcileFailed reports a failed entry. Lost connections are left to the
// caller, which aborts the pass.
func (m *Mirror) reconcileFailed(p *pass, canonical string, err error) {
	if errors.Is(err, transport.ErrConnLost) {
		return
	}
	err = fmt.Errorf("%w: %s: %w", ErrReconcile, canonical, err)
	p.stats.AddReconcileFailed(1)
	p.logger.Error("reconcile failed", "path", canonical, "error", err)
	m.emit(p, event.Event{Type: event.ReconcileFailed, Path: canonical, Error: err})
}
