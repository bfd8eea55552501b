package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/bamsammich/mirror/internal/event"
)

// walk visits the children of dir depth-first in lexical order, recording
// every included entry in the expected set and uploading files the remote
// lacks or holds a different stamp for.
//
// A failure to list dir itself is returned; failures below it are isolated
// unless they abort the pass.
func (m *Mirror) walk(ctx context.Context, p *pass, dir string) error {
	infos, err := afero.ReadDir(m.fs, dir)
	if err != nil {
		return fmt.Errorf("read local directory %s: %w", dir, err)
	}

	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return err
		}

		local := filepath.Join(dir, info.Name())
		isDir := info.IsDir()
		if !isDir && !info.Mode().IsRegular() {
			p.logger.Debug("skipping irregular file", "path", local, "mode", info.Mode().String())
			continue
		}

		canonical, err := m.paths.Canonical(local, isDir)
		if err != nil {
			return err
		}
		if !m.filter.Match(canonical, isDir, info.Size()) {
			p.logger.Debug("ignored", "path", canonical)
			continue
		}
		p.expected.Add(canonical)

		if isDir {
			if err := m.walk(ctx, p, local); err != nil {
				if aborts(ctx, err) {
					return err
				}
				// Nothing under an unlisted directory is known, so
				// reconciliation must leave its remote side alone.
				p.partial[canonical] = true
				p.stats.AddFilesFailed(1)
				p.logger.Error("local directory unreadable", "path", canonical, "error", err)
				m.emit(p, event.Event{Type: event.FileFailed, Path: canonical, Error: err})
			}
			continue
		}

		p.stats.AddFilesScanned(1)
		entry := LocalEntry{
			Path:      local,
			Canonical: canonical,
			ModTime:   info.ModTime().Truncate(time.Second),
			Size:      info.Size(),
		}
		if err := m.syncFile(ctx, p, entry); err != nil {
			if aborts(ctx, err) {
				return err
			}
			p.stats.AddFilesFailed(1)
			p.logger.Error("upload failed", "path", canonical, "error", err)
			m.emit(p, event.Event{Type: event.FileFailed, Path: canonical, Size: entry.Size, Error: err})
		}
	}
	return nil
}

// syncFile consults the remote stamp and uploads the file when needed.
func (m *Mirror) syncFile(ctx context.Context, p *pass, entry LocalEntry) error {
	state, err := CheckFreshness(m.session, entry)
	if err != nil {
		return fmt.Errorf("%w: %s: query remote: %w", ErrTransfer, entry.Canonical, err)
	}
	if state == UpToDate {
		p.stats.AddFilesSkipped(1)
		if m.skipped {
			m.emit(p, event.Event{Type: event.FileSkipped, Path: entry.Canonical, Size: entry.Size})
		}
		return nil
	}

	if err := m.upload(ctx, p, entry); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTransfer, entry.Canonical, err)
	}
	p.stats.AddFilesUploaded(1)
	p.logger.Info("uploaded", "path", entry.Canonical, "state", state.String(), "size", entry.Size)
	m.emit(p, event.Event{Type: event.FileUploaded, Path: entry.Canonical, Size: entry.Size})
	return nil
}
