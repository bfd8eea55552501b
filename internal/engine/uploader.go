package engine

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/bamsammich/mirror/internal/event"
)

// upload transfers one file and stamps it with the local modification time.
// The stamp is written last so an interrupted transfer looks stale on the
// next pass and is retried.
func (m *Mirror) upload(ctx context.Context, p *pass, entry LocalEntry) error {
	if m.dryRun {
		p.logger.Info("would upload", "path", entry.Canonical, "size", entry.Size)
		return nil
	}

	if err := m.ensureParents(p, ParentDirs(entry.Canonical)); err != nil {
		return err
	}
	if err := m.session.ChangeDir("/"); err != nil {
		return fmt.Errorf("enter remote root: %w", err)
	}

	f, err := m.fs.Open(entry.Path)
	if err != nil {
		return fmt.Errorf("open local file: %w", err)
	}
	defer f.Close()

	counter := &countingReader{r: f}
	var r io.Reader = counter
	if m.limiter != nil {
		r = newRateLimitedReader(ctx, r, m.limiter)
	}
	h := newHasher()
	if m.verify {
		r = io.TeeReader(r, h)
	}

	if err := m.session.Store(entry.Canonical, r); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	p.stats.AddBytesUploaded(counter.n)

	if m.verify {
		if err := verifyRemote(m.session, entry.Canonical, digest(h)); err != nil {
			return err
		}
	}

	if err := m.session.SetModTime(entry.Canonical, entry.Stamp()); err != nil {
		return fmt.Errorf("set modification time: %w", err)
	}
	return nil
}

// ensureParents makes the remote directory chain dirs exist, one level at a
// time from the root. Directories are created lazily here and nowhere else.
func (m *Mirror) ensureParents(p *pass, dirs []string) error {
	if err := m.session.ChangeDir("/"); err != nil {
		return fmt.Errorf("enter remote root: %w", err)
	}

	current := "/"
	for _, dir := range dirs {
		current = path.Join(current, dir)
		if m.session.ChangeDir(dir) == nil {
			continue
		}

		// A failed create is fine as long as the directory can be entered;
		// another writer may have made it in between.
		mkErr := m.session.MakeDir(dir)
		if err := m.session.ChangeDir(dir); err != nil {
			if mkErr != nil {
				return fmt.Errorf("create remote directory %s: %w", current, mkErr)
			}
			return fmt.Errorf("enter remote directory %s: %w", current, err)
		}
		if mkErr == nil {
			p.stats.AddDirsCreated(1)
			p.logger.Info("created remote directory", "path", current+"/")
			m.emit(p, event.Event{Type: event.DirCreated, Path: current + "/"})
		}
	}
	return nil
}
