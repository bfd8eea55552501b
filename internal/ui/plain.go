package ui

import (
	"fmt"
	"io"

	"github.com/bamsammich/mirror/internal/event"
	"github.com/bamsammich/mirror/internal/stats"
)

// plainPresenter prints one line per remote change to w, and failures to
// errW. Events may be dropped under load, so the final summary reads the
// session totals the engine keeps rather than counting lines.
type plainPresenter struct {
	w       io.Writer
	errW    io.Writer
	verbose bool
	totals  *stats.Collector
}

func newPlainPresenter(w, errW io.Writer, verbose bool, totals *stats.Collector) *plainPresenter {
	return &plainPresenter{
		w:       w,
		errW:    errW,
		verbose: verbose,
		totals:  totals,
	}
}

func (p *plainPresenter) Run(events <-chan Event) error {
	for ev := range events {
		p.handleEvent(ev)
	}
	return nil
}

func (p *plainPresenter) handleEvent(ev Event) {
	prefix := ""
	if ev.DryRun {
		prefix = "(dry run) "
	}

	switch ev.Type {
	case event.FileUploaded:
		fmt.Fprintf(p.w, "%supload  %s  %s\n", prefix, ev.Path, FormatBytes(ev.Size))
	case event.FileSkipped:
		if p.verbose {
			fmt.Fprintf(p.w, "%sok      %s\n", prefix, ev.Path)
		}
	case event.DirCreated:
		fmt.Fprintf(p.w, "%smkdir   %s\n", prefix, ev.Path)
	case event.RemoteDeleted:
		fmt.Fprintf(p.w, "%sdelete  %s\n", prefix, ev.Path)
	case event.FileFailed, event.ReconcileFailed:
		fmt.Fprintf(p.errW, "error   %s  %s\n", ev.Path, errText(ev.Error))
	case event.LivenessLost:
		fmt.Fprintf(p.errW, "connection lost: %s\n", errText(ev.Error))
	case event.PassStarted, event.PassComplete:
		// silent
	}
}

func (p *plainPresenter) Summary() string {
	if p.totals == nil {
		return ""
	}
	return sessionSummary(p.totals.Snapshot())
}

func errText(err error) string {
	if err == nil {
		return "error"
	}
	return err.Error()
}
