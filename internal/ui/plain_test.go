package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/mirror/internal/event"
	"github.com/bamsammich/mirror/internal/stats"
)

func runPlain(t *testing.T, verbose bool, evs ...Event) (*plainPresenter, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	p := newPlainPresenter(&out, &errOut, verbose, stats.NewCollector())

	events := make(chan Event, len(evs))
	for _, ev := range evs {
		events <- ev
	}
	close(events)

	require.NoError(t, p.Run(events))
	return p, out.String(), errOut.String()
}

func TestPlainPresenterChanges(t *testing.T) {
	_, out, errOut := runPlain(t, false,
		Event{Type: event.PassStarted},
		Event{Type: event.DirCreated, Path: "/dir/"},
		Event{Type: event.FileUploaded, Path: "/dir/file.txt", Size: 1024},
		Event{Type: event.RemoteDeleted, Path: "/extra.txt"},
		Event{Type: event.PassComplete},
	)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "mkdir   /dir/", lines[0])
	assert.Equal(t, "upload  /dir/file.txt  1.0 KiB", lines[1])
	assert.Equal(t, "delete  /extra.txt", lines[2])
	assert.Empty(t, errOut)
}

func TestPlainPresenterSkippedOnlyWhenVerbose(t *testing.T) {
	skip := Event{Type: event.FileSkipped, Path: "/same.txt"}

	_, out, _ := runPlain(t, false, skip)
	assert.Empty(t, out)

	_, out, _ = runPlain(t, true, skip)
	assert.Contains(t, out, "/same.txt")
}

func TestPlainPresenterFailures(t *testing.T) {
	_, out, errOut := runPlain(t, false,
		Event{Type: event.FileFailed, Path: "/fail.txt", Error: assert.AnError},
		Event{Type: event.ReconcileFailed, Path: "/stuck/"},
		Event{Type: event.LivenessLost, Error: errors.New("EOF")},
	)

	assert.Empty(t, out)
	assert.Contains(t, errOut, "/fail.txt  "+assert.AnError.Error())
	assert.Contains(t, errOut, "/stuck/  error")
	assert.Contains(t, errOut, "connection lost: EOF")
}

func TestPlainPresenterDryRun(t *testing.T) {
	_, out, _ := runPlain(t, false,
		Event{Type: event.FileUploaded, Path: "/a.txt", Size: 3, DryRun: true},
	)
	assert.True(t, strings.HasPrefix(out, "(dry run) upload  /a.txt"))
}

func TestPlainPresenterSummary(t *testing.T) {
	totals := stats.NewCollector()
	totals.Merge(stats.Snapshot{Passes: 1, FilesUploaded: 2, BytesUploaded: 2 << 20, EntriesDeleted: 1})
	totals.Merge(stats.Snapshot{Passes: 1, FilesSkipped: 2})

	// The summary reads the totals even when most events never arrived.
	var out bytes.Buffer
	p := newPlainPresenter(&out, &out, false, totals)
	events := make(chan Event, 1)
	events <- Event{Type: event.FileUploaded, Path: "/a", Size: 1 << 20}
	close(events)
	require.NoError(t, p.Run(events))

	s := p.Summary()
	assert.Contains(t, s, "passes 2")
	assert.Contains(t, s, "uploaded 2")
	assert.Contains(t, s, "size 2.0 MiB")
	assert.Contains(t, s, "deleted 1")
	assert.Contains(t, s, "errors 0")
	assert.Contains(t, s, "✓")
}

func TestPlainPresenterSummaryWithoutTotals(t *testing.T) {
	var out bytes.Buffer
	p := newPlainPresenter(&out, &out, false, nil)
	assert.Empty(t, p.Summary())
}

func TestSessionSummaryWithErrors(t *testing.T) {
	s := sessionSummary(stats.Snapshot{Passes: 1, FilesFailed: 1, ReconcileFailed: 1, Elapsed: 90 * time.Second})
	assert.Contains(t, s, "✗")
	assert.Contains(t, s, "time 1m 30s")
	assert.Contains(t, s, "errors 2")
}

func TestNewPresenter(t *testing.T) {
	var buf bytes.Buffer
	assert.IsType(t, &quietPresenter{}, NewPresenter(Config{Quiet: true}))
	assert.IsType(t, &plainPresenter{}, NewPresenter(Config{Writer: &buf, ErrWriter: &buf, Stats: stats.NewCollector()}))

	q := NewPresenter(Config{Quiet: true})
	events := make(chan Event, 1)
	events <- Event{Type: event.FileUploaded, Path: "/x"}
	close(events)
	require.NoError(t, q.Run(events))
	assert.Empty(t, q.Summary())
}
