package stats

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Collector tracks the counters of one synchronization pass, or the running
// totals of a session when passes are merged into it. The pass worker
// writes; presenters may read concurrently, hence atomics.
type Collector struct {
	passes          atomic.Int64
	filesScanned    atomic.Int64
	filesUploaded   atomic.Int64
	filesSkipped    atomic.Int64
	filesFailed     atomic.Int64
	bytesUploaded   atomic.Int64
	dirsCreated     atomic.Int64
	entriesDeleted  atomic.Int64
	reconcileFailed atomic.Int64
	startTime       time.Time
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	Passes          int64
	FilesScanned    int64
	FilesUploaded   int64
	FilesSkipped    int64
	FilesFailed     int64
	BytesUploaded   int64
	DirsCreated     int64
	EntriesDeleted  int64
	ReconcileFailed int64
	Elapsed         time.Duration
}

func (c *Collector) AddPasses(n int64)          { c.passes.Add(n) }
func (c *Collector) AddFilesScanned(n int64)    { c.filesScanned.Add(n) }
func (c *Collector) AddFilesUploaded(n int64)   { c.filesUploaded.Add(n) }
func (c *Collector) AddFilesSkipped(n int64)    { c.filesSkipped.Add(n) }
func (c *Collector) AddFilesFailed(n int64)     { c.filesFailed.Add(n) }
func (c *Collector) AddBytesUploaded(n int64)   { c.bytesUploaded.Add(n) }
func (c *Collector) AddDirsCreated(n int64)     { c.dirsCreated.Add(n) }
func (c *Collector) AddEntriesDeleted(n int64)  { c.entriesDeleted.Add(n) }
func (c *Collector) AddReconcileFailed(n int64) { c.reconcileFailed.Add(n) }

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		Passes:          c.passes.Load(),
		FilesScanned:    c.filesScanned.Load(),
		FilesUploaded:   c.filesUploaded.Load(),
		FilesSkipped:    c.filesSkipped.Load(),
		FilesFailed:     c.filesFailed.Load(),
		BytesUploaded:   c.bytesUploaded.Load(),
		DirsCreated:     c.dirsCreated.Load(),
		EntriesDeleted:  c.entriesDeleted.Load(),
		ReconcileFailed: c.reconcileFailed.Load(),
		Elapsed:         c.Elapsed(),
	}
}

// Merge adds the counters of s to c. Elapsed is not merged; a session
// collector measures its own lifetime.
func (c *Collector) Merge(s Snapshot) {
	c.passes.Add(s.Passes)
	c.filesScanned.Add(s.FilesScanned)
	c.filesUploaded.Add(s.FilesUploaded)
	c.filesSkipped.Add(s.FilesSkipped)
	c.filesFailed.Add(s.FilesFailed)
	c.bytesUploaded.Add(s.BytesUploaded)
	c.dirsCreated.Add(s.DirsCreated)
	c.entriesDeleted.Add(s.EntriesDeleted)
	c.reconcileFailed.Add(s.ReconcileFailed)
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

// Changed reports whether the pass modified the remote tree.
func (s Snapshot) Changed() bool {
	return s.FilesUploaded > 0 || s.DirsCreated > 0 || s.EntriesDeleted > 0
}

// Errors returns the number of per-entry failures in the pass.
func (s Snapshot) Errors() int64 {
	return s.FilesFailed + s.ReconcileFailed
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"scanned=%d uploaded=%d skipped=%d failed=%d bytes=%d dirs=%d deleted=%d reconcile_failed=%d",
		s.FilesScanned, s.FilesUploaded, s.FilesSkipped, s.FilesFailed,
		s.BytesUploaded, s.DirsCreated, s.EntriesDeleted, s.ReconcileFailed,
	)
}

// FormatBytes returns a human-readable byte count in IEC units.
func FormatBytes(b int64) string {
	if b < 0 {
		return "-" + FormatBytes(-b)
	}
	return humanize.IBytes(uint64(b))
}
