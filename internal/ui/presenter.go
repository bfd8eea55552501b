package ui

import (
	"io"

	"github.com/bamsammich/mirror/internal/event"
	"github.com/bamsammich/mirror/internal/stats"
)

// Event is the engine event presenters consume.
type Event = event.Event

// Presenter consumes events and displays progress.
type Presenter interface {
	// Run consumes events until the channel closes. Blocks until done.
	Run(events <-chan Event) error
	// Summary returns the final summary line.
	Summary() string
}

// Config configures a Presenter.
type Config struct {
	Writer    io.Writer
	ErrWriter io.Writer
	Quiet     bool
	Verbose   bool             // also report unchanged files
	Stats     *stats.Collector // session totals for the summary; nil = no summary
}

// NewPresenter creates the appropriate presenter based on configuration.
//
//nolint:ireturn // factory function returns interface by design
func NewPresenter(cfg Config) Presenter {
	if cfg.Quiet {
		return &quietPresenter{}
	}
	return newPlainPresenter(cfg.Writer, cfg.ErrWriter, cfg.Verbose, cfg.Stats)
}
