package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/bamsammich/mirror/internal/event"
	"github.com/bamsammich/mirror/internal/transport"
)

// State is the scheduler's lifecycle state.
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// PassRunner is what the scheduler drives. *Mirror implements it.
type PassRunner interface {
	RunPass(ctx context.Context) (PassResult, error)
	Probe() error
}

// SchedulerOpts configures a Scheduler.
type SchedulerOpts struct {
	Clock  clockwork.Clock // defaults to the real clock
	Logger *slog.Logger    // defaults to slog.Default()
	Events chan<- event.Event
}

// Scheduler runs passes on a fixed interval from a single worker goroutine,
// so passes never overlap. After each pass it probes the session; a failed
// probe or a lost connection halts it for good.
type Scheduler struct {
	runner PassRunner
	clock  clockwork.Clock
	logger *slog.Logger
	events chan<- event.Event

	mu     sync.Mutex
	state  State
	halted error
	stop   chan struct{}
	done   chan struct{}
}

// NewScheduler returns a stopped scheduler for runner.
func NewScheduler(runner PassRunner, opts SchedulerOpts) *Scheduler {
	s := &Scheduler{
		runner: runner,
		clock:  opts.Clock,
		logger: opts.Logger,
		events: opts.Events,
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Start begins ticking every interval; the first pass runs after one full
// interval. Cancelling ctx stops the scheduler and aborts the pass in flight.
// After Stop, Start returns ErrAlreadyRunning until the pass in flight has
// finished; call Wait first.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval %s", interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.halted != nil {
		return fmt.Errorf("%w: %w", ErrHalted, s.halted)
	}
	if s.state == Running || s.workerAlive() {
		return ErrAlreadyRunning
	}

	s.state = Running
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	ticker := s.clock.NewTicker(interval)
	go s.loop(ctx, ticker, s.stop, s.done)

	s.logger.Debug("scheduler started", "interval", interval)
	return nil
}

// workerAlive reports whether the goroutine of the previous Start is still
// running, as it is while a pass outlives Stop. Callers hold s.mu.
func (s *Scheduler) workerAlive() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Stop cancels future ticks. A pass already running completes; use Wait to
// block until it has.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running {
		return
	}
	s.state = Stopped
	close(s.stop)
}

// Wait blocks until the worker goroutine of the latest Start has exited.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the liveness failure that halted the scheduler, if any.
func (s *Scheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted
}

func (s *Scheduler) loop(ctx context.Context, ticker clockwork.Ticker, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.finish(stop, nil)
			return
		case <-stop:
			return
		case <-ticker.Chan():
			// Stop may race with a tick; a stopped scheduler starts nothing.
			select {
			case <-stop:
				return
			default:
			}
			if err := s.tick(ctx); err != nil {
				s.finish(stop, err)
				return
			}
		}
	}
}

// tick runs one pass and the liveness probe. It returns an error only when
// the scheduler must halt.
func (s *Scheduler) tick(ctx context.Context) error {
	_, err := s.runner.RunPass(ctx)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil
	case errors.Is(err, transport.ErrConnLost):
		return fmt.Errorf("%w: %w", ErrLivenessLost, err)
	default:
		s.logger.Error("pass failed", "error", err)
	}

	if err := s.runner.Probe(); err != nil {
		if errors.Is(err, ErrLivenessLost) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrLivenessLost, err)
	}
	return nil
}

// finish moves to Stopped after the loop ends on its own. A non-nil err
// halts the scheduler permanently.
func (s *Scheduler) finish(stop chan struct{}, err error) {
	s.mu.Lock()
	if s.stop == stop && s.state == Running {
		s.state = Stopped
	}
	if err != nil {
		s.halted = err
	}
	s.mu.Unlock()

	if err == nil {
		s.logger.Debug("scheduler stopped")
		return
	}
	s.logger.Error("connection lost, synchronization stopped", "error", err)
	if s.events != nil {
		select {
		case s.events <- event.Event{Type: event.LivenessLost, Timestamp: time.Now(), Error: err}:
		default:
		}
	}
}
