package trace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/composer/pkg/models"
)

const (
	DefaultInterval    = 3 * time.Second
	DefaultMaxFailures = 5
	DefaultMaxBackoff  = 30 * time.Second
)

var (
	ErrPollerRunning   = errors.New("poller already running")
	ErrTooManyFailures = errors.New("too many consecutive poll failures")
)

// Fetcher loads the full run tree. *client.Client satisfies it.
type Fetcher interface {
	GetRun(ctx context.Context, id string) (*models.ExecutionRun, error)
}

type PollerConfig struct {
	Interval    time.Duration
	MaxFailures int
	MaxBackoff  time.Duration

	// Permanent marks errors that stop polling at once, e.g. a missing run.
	Permanent func(error) bool
	// OnTick is called after every fetch with its error, if any.
	OnTick func(err error)

	Logger *slog.Logger
}

func (c PollerConfig) withDefaults() PollerConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}

	if c.MaxFailures <= 0 {
		c.MaxFailures = DefaultMaxFailures
	}

	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}

	if c.MaxBackoff < c.Interval {
		c.MaxBackoff = c.Interval
	}

	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return c
}

// Poller refetches a run until it reaches a terminal status. Every tick
// replaces the whole snapshot.
type Poller struct {
	fetcher    Fetcher
	config     PollerConfig
	onSnapshot func(*models.ExecutionRun)
	logger     *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func NewPoller(fetcher Fetcher, config PollerConfig, onSnapshot func(*models.ExecutionRun)) *Poller {
	config = config.withDefaults()

	return &Poller{
		fetcher:    fetcher,
		config:     config,
		onSnapshot: onSnapshot,
		logger:     config.Logger.With("module", "trace_poller"),
	}
}

// Start fetches immediately and then every interval in a goroutine bound to ctx.
func (p *Poller) Start(ctx context.Context, runID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done != nil {
		select {
		case <-p.done:
		default:
			return ErrPollerRunning
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.cancel = cancel
	p.done = done
	p.err = nil

	go p.loop(ctx, runID, done)

	return nil
}

// Stop cancels polling and waits for the loop to exit. Safe to call more than once.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
}

// Done is closed when the loop exits. Nil before Start.
func (p *Poller) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.done
}

// Err is the reason polling ended: nil after a terminal status or cancellation.
func (p *Poller) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.err
}

func (p *Poller) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *Poller) loop(ctx context.Context, runID string, done chan struct{}) {
	defer close(done)

	logger := p.logger.With("run_id", runID)
	failures := 0

	for {
		run, err := p.fetcher.GetRun(ctx, runID)
		if ctx.Err() != nil {
			return
		}

		if p.config.OnTick != nil {
			p.config.OnTick(err)
		}

		wait := p.config.Interval

		switch {
		case err != nil && p.config.Permanent != nil && p.config.Permanent(err):
			logger.WarnContext(ctx, "Stopping poll on permanent error", "error", err)
			p.setErr(err)

			return
		case err != nil:
			failures++
			logger.WarnContext(ctx, "Poll failed", "failures", failures, "error", err)

			if failures >= p.config.MaxFailures {
				p.setErr(fmt.Errorf("%w: %w", ErrTooManyFailures, err))

				return
			}

			wait = p.backoff(failures)
		default:
			failures = 0

			if p.onSnapshot != nil {
				p.onSnapshot(run)
			}

			if run != nil && run.Status.IsTerminal() {
				logger.DebugContext(ctx, "Run finished", "status", run.Status)

				return
			}
		}

		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()

			return
		case <-timer.C:
		}
	}
}

func (p *Poller) backoff(failures int) time.Duration {
	wait := p.config.Interval

	for range failures {
		wait *= 2
		if wait >= p.config.MaxBackoff {
			return p.config.MaxBackoff
		}
	}

	return wait
}
