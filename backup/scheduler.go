package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/xraph/invoicer/store"
)

// DefaultInterval is how often the scheduler checks for changes.
const DefaultInterval = 5 * time.Minute

// ErrNotStarted is returned by Stop on a scheduler that is not running.
var ErrNotStarted = errors.New("backup: scheduler not started")

// Scheduler snapshots a store into a directory whenever its tracker is dirty.
type Scheduler struct {
	target   store.Snapshotter
	tracker  *Tracker
	dir      string
	prefix   string
	interval time.Duration
	every    bool
	logger   *slog.Logger
	clock    func() time.Time

	mu       sync.Mutex // serializes runs
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	runMu    sync.Mutex // guards running and stopChan
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithEveryTick makes the worker snapshot on every tick whether or not the
// tracker saw a mutation. Use it in processes that do not write to the store
// themselves.
func WithEveryTick() Option {
	return func(s *Scheduler) { s.every = true }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithPrefix sets the snapshot file name prefix (default "invoices").
func WithPrefix(prefix string) Option {
	return func(s *Scheduler) { s.prefix = prefix }
}

// WithClock sets the time source used to name snapshot files.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) { s.clock = clock }
}

// NewScheduler creates a scheduler writing snapshots of target into dir.
func NewScheduler(target store.Snapshotter, tracker *Tracker, dir string, opts ...Option) *Scheduler {
	s := &Scheduler{
		target:   target,
		tracker:  tracker,
		dir:      dir,
		prefix:   "invoices",
		interval: DefaultInterval,
		logger:   slog.Default(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the background worker. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})

	s.wg.Add(1)
	go s.worker(ctx, s.stopChan)

	s.logger.Info("backup scheduler started", "dir", s.dir, "interval", s.interval)
}

// Stop halts the worker and takes a final snapshot if anything changed.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return ErrNotStarted
	}
	s.running = false
	close(s.stopChan)
	s.runMu.Unlock()

	s.wg.Wait()

	_, err := s.RunIfDirty(ctx)
	return err
}

func (s *Scheduler) worker(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.every {
				s.tracker.MarkDirty()
			}
			if _, err := s.RunIfDirty(ctx); err != nil {
				s.logger.Error("backup failed", "error", err)
			}
		}
	}
}

// RunIfDirty takes a snapshot when the tracker reports changes. It returns
// the written path, or "" when nothing was due.
func (s *Scheduler) RunIfDirty(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tracker.take() {
		return "", nil
	}
	path, err := s.snapshot(ctx)
	if err != nil {
		s.tracker.MarkDirty()
		return "", err
	}
	return path, nil
}

// RunNow takes a snapshot regardless of the tracker.
func (s *Scheduler) RunNow(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirty := s.tracker.take()
	path, err := s.snapshot(ctx)
	if err != nil && dirty {
		s.tracker.MarkDirty()
	}
	return path, err
}

func (s *Scheduler) snapshot(ctx context.Context) (string, error) {
	start := time.Now()
	path := filepath.Join(s.dir, FileName(s.prefix, s.clock()))

	if err := s.target.Snapshot(ctx, path); err != nil {
		return "", fmt.Errorf("backup: %w", err)
	}

	s.logger.Info("backup written",
		"path", path,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return path, nil
}

// FileName returns the snapshot file name for a run at t.
func FileName(prefix string, t time.Time) string {
	return fmt.Sprintf("%s-%s.db", prefix, t.UTC().Format("20060102T150405.000000000"))
}
