// Package reconcile repairs divergence between the logical file index and
// physical storage in the background.
//
// Divergence appears when objects are added or removed behind the server's back
// (manual edits of a home directory, a lost S3 object, a restore from backup).
// The reconciler periodically re-runs the startup synchronization of the
// virtual filesystem, which trusts physical presence.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/homefs/internal/logger"
	"github.com/marmos91/homefs/pkg/vfs"
)

// Syncer is the part of the virtual filesystem the reconciler drives.
type Syncer interface {
	// Sync applies physical state to the logical index
	Sync(ctx context.Context) (*vfs.SyncResult, error)

	// Diff reports what Sync would change without applying it
	Diff(ctx context.Context) (*vfs.SyncResult, error)
}

// Config contains configuration for the reconciler.
type Config struct {
	// Enabled controls whether background reconciliation runs (default: false)
	Enabled bool

	// Interval is how often to reconcile (default: 1h)
	Interval time.Duration

	// Timeout bounds a single pass (default: 10m)
	Timeout time.Duration

	// DryRun logs what would change without modifying the index
	DryRun bool
}

// Reconciler runs periodic synchronization passes.
//
// Thread Safety: Safe for concurrent use.
type Reconciler struct {
	syncer Syncer
	config Config

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}

	mu      sync.Mutex
	started bool
	last    *Stats
}

// Stats describes one reconciliation pass.
type Stats struct {
	StartTime time.Time
	EndTime   time.Time
	DryRun    bool
	Result    *vfs.SyncResult
	Err       error
}

// Duration returns the duration of the pass.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the pass.
func (s *Stats) Summary() string {
	r := s.Result
	if r == nil {
		r = &vfs.SyncResult{}
	}
	return fmt.Sprintf("accounts=%d discovered=%d dropped=%d pruned=%d dry_run=%v duration=%s",
		r.Accounts, r.Discovered, r.Dropped, len(r.Pruned), s.DryRun, s.Duration())
}

// New creates a reconciler. Call Start to begin background passes.
func New(syncer Syncer, config Config) *Reconciler {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Minute
	}

	return &Reconciler{
		syncer: syncer,
		config: config,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins background reconciliation. Subsequent calls are no-ops.
func (r *Reconciler) Start() {
	if !r.config.Enabled {
		logger.Info("Background reconciliation disabled")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	logger.Info("Starting reconciler: interval=%s dry_run=%v", r.config.Interval, r.config.DryRun)
	go r.worker()
}

// Stop signals the worker to stop and waits for the pass in progress.
//
// Returns ctx.Err() if the context expires before the worker exits.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return nil
	}

	r.stopOnce.Do(func() {
		logger.Info("Stopping reconciler...")
		close(r.stopCh)
	})

	select {
	case <-r.doneCh:
		logger.Info("Reconciler stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Reconciler shutdown timeout")
		return ctx.Err()
	}
}

// RunNow performs one pass immediately and blocks until it completes.
func (r *Reconciler) RunNow(ctx context.Context) (*Stats, error) {
	logger.Info("Running reconciliation (manual trigger)...")
	stats := r.run(ctx)
	return stats, stats.Err
}

// Last returns the stats of the most recent pass, or nil.
func (r *Reconciler) Last() *Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Reconciler) worker() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.config.Timeout)
			stats := r.run(ctx)
			cancel()

			if stats.Err != nil {
				logger.Error("Reconciliation failed: %v", stats.Err)
			} else {
				logger.Info("Reconciliation completed: %s", stats.Summary())
			}

		case <-r.stopCh:
			return
		}
	}
}

func (r *Reconciler) run(ctx context.Context) *Stats {
	stats := &Stats{StartTime: time.Now(), DryRun: r.config.DryRun}

	if r.config.DryRun {
		stats.Result, stats.Err = r.syncer.Diff(ctx)
	} else {
		stats.Result, stats.Err = r.syncer.Sync(ctx)
	}
	stats.EndTime = time.Now()

	r.mu.Lock()
	r.last = stats
	r.mu.Unlock()
	return stats
}
