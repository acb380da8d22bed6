package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/homefs/internal/logger"
	"github.com/marmos91/homefs/pkg/audit"
	"github.com/marmos91/homefs/pkg/metrics"
	"github.com/marmos91/homefs/pkg/quota"
	"github.com/marmos91/homefs/pkg/reconcile"
	"github.com/marmos91/homefs/pkg/session"
	"github.com/marmos91/homefs/pkg/store/account"
	"github.com/marmos91/homefs/pkg/store/content"
	"github.com/marmos91/homefs/pkg/vfs"
)

// Runtime holds every component built from the configuration.
type Runtime struct {
	Accounts   account.Store
	Content    content.Store
	Quota      *quota.Store
	Sessions   *session.Manager
	Auditor    audit.Auditor
	Engine     *vfs.Engine
	Reconciler *reconcile.Reconciler
}

// InitializeRuntime builds the stores, the engine and its collaborators.
//
// The engine index is empty until Engine.Startup runs. On error, everything
// created so far is closed.
//
// Parameters:
//   - ctx: Context for store initialization
//   - cfg: Loaded and validated configuration
//   - m: Metrics from InitializeMetrics (nil for no metrics)
func InitializeRuntime(ctx context.Context, cfg *Config, m *MetricsResult) (_ *Runtime, err error) {
	if m == nil {
		m = &MetricsResult{VFS: metrics.NewNoopVFSMetrics(), API: metrics.NewNoopAPIMetrics()}
	}

	rt := &Runtime{}
	defer func() {
		if err != nil {
			if closeErr := rt.Close(); closeErr != nil {
				logger.Warn("Cleanup after failed initialization: %v", closeErr)
			}
		}
	}()

	// ========================================================================
	// Step 1: Stores
	// ========================================================================

	rt.Accounts, err = CreateAccountStore(ctx, &cfg.Accounts)
	if err != nil {
		return nil, fmt.Errorf("failed to create account store: %w", err)
	}
	logger.Info("Account store: %s", cfg.Accounts.Type)

	rt.Content, err = CreateContentStore(ctx, &cfg.Content, m.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to create content store: %w", err)
	}
	logger.Info("Content store: %s", cfg.Content.Type)

	// ========================================================================
	// Step 2: Quota, sessions, audit
	// ========================================================================

	rt.Quota = quota.New(rt.Accounts, quota.Config{DefaultQuotaMB: cfg.Accounts.DefaultQuotaMB})
	rt.Sessions = session.NewManager(session.Config{
		TTL:        cfg.Session.TTL,
		SingleSeat: cfg.Session.SingleSeat,
	})

	rt.Auditor, err = CreateAuditor(&cfg.Audit)
	if err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 3: Engine and reconciler
	// ========================================================================

	rt.Engine, err = vfs.New(vfs.Config{
		Quota:          rt.Quota,
		Content:        rt.Content,
		Sessions:       rt.Sessions,
		Auditor:        rt.Auditor,
		ReleaseMissing: cfg.Reconcile.ReleaseMissing,
		PruneOrphans:   cfg.Accounts.PruneOrphans,
	}, m.VFS)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	rt.Reconciler = reconcile.New(rt.Engine, reconcile.Config{
		Enabled:  cfg.Reconcile.Enabled,
		Interval: cfg.Reconcile.Interval,
		Timeout:  cfg.Reconcile.Timeout,
		DryRun:   cfg.Reconcile.DryRun,
	})

	return rt, nil
}

// CreateAuditor creates the audit sink selected by cfg.Type.
func CreateAuditor(cfg *AuditConfig) (audit.Auditor, error) {
	switch cfg.Type {
	case "noop":
		return audit.Noop{}, nil
	case "log":
		return audit.NewLogAuditor(), nil
	case "file":
		a, err := audit.NewFileAuditor(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown audit type: %q", cfg.Type)
	}
}

// Close releases the auditor and both stores.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Auditor != nil {
		errs = append(errs, rt.Auditor.Close())
	}
	if rt.Content != nil {
		errs = append(errs, rt.Content.Close())
	}
	if rt.Accounts != nil {
		errs = append(errs, rt.Accounts.Close())
	}
	return errors.Join(errs...)
}
