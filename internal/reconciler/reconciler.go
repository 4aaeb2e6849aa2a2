package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shawn/vesta-provisioner/internal/cache"
	"github.com/shawn/vesta-provisioner/internal/provision"
	"github.com/shawn/vesta-provisioner/internal/registry"
)

// Provisioners resolves the provisioner for a configured server
type Provisioners interface {
	For(serverID string) (*provision.Provisioner, string, error)
}

// Reconciler periodically checks for drift between the registry and the panels.
// An active service whose account the panel no longer lists is marked missing
// and its cached usage is dropped. Reachable accounts get their usage refreshed.
// Detached services have no panel account and are never probed.
type Reconciler struct {
	reg      registry.Client
	pool     Provisioners
	usage    cache.Usage
	interval time.Duration
}

// New creates a new Reconciler. usage may be nil.
func New(reg registry.Client, pool Provisioners, usage cache.Usage, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reconciler{
		reg:      reg,
		pool:     pool,
		usage:    usage,
		interval: interval,
	}
}

// Run starts the reconciliation loop. It blocks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	slog.Info("reconciler: starting", "interval", r.interval)

	// Run immediately on startup, then on ticker
	r.Reconcile(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("reconciler: shutting down")
			return
		case <-ticker.C:
			r.Reconcile(ctx)
		}
	}
}

// Reconcile performs a single pass over active services.
func (r *Reconciler) Reconcile(ctx context.Context) {
	services, err := r.reg.ListByStatus(ctx, registry.StatusActive)
	if err != nil {
		slog.Error("reconciler: failed to list active services", "err", err)
		return
	}
	if len(services) == 0 {
		return
	}

	slog.Debug("reconciler: checking active services", "count", len(services))

	for _, svc := range services {
		if ctx.Err() != nil {
			return
		}
		r.check(ctx, svc)
	}
}

func (r *Reconciler) check(ctx context.Context, svc *registry.ServiceRecord) {
	if svc.Detached {
		return
	}
	p, _, err := r.pool.For(svc.ServerID)
	if err != nil {
		slog.Error("reconciler: server not configured",
			"service", svc.ServiceID,
			"server", svc.ServerID,
			"err", err,
		)
		return
	}

	usage, err := p.GetUsage(ctx, svc.Username)
	switch {
	case err == nil:
		if r.usage == nil {
			return
		}
		if err := r.usage.Set(ctx, svc.ServiceID, usage); err != nil {
			slog.Error("reconciler: failed to cache usage", "service", svc.ServiceID, "err", err)
		}
		return
	case !errors.Is(err, provision.ErrRejected):
		// Unreachable panel says nothing about the account
		slog.Warn("reconciler: panel unreachable, skipping",
			"service", svc.ServiceID,
			"host", p.Host(),
			"err", err,
		)
		return
	}

	slog.Warn("reconciler: account missing on panel, marking service",
		"service", svc.ServiceID,
		"username", svc.Username,
		"host", p.Host(),
	)
	// The listing may be stale: a concurrent cancel or suspend wins.
	err = r.reg.TransitionStatus(ctx, svc.ServiceID, registry.StatusActive, registry.StatusMissing)
	if errors.Is(err, registry.ErrStatusChanged) {
		slog.Info("reconciler: service changed during check, leaving it", "service", svc.ServiceID)
		return
	}
	if err != nil {
		slog.Error("reconciler: failed to mark service missing", "service", svc.ServiceID, "err", err)
		return
	}
	if r.usage != nil {
		if err := r.usage.Delete(ctx, svc.ServiceID); err != nil {
			slog.Error("reconciler: failed to drop cached usage", "service", svc.ServiceID, "err", err)
		}
	}
}
