// Package leader runs a function only while this replica holds a Lease.
package leader

import (
	"context"
	"log/slog"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"
)

const leaseName = "vesta-provisioner-leader"

// Elector gates background work behind Kubernetes leader election
type Elector struct {
	cs        kubernetes.Interface
	namespace string
	id        string

	LeaseDuration time.Duration
	RenewDeadline time.Duration
	RetryPeriod   time.Duration
}

func New(cs kubernetes.Interface, namespace, id string) *Elector {
	return &Elector{
		cs:            cs,
		namespace:     namespace,
		id:            id,
		LeaseDuration: 15 * time.Second,
		RenewDeadline: 10 * time.Second,
		RetryPeriod:   2 * time.Second,
	}
}

// Run blocks until ctx is cancelled. work runs with a context that is
// cancelled when leadership is lost.
func (e *Elector) Run(ctx context.Context, work func(ctx context.Context)) {
	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      leaseName,
			Namespace: e.namespace,
		},
		Client: e.cs.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: e.id,
		},
	}

	leaderelection.RunOrDie(ctx, leaderelection.LeaderElectionConfig{
		Lock:            lock,
		ReleaseOnCancel: true,
		LeaseDuration:   e.LeaseDuration,
		RenewDeadline:   e.RenewDeadline,
		RetryPeriod:     e.RetryPeriod,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: func(ctx context.Context) {
				slog.Info("leader election: became leader", "id", e.id)
				work(ctx)
			},
			OnStoppedLeading: func() {
				slog.Info("leader election: lost leadership", "id", e.id)
			},
			OnNewLeader: func(identity string) {
				if identity != e.id {
					slog.Info("leader election: new leader", "leader", identity)
				}
			},
		},
	})
}
