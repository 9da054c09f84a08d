package reconcile

import (
	"context"
	"time"

	"github.com/draftworks/meridian/internal/config"
	payoutdomain "github.com/draftworks/meridian/internal/payout/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	PayoutSvc payoutdomain.Service
	Policy    *config.PayoutPolicyHolder
}

// Reconciler periodically sweeps payout requests stuck in processing and
// resolves them against the provider's records.
type Reconciler struct {
	log       *zap.Logger
	payoutSvc payoutdomain.Service
	policy    *config.PayoutPolicyHolder
}

func New(p Params) *Reconciler {
	return &Reconciler{
		log:       p.Log.Named("reconcile"),
		payoutSvc: p.PayoutSvc,
		policy:    p.Policy,
	}
}

func (r *Reconciler) RunOnce(ctx context.Context) error {
	n, err := r.payoutSvc.ReconcileStale(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		r.log.Info("reconciled stale payouts", zap.Int("count", n))
	}
	return nil
}

func (r *Reconciler) RunForever(ctx context.Context) {
	interval := r.interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := r.RunOnce(ctx); err != nil {
			r.log.Warn("payout reconciliation run failed", zap.Error(err))
		}
		// Interval is hot-reloadable through the payout policy file.
		if next := r.interval(); next != interval {
			interval = next
			ticker.Reset(interval)
		}
	}
}

func (r *Reconciler) interval() time.Duration {
	minutes := r.policy.Get().ReconcileIntervalMinutes
	if minutes <= 0 {
		minutes = 5
	}
	return time.Duration(minutes) * time.Minute
}
