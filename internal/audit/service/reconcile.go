package service

import (
	"context"
	"time"

	"github.com/voyagekit/tariff/internal/config"
	"github.com/voyagekit/tariff/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const reconcileLockKey = "tariff:audit:reconcile"

// Reconciler periodically re-emits ledger rows that exhausted the retry
// backoff. The redis lock keeps a single instance flushing; without redis
// the instance flushes unguarded, which is safe because the append is
// duplicate-tolerant.
type Reconciler struct {
	holder *config.EngineConfigHolder
	log    *zap.Logger
	locker *ratelimit.Locker
	queue  *RetryQueue

	cancel context.CancelFunc
	done   chan struct{}
}

type ReconcilerParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Holder    *config.EngineConfigHolder
	Log       *zap.Logger
	Locker    *ratelimit.Locker `optional:"true"`
	Queue     *RetryQueue
}

func NewReconciler(p ReconcilerParams) *Reconciler {
	r := &Reconciler{
		holder: p.Holder,
		log:    p.Log.Named("audit.reconciler"),
		locker: p.Locker,
		queue:  p.Queue,
		done:   make(chan struct{}),
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			r.cancel = cancel
			go r.run(ctx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if r.cancel != nil {
				r.cancel()
			}
			select {
			case <-r.done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})

	return r
}

func (r *Reconciler) run(ctx context.Context) {
	defer close(r.done)

	interval := r.holder.Get().ReconcileInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)

			// Pick up hot-reloaded intervals between ticks.
			if next := r.holder.Get().ReconcileInterval; next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

func (r *Reconciler) tick(ctx context.Context) {
	if r.queue.Depth() == 0 {
		return
	}

	release, ok := r.acquire(ctx)
	if !ok {
		return
	}
	defer release()

	flushed, remaining := r.queue.Flush(ctx)
	r.log.Info("ledger reconciliation pass",
		zap.Int("flushed", flushed),
		zap.Int("remaining", remaining),
	)
}

func (r *Reconciler) acquire(ctx context.Context) (func(), bool) {
	if r.locker == nil {
		return func() {}, true
	}

	ttl := r.holder.Get().ReconcileInterval
	token, ok, err := r.locker.TryLock(ctx, reconcileLockKey, ttl)
	if err != nil {
		r.log.Warn("reconcile lock unavailable", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return func() {
		if err := r.locker.Release(ctx, reconcileLockKey, token); err != nil {
			r.log.Warn("reconcile lock release failed", zap.Error(err))
		}
	}, true
}
