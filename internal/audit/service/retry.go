package service

import (
	"context"
	"sync"
	"time"

	"github.com/voyagekit/tariff/internal/audit/domain"
	"github.com/voyagekit/tariff/internal/config"
	"github.com/voyagekit/tariff/internal/observability/metrics"
	"github.com/voyagekit/tariff/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// insertFunc is the single retry target: an idempotent ledger append.
type insertFunc func(ctx context.Context, app *domain.RuleApplication) error

// RetryQueue holds ledger rows whose initial append failed. A single
// worker drains the queue with exponential backoff; rows that still fail
// once the backoff is capped are parked for the reconciler to re-emit.
type RetryQueue struct {
	holder  *config.EngineConfigHolder
	log     *zap.Logger
	metrics *metrics.Metrics

	ch     chan *domain.RuleApplication
	insert insertFunc

	mu     sync.Mutex
	parked []*domain.RuleApplication

	cancel context.CancelFunc
	done   chan struct{}
}

type RetryParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Holder    *config.EngineConfigHolder
	Log       *zap.Logger
	Metrics   *metrics.Metrics
	DB        *gorm.DB
	Repo      domain.Repository
}

func NewRetryQueue(p RetryParams) *RetryQueue {
	q := newRetryQueue(p.Holder, p.Log, p.Metrics, func(ctx context.Context, app *domain.RuleApplication) error {
		return p.Repo.Insert(ctx, p.DB, app)
	})

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			q.start()
			return nil
		},
		OnStop: q.stop,
	})

	return q
}

func newRetryQueue(holder *config.EngineConfigHolder, log *zap.Logger, m *metrics.Metrics, insert insertFunc) *RetryQueue {
	return &RetryQueue{
		holder:  holder,
		log:     log.Named("audit.retry"),
		metrics: m,
		ch:      make(chan *domain.RuleApplication, holder.Get().AuditRetryQueueSize),
		insert:  insert,
		done:    make(chan struct{}),
	}
}

func (q *RetryQueue) start() {
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	go q.run(ctx)
}

// stop waits for the worker so an in-flight append finishes before the
// DB pool closes.
func (q *RetryQueue) stop(ctx context.Context) error {
	if q.cancel == nil {
		return nil
	}
	q.cancel()
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue never blocks the evaluation path. A full queue parks the row
// directly so the reconciler still sees it.
func (q *RetryQueue) Enqueue(app *domain.RuleApplication) {
	select {
	case q.ch <- app:
	default:
		q.park(app)
		q.log.Warn("retry queue full, parking row for reconciler",
			zap.String("rule_application_id", app.ID.String()),
		)
	}
}

// Depth reports queued plus parked rows.
func (q *RetryQueue) Depth() int {
	q.mu.Lock()
	parked := len(q.parked)
	q.mu.Unlock()
	return len(q.ch) + parked
}

func (q *RetryQueue) run(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case <-ctx.Done():
			return
		case app := <-q.ch:
			q.drainOne(ctx, app)
		}
	}
}

func (q *RetryQueue) drainOne(ctx context.Context, app *domain.RuleApplication) {
	cfg := q.holder.Get()
	backoff := cfg.AuditRetryInterval

	for {
		if err := q.insert(ctx, app); err == nil {
			q.metrics.RecordAuditRetry(ctx, "flushed")
			q.log.Info("deferred ledger row flushed",
				zap.String("rule_application_id", app.ID.String()),
			)
			return
		} else if db.IsDuplicateKeyErr(err) {
			// Row landed on an earlier attempt.
			q.metrics.RecordAuditRetry(ctx, "flushed")
			return
		}

		if backoff >= cfg.AuditRetryMaxInterval {
			q.metrics.RecordAuditRetry(ctx, "parked")
			q.park(app)
			q.log.Error("ledger row exhausted retry backoff, parked",
				zap.String("rule_application_id", app.ID.String()),
			)
			return
		}

		q.metrics.RecordAuditRetry(ctx, "retrying")
		select {
		case <-ctx.Done():
			q.park(app)
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > cfg.AuditRetryMaxInterval {
			backoff = cfg.AuditRetryMaxInterval
		}
	}
}

func (q *RetryQueue) park(app *domain.RuleApplication) {
	q.mu.Lock()
	q.parked = append(q.parked, app)
	q.mu.Unlock()
}

// Flush re-attempts every parked row once. Rows that still fail stay
// parked. Called by the reconciler under its lock.
func (q *RetryQueue) Flush(ctx context.Context) (flushed, remaining int) {
	q.mu.Lock()
	pending := q.parked
	q.parked = nil
	q.mu.Unlock()

	for _, app := range pending {
		err := q.insert(ctx, app)
		if err == nil || db.IsDuplicateKeyErr(err) {
			flushed++
			continue
		}
		q.park(app)
		remaining++
	}
	return flushed, remaining
}
