// Package reconcile_worker drains the reconcile_job outbox so every stored
// payment gets a matching attempt outside the webhook request.
package reconcile_worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/rentpay/internal/app/service/reconciliation"
	"github.com/fatflowers/rentpay/internal/models"
	"github.com/fatflowers/rentpay/internal/platform/db"
	"github.com/fatflowers/rentpay/pkg/clock"
	"github.com/fatflowers/rentpay/pkg/config"
)

// Reconciler runs one matching attempt.
type Reconciler interface {
	Reconcile(ctx context.Context, transactionID string) (*reconciliation.Decision, error)
}

type Options struct {
	Interval    time.Duration
	BatchSize   int
	LockTTL     time.Duration
	MaxAttempts int
}

type Worker struct {
	db    *gorm.DB
	log   *zap.SugaredLogger
	clock clock.Clock
	rec   Reconciler
	opts  Options
	id    string
	wake  chan struct{}

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(gdb *gorm.DB, log *zap.SugaredLogger, clk clock.Clock, rec Reconciler, opts Options) *Worker {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	host, _ := os.Hostname()
	return &Worker{
		db:    gdb,
		log:   log,
		clock: clk,
		rec:   rec,
		opts:  opts,
		id:    fmt.Sprintf("%s-%d", host, clk.Now().UnixNano()),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func newWorkerFromConfig(lc fx.Lifecycle, gdb *gorm.DB, log *zap.SugaredLogger, clk clock.Clock,
	eng *reconciliation.Engine, cfg *config.Config) *Worker {
	w := New(gdb, log, clk, eng, Options{
		Interval:    cfg.Worker.Interval,
		BatchSize:   cfg.Worker.BatchSize,
		LockTTL:     cfg.Worker.LockTTL,
		MaxAttempts: cfg.Worker.MaxAttempts,
	})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			w.cancel = cancel
			go w.Run(ctx)
			log.Infow("reconcile_worker_started", "worker_id", w.id, "interval", w.opts.Interval.String())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			w.stopOnce.Do(func() {
				if w.cancel != nil {
					w.cancel()
				}
			})
			select {
			case <-w.done:
			case <-ctx.Done():
			}
			return nil
		},
	})
	return w
}

var Module = fx.Options(
	fx.Provide(newWorkerFromConfig),
)

// Notify wakes the loop. It never blocks and coalesces bursts.
func (w *Worker) Notify() {
	if w == nil {
		return
	}
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	t := time.NewTicker(w.opts.Interval)
	defer t.Stop()
	for {
		for {
			n, err := w.ProcessOnce(ctx)
			if err != nil && ctx.Err() == nil {
				w.log.Errorw("reconcile_worker_batch_failed", "err", err)
			}
			// keep draining while batches come back full
			if err != nil || n < w.opts.BatchSize {
				break
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		case <-w.wake:
		}
	}
}

// ProcessOnce claims and runs one batch, returning how many jobs were claimed.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	jobs, err := w.claim(ctx)
	if err != nil {
		return 0, err
	}
	for i := range jobs {
		if ctx.Err() != nil {
			return i, ctx.Err()
		}
		w.process(ctx, &jobs[i])
	}
	return len(jobs), nil
}

func (w *Worker) claim(ctx context.Context) ([]models.ReconcileJob, error) {
	now := w.clock.Now().UTC()
	staleBefore := now.Add(-w.opts.LockTTL)
	var claimed []models.ReconcileJob
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("status = ? AND next_run_at <= ?", models.ReconcileJobStatusPending, now).
			Where("(locked_at IS NULL OR locked_at <= ?)", staleBefore).
			Order("next_run_at ASC, id ASC").
			Limit(w.opts.BatchSize)
		if db.IsPostgres(tx) {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		var candidates []models.ReconcileJob
		if err := q.Find(&candidates).Error; err != nil {
			return err
		}
		for i := range candidates {
			res := tx.Model(&models.ReconcileJob{}).
				Where("id = ? AND (locked_at IS NULL OR locked_at <= ?)", candidates[i].ID, staleBefore).
				Updates(map[string]any{"locked_at": now, "locked_by": w.id, "updated_at": now})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				candidates[i].LockedAt, candidates[i].LockedBy = &now, &w.id
				claimed = append(claimed, candidates[i])
			}
		}
		return nil
	})
	return claimed, err
}

func (w *Worker) process(ctx context.Context, job *models.ReconcileJob) {
	l := w.log.With("job_id", job.ID, "transaction_id", job.TransactionID, "owner_id", job.OwnerID)
	d, err := w.rec.Reconcile(ctx, job.TransactionID)
	now := w.clock.Now().UTC()
	if err == nil {
		w.finish(ctx, job, map[string]any{"status": models.ReconcileJobStatusDone, "last_error": ""}, now)
		l.Debugw("reconcile_job_done", "status", d.Status, "applied", d.Applied, "reason", d.Reason)
		return
	}

	attempts := job.Attempts + 1
	update := map[string]any{"attempts": attempts, "last_error": err.Error()}
	switch {
	case errors.Is(err, reconciliation.ErrTransactionNotFound), attempts >= w.opts.MaxAttempts:
		update["status"] = models.ReconcileJobStatusFailed
		l.Errorw("reconcile_job_failed", "attempts", attempts, "err", err)
	default:
		update["next_run_at"] = now.Add(time.Duration(attempts*attempts) * time.Second)
		l.Warnw("reconcile_job_retry", "attempts", attempts, "err", err)
	}
	w.finish(ctx, job, update, now)
}

func (w *Worker) finish(ctx context.Context, job *models.ReconcileJob, update map[string]any, now time.Time) {
	update["locked_at"] = nil
	update["locked_by"] = nil
	update["updated_at"] = now
	err := w.db.WithContext(ctx).Model(&models.ReconcileJob{}).
		Where("id = ? AND locked_by = ?", job.ID, w.id).
		Updates(update).Error
	if err != nil {
		w.log.Errorw("reconcile_job_update_failed", "job_id", job.ID, "err", err)
	}
}
