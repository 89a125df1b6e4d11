package reminder

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/rentpay/internal/app/service/dispatch"
	"github.com/fatflowers/rentpay/internal/platform/lock"
	"github.com/fatflowers/rentpay/pkg/clock"
	"github.com/fatflowers/rentpay/pkg/config"
)

const (
	jobTimeout      = 4 * time.Minute
	dispatchLockKey = "reminder:dispatch"
)

type cronLogger struct{ l *zap.SugaredLogger }

func (c cronLogger) Info(msg string, kv ...interface{}) { c.l.Debugw("cron_"+msg, kv...) }

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Errorw("cron_"+msg, append(kv, "err", err)...)
}

// Cron drives the periodic sweep and dispatch jobs.
type Cron struct {
	c          *cron.Cron
	svc        *Service
	dispatcher *dispatch.Dispatcher
	locker     lock.Locker
	clock      clock.Clock
	log        *zap.SugaredLogger
}

func NewCron(lc fx.Lifecycle, cfg *config.Config, svc *Service, d *dispatch.Dispatcher, locker lock.Locker,
	clk clock.Clock, log *zap.SugaredLogger) (*Cron, error) {
	cl := cronLogger{l: log}
	c := &Cron{
		c: cron.New(
			cron.WithLocation(cfg.Location()),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		svc:        svc,
		dispatcher: d,
		locker:     locker,
		clock:      clk,
		log:        log,
	}
	if _, err := c.c.AddFunc(cfg.Reminder.SweepSchedule, c.runSweep); err != nil {
		return nil, err
	}
	if _, err := c.c.AddFunc(cfg.Reminder.DispatchSchedule, c.runDispatch); err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			c.c.Start()
			log.Infow("reminder_cron_started", "sweep", cfg.Reminder.SweepSchedule, "dispatch", cfg.Reminder.DispatchSchedule)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			select {
			case <-c.c.Stop().Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
	return c, nil
}

func (c *Cron) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	res, err := c.svc.SweepAll(ctx, c.clock.Now())
	if err != nil {
		c.log.Errorw("reminder_sweep_all_failed", "err", err)
		return
	}
	c.log.Infow("reminder_sweep_all_done", "owners", len(res.Owners), "skipped", len(res.Skipped))
}

func (c *Cron) runDispatch() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	unlock, ok, err := c.locker.TryLock(ctx, dispatchLockKey, jobTimeout)
	if err != nil || !ok {
		c.log.Debugw("reminder_dispatch_lock_busy", "err", err)
		return
	}
	defer unlock()
	res, err := c.dispatcher.DispatchDue(ctx, c.clock.Now())
	if err != nil {
		c.log.Errorw("reminder_dispatch_due_failed", "err", err)
		return
	}
	if res.Attempted > 0 {
		c.log.Infow("reminder_dispatch_due_done", "attempted", res.Attempted, "sent", res.Sent, "failed", res.Failed, "cancelled", res.Cancelled)
	}
}
