package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/fatflowers/rentpay/internal/app/api/server"
	"github.com/fatflowers/rentpay/internal/app/service/csvimport"
	"github.com/fatflowers/rentpay/internal/app/service/directory"
	"github.com/fatflowers/rentpay/internal/app/service/dispatch"
	"github.com/fatflowers/rentpay/internal/app/service/eventstore"
	notificationhandler "github.com/fatflowers/rentpay/internal/app/service/notification_handler"
	notificationlog "github.com/fatflowers/rentpay/internal/app/service/notification_log"
	"github.com/fatflowers/rentpay/internal/app/service/paymentconfig"
	"github.com/fatflowers/rentpay/internal/app/service/push"
	reconcileworker "github.com/fatflowers/rentpay/internal/app/service/reconcile_worker"
	"github.com/fatflowers/rentpay/internal/app/service/reconciliation"
	"github.com/fatflowers/rentpay/internal/app/service/reminder"
	"github.com/fatflowers/rentpay/internal/app/service/statistics"
	"github.com/fatflowers/rentpay/internal/platform/db"
	"github.com/fatflowers/rentpay/internal/platform/lock"
	"github.com/fatflowers/rentpay/internal/platform/mpesa"
	"github.com/fatflowers/rentpay/internal/platform/redis"
	"github.com/fatflowers/rentpay/pkg/clock"
	"github.com/fatflowers/rentpay/pkg/config"
	"github.com/fatflowers/rentpay/pkg/logger"
	"github.com/fatflowers/rentpay/pkg/metrics"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

// new payments wake the reconcile worker
func notifyWorker(w *reconcileworker.Worker) notificationhandler.Notifier { return w }

func notifyWorkerOnImport(w *reconcileworker.Worker) csvimport.Notifier { return w }

var Module = fx.Options(
	logger.Module,
	config.Module,
	clock.Module,
	metrics.Module,
	db.Module,
	redis.Module,
	lock.Module,
	mpesa.Module,
	server.Module,
	directory.Module,
	eventstore.Module,
	reconciliation.Module,
	reconcileworker.Module,
	dispatch.Module,
	reminder.Module,
	paymentconfig.Module,
	push.Module,
	notificationlog.Module,
	notificationhandler.Module,
	csvimport.Module,
	statistics.Module,
	fx.Provide(notifyWorker, notifyWorkerOnImport),
)
