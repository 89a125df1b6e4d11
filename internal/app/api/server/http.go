package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/rentpay/docs"
	"github.com/fatflowers/rentpay/internal/app/api/handlers"
	mw "github.com/fatflowers/rentpay/internal/app/api/middleware"
	"github.com/fatflowers/rentpay/internal/app/service/csvimport"
	"github.com/fatflowers/rentpay/internal/app/service/eventstore"
	nh "github.com/fatflowers/rentpay/internal/app/service/notification_handler"
	notificationlog "github.com/fatflowers/rentpay/internal/app/service/notification_log"
	"github.com/fatflowers/rentpay/internal/app/service/paymentconfig"
	"github.com/fatflowers/rentpay/internal/app/service/push"
	"github.com/fatflowers/rentpay/internal/app/service/reconciliation"
	"github.com/fatflowers/rentpay/internal/app/service/reminder"
	"github.com/fatflowers/rentpay/internal/app/service/statistics"
	"github.com/fatflowers/rentpay/pkg/clock"
	cfgpkg "github.com/fatflowers/rentpay/pkg/config"
	"github.com/fatflowers/rentpay/pkg/metrics"
)

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Add request tracing middleware only; request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

type routeDeps struct {
	fx.In

	Log           *zap.SugaredLogger
	Config        *cfgpkg.Config
	DB            *gorm.DB
	Clock         clock.Clock
	Metrics       *metrics.Domain
	Notifications *nh.NotificationHandler
	NotifLogs     *notificationlog.Service
	Events        *eventstore.Service
	Engine        *reconciliation.Engine
	Importer      *csvimport.Service
	Push          *push.Service
	Configs       *paymentconfig.Service
	Reminders     *reminder.Service
	Stats         *statistics.Service
}

func registerRoutes(r *gin.Engine, d routeDeps) {
	log, cfg := d.Log, d.Config
	// Prometheus metrics
	if cfg != nil && cfg.MetricsAddr != "" {
		p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			ReqCntURLLabelMappingFn: func(c *gin.Context) string {
				if fp := c.FullPath(); fp != "" {
					return fp
				}
				return c.Request.URL.Path
			},
			Logger: log,
		})
		p.SetListenAddress(cfg.MetricsAddr)
		p.Use(r)

		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}
	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))
	var pinger handlers.Pinger
	if sqlDB, err := d.DB.DB(); err == nil {
		pinger = sqlDB
	}
	handlers.RegisterHealthRoutes(pub, pinger)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	mpesaAPI := r.Group("/api/v1/mpesa")
	mpesaAPI.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))
	// provider callbacks carry no owner credentials
	handlers.RegisterCallbackRoutes(mpesaAPI, d.Notifications, d.Metrics, log)

	owner := mpesaAPI.Group("")
	owner.Use(mw.OwnerAuthMiddleware(cfg, log))
	handlers.RegisterConfigRoutes(owner, d.Configs, log)
	handlers.RegisterPushRoutes(owner, d.Push, log)
	handlers.RegisterTransactionRoutes(owner, d.Events, d.NotifLogs, d.Engine, log)
	handlers.RegisterImportRoutes(owner, d.Importer, log)
	handlers.RegisterReminderRoutes(owner, d.Reminders, d.Clock, log)
	handlers.RegisterAnalyticsRoutes(owner, d.Stats, log)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
