package notification_log

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/rentpay/internal/models"
	"github.com/fatflowers/rentpay/pkg/logctx"
	"github.com/fatflowers/rentpay/pkg/tool"
)

type Service struct {
	db       *gorm.DB
	log      *zap.SugaredLogger
	inflight sync.WaitGroup
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

func newServiceWithLifecycle(lc fx.Lifecycle, db *gorm.DB, log *zap.SugaredLogger) *Service {
	s := New(db, log)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			s.Wait()
			return nil
		},
	})
	return s
}

var Module = fx.Options(
	fx.Provide(newServiceWithLifecycle),
)

// Save asynchronously persists a payment notification log so callback
// acknowledgements never wait on it. Nil input is ignored.
func (s *Service) Save(ctx context.Context, log *models.PaymentNotificationLog) {
	if log == nil {
		return
	}
	if log.ID == "" {
		log.ID = tool.GenerateUUIDV7()
	}
	// the request context ends with the callback response
	bg := logctx.Detach(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if err := s.db.WithContext(bg).Save(log).Error; err != nil {
			logctx.FromCtx(bg, s.log).Errorw("notification_log_save_failed",
				"kind", log.Kind,
				"status", log.Status,
				"error", err,
			)
		}
	}()
}

// Wait blocks until every pending Save has finished.
func (s *Service) Wait() { s.inflight.Wait() }

// ByReceipt returns the stored callbacks for a receipt, oldest first.
func (s *Service) ByReceipt(ctx context.Context, receipt string) ([]*models.PaymentNotificationLog, error) {
	out := make([]*models.PaymentNotificationLog, 0)
	if receipt == "" {
		return out, nil
	}
	err := s.db.WithContext(ctx).
		Where("receipt_number = ?", receipt).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("load notification logs: %w", err)
	}
	return out, nil
}
