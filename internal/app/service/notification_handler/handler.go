package notification_handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/fatflowers/rentpay/internal/app/service/eventstore"
	notificationlog "github.com/fatflowers/rentpay/internal/app/service/notification_log"
	"github.com/fatflowers/rentpay/internal/app/service/paymentconfig"
	"github.com/fatflowers/rentpay/internal/app/service/push"
	"github.com/fatflowers/rentpay/internal/models"
	"github.com/fatflowers/rentpay/pkg/clock"
	"github.com/fatflowers/rentpay/pkg/config"
	"github.com/fatflowers/rentpay/pkg/logctx"
)

var (
	ErrMalformedPayload = errors.New("malformed notification payload")
	ErrOwnerUnresolved  = errors.New("notification owner could not be resolved")
)

type Recorder interface {
	Record(ctx context.Context, in *eventstore.RecordInput) (*models.PaymentTransaction, bool, error)
}

// Notifier wakes the reconciliation worker.
type Notifier interface {
	Notify()
}

type PushLookup interface {
	FindByCheckout(ctx context.Context, checkoutRequestID string) (*models.PushRequest, bool, error)
}

type ConfigLookup interface {
	ByShortcode(ctx context.Context, shortcode string) (*models.PaymentConfig, error)
	FirstActive(ctx context.Context) (*models.PaymentConfig, error)
}

type Result struct {
	Receipt       string `json:"receipt,omitempty"`
	OwnerID       string `json:"owner_id,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	IsNew         bool   `json:"is_new"`
	Skipped       string `json:"skipped,omitempty"`
}

type NotificationHandler struct {
	store    Recorder
	notifSvc *notificationlog.Service
	pushes   PushLookup
	configs  ConfigLookup
	notifier Notifier
	clock    clock.Clock
	loc      *time.Location
	region   string
	Logger   *zap.SugaredLogger
}

func NewNotificationHandler(
	store Recorder,
	notif *notificationlog.Service,
	pushes PushLookup,
	configs ConfigLookup,
	notifier Notifier,
	clk clock.Clock,
	loc *time.Location,
	region string,
	log *zap.SugaredLogger,
) *NotificationHandler {
	return &NotificationHandler{
		store:    store,
		notifSvc: notif,
		pushes:   pushes,
		configs:  configs,
		notifier: notifier,
		clock:    clk,
		loc:      loc,
		region:   region,
		Logger:   log,
	}
}

func newHandlerFromConfig(
	store *eventstore.Service,
	notif *notificationlog.Service,
	pushes *push.Service,
	configs *paymentconfig.Service,
	notifier Notifier,
	clk clock.Clock,
	cfg *config.Config,
	log *zap.SugaredLogger,
) *NotificationHandler {
	return NewNotificationHandler(store, notif, pushes, configs, notifier, clk, cfg.Location(), cfg.Mpesa.DefaultCountry, log)
}

var Module = fx.Options(
	fx.Provide(newHandlerFromConfig),
)

// HandleNotification records one provider callback. Callers acknowledge the
// provider whatever this returns; the error only drives logging.
func (h *NotificationHandler) HandleNotification(ctx context.Context, kind Kind, body []byte) (res *Result, resErr error) {
	l := logctx.FromCtx(ctx, h.Logger)
	parser, err := NewParser(kind, body, h.loc, h.region, h.clock.Now())
	if err != nil {
		l.Warnw("notification_malformed", "kind", kind, "error", err, "body_size", len(body))
		return nil, err
	}

	res = &Result{Receipt: parser.Receipt()}
	traceID := logctx.TraceID(ctx)
	dataBytes, _ := json.Marshal(parser.Data())
	l.Infow("notification_received",
		"kind", kind,
		"receipt", parser.Receipt(),
		"shortcode", parser.Shortcode(),
		"correlation_id", parser.CorrelationID(),
	)

	h.notifSvc.Save(ctx, &models.PaymentNotificationLog{
		Kind:             string(kind),
		TraceID:          traceID,
		ReceiptNumber:    parser.Receipt(),
		CorrelationID:    parser.CorrelationID(),
		NotificationTime: parser.NotificationTime(),
		Data:             datatypes.JSON(dataBytes),
		Status:           models.PaymentNotificationLogStatusReceived,
	})

	defer func() {
		resMap := map[string]any{"result": res}
		if resErr != nil {
			resMap["error"] = resErr.Error()
		}
		resBytes, _ := json.Marshal(resMap)
		status := models.PaymentNotificationLogStatusHandled
		if resErr != nil {
			status = models.PaymentNotificationLogStatusHandleFailed
		}
		h.notifSvc.Save(ctx, &models.PaymentNotificationLog{
			Kind: string(kind),
			OwnerID: func() *string {
				if res == nil || res.OwnerID == "" {
					return nil
				}
				return lo.ToPtr(res.OwnerID)
			}(),
			TraceID:          traceID,
			ReceiptNumber:    parser.Receipt(),
			CorrelationID:    parser.CorrelationID(),
			NotificationTime: h.clock.Now(),
			Data:             datatypes.JSON(dataBytes),
			Result:           func() *datatypes.JSON { j := datatypes.JSON(resBytes); return &j }(),
			Status:           status,
		})
		if resErr != nil {
			l.Warnw("notification_handle_failed", "kind", kind, "receipt", parser.Receipt(), "error", resErr)
		}
	}()

	ownerID, ref, err := h.resolveOwner(ctx, parser)
	if err != nil {
		return res, err
	}
	res.OwnerID = ownerID

	if skip, reason := parser.Skip(); skip {
		res.Skipped = reason
		l.Infow("notification_skipped", "kind", kind, "owner_id", ownerID, "reason", reason)
		return res, nil
	}

	in, err := parser.Event(ctx)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	in.OwnerID = ownerID
	if in.AccountReference == "" {
		in.AccountReference = ref
	}
	in.EnqueueReconcile = true

	txn, isNew, err := h.store.Record(ctx, in)
	if err != nil {
		return res, err
	}
	res.TransactionID = txn.ID
	res.IsNew = isNew
	if isNew && h.notifier != nil {
		h.notifier.Notify()
	}
	l.Infow("notification_handled",
		"kind", kind,
		"owner_id", ownerID,
		"receipt", txn.ReceiptNumber,
		"transaction_id", txn.ID,
		"is_new", isNew,
	)
	return res, nil
}

// resolveOwner tries the push request, then the shortcode, then the first
// active config. It also returns the account reference a push result lacks.
func (h *NotificationHandler) resolveOwner(ctx context.Context, p NotificationParser) (string, string, error) {
	if p.Kind() == KindSTK && h.pushes != nil {
		req, ok, err := h.pushes.FindByCheckout(ctx, p.CorrelationID())
		if err != nil {
			return "", "", err
		}
		if ok {
			return req.OwnerID, req.AccountReference, nil
		}
	}
	if code := p.Shortcode(); code != "" {
		cfg, err := h.configs.ByShortcode(ctx, code)
		if err == nil {
			return cfg.OwnerID, "", nil
		}
		if !errors.Is(err, paymentconfig.ErrConfigNotFound) {
			return "", "", err
		}
	}
	cfg, err := h.configs.FirstActive(ctx)
	if errors.Is(err, paymentconfig.ErrConfigNotFound) {
		return "", "", ErrOwnerUnresolved
	}
	if err != nil {
		return "", "", err
	}
	return cfg.OwnerID, "", nil
}

// Validate answers the optional pre-payment validation step. Every payment
// is accepted; matching happens after confirmation.
func (h *NotificationHandler) Validate(ctx context.Context, body []byte) {
	var c struct {
		TransID           string `json:"TransID"`
		BusinessShortCode string `json:"BusinessShortCode"`
		BillRefNumber     string `json:"BillRefNumber"`
	}
	if err := json.Unmarshal(body, &c); err != nil {
		logctx.FromCtx(ctx, h.Logger).Warnw("c2b_validation_malformed", "error", err)
		return
	}
	logctx.FromCtx(ctx, h.Logger).Infow("c2b_validation_accepted",
		"trans_id", c.TransID,
		"shortcode", c.BusinessShortCode,
		"bill_ref", c.BillRefNumber,
	)
}
