// Package push initiates provider push payments on behalf of an owner. The
// payment itself arrives later through the push-result callback.
package push

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/rentpay/internal/app/service/directory"
	"github.com/fatflowers/rentpay/internal/app/service/paymentconfig"
	"github.com/fatflowers/rentpay/internal/app/service/reconciliation"
	"github.com/fatflowers/rentpay/internal/models"
	"github.com/fatflowers/rentpay/internal/platform/mpesa"
	"github.com/fatflowers/rentpay/pkg/config"
	"github.com/fatflowers/rentpay/pkg/logctx"
	"github.com/fatflowers/rentpay/pkg/tool"
)

const defaultDescription = "Rent Payment"

var (
	ErrConfigNotFound    = paymentconfig.ErrConfigNotFound
	ErrTenantNotFound    = directory.ErrTenantNotFound
	ErrPushNotConfigured = errors.New("push payments need an active config with a passkey")
	ErrCallbackBaseUnset = paymentconfig.ErrCallbackBaseUnset
	ErrTenantHasNoPhone  = errors.New("tenant has no phone number")
	ErrInvalidAmount     = errors.New("push amount must be a positive whole number")
)

// Pusher is the provider call behind Initiate.
type Pusher interface {
	PushPayment(ctx context.Context, cred mpesa.Credentials, in mpesa.PushRequest) (*mpesa.PushResponse, error)
}

type Input struct {
	OwnerID  string
	TenantID string
	// Amount defaults to the tenant's rent.
	Amount      *int64
	Description string
}

type Result struct {
	Accepted          bool   `json:"success"`
	CheckoutRequestID string `json:"checkout_request_id"`
	MerchantRequestID string `json:"merchant_request_id"`
	Message           string `json:"message"`
	AccountReference  string `json:"account_reference"`
	Amount            int64  `json:"amount"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.SugaredLogger
	configs *paymentconfig.Service
	dir     *directory.Service
	pusher  Pusher
	region  string
}

func New(db *gorm.DB, log *zap.SugaredLogger, configs *paymentconfig.Service, dir *directory.Service, pusher Pusher, region string) *Service {
	return &Service{db: db, log: log, configs: configs, dir: dir, pusher: pusher, region: region}
}

func newServiceFromConfig(db *gorm.DB, log *zap.SugaredLogger, configs *paymentconfig.Service, dir *directory.Service, client *mpesa.Client, cfg *config.Config) *Service {
	return New(db, log, configs, dir, client, cfg.Mpesa.DefaultCountry)
}

var Module = fx.Options(
	fx.Provide(newServiceFromConfig),
)

// Initiate prompts the tenant's phone for payment. A rejected prompt is
// returned with Accepted=false, transport and provider failures as
// *mpesa.APIError.
func (s *Service) Initiate(ctx context.Context, in Input) (*Result, error) {
	cfg, err := s.configs.Get(ctx, in.OwnerID)
	if err != nil {
		return nil, err
	}
	if !cfg.IsActive || !cfg.CanPush() {
		return nil, ErrPushNotConfigured
	}
	callbackURL := s.configs.CallbackURL(paymentconfig.CallbackPathSTK)
	if callbackURL == "" {
		return nil, ErrCallbackBaseUnset
	}

	tenant, err := s.dir.Tenant(ctx, in.OwnerID, in.TenantID)
	if err != nil {
		return nil, err
	}
	phone, err := mpesa.NormalizePhone(tenant.Phone, s.region)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTenantHasNoPhone, err)
	}

	amount := mpesa.AmountToShillings(tenant.RentAmount)
	if in.Amount != nil {
		amount = *in.Amount
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		desc = defaultDescription
	}
	ref := reconciliation.RenderReference(cfg.AccountReferenceFormat, tenant.UnitNumber, tenant.FullName)

	resp, err := s.pusher.PushPayment(ctx, mpesa.CredentialsFrom(cfg), mpesa.PushRequest{
		Phone:            phone,
		Amount:           amount,
		AccountReference: ref,
		Description:      desc,
		CallbackURL:      callbackURL,
	})
	if err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("push_initiate_failed",
			"owner_id", in.OwnerID,
			"tenant_id", in.TenantID,
			"error", err,
		)
		return nil, err
	}

	res := &Result{
		Accepted:          resp.Accepted(),
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		Message:           resp.CustomerMessage,
		AccountReference:  tool.TruncateRunes(ref, 12),
		Amount:            amount,
	}
	if res.Message == "" {
		res.Message = resp.ResponseDescription
	}

	if resp.CheckoutRequestID != "" {
		row := &models.PushRequest{
			ID:                  tool.GenerateUUIDV7(),
			OwnerID:             in.OwnerID,
			TenantID:            tenant.ID,
			Phone:               phone,
			Amount:              decimal.NewFromInt(amount),
			AccountReference:    res.AccountReference,
			MerchantRequestID:   resp.MerchantRequestID,
			CheckoutRequestID:   resp.CheckoutRequestID,
			ResponseCode:        resp.ResponseCode,
			ResponseDescription: tool.TruncateRunes(resp.ResponseDescription, 255),
		}
		if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
			// the prompt is already on the phone; the callback still resolves
			// through the shortcode
			logctx.FromCtx(ctx, s.log).Errorw("push_request_store_failed",
				"checkout_request_id", resp.CheckoutRequestID,
				"error", err,
			)
		}
	}

	logctx.FromCtx(ctx, s.log).Infow("push_initiated",
		"owner_id", in.OwnerID,
		"tenant_id", tenant.ID,
		"amount", amount,
		"account_reference", res.AccountReference,
		"accepted", res.Accepted,
		"checkout_request_id", res.CheckoutRequestID,
	)
	return res, nil
}

// FindByCheckout returns the push request a push-result callback answers.
func (s *Service) FindByCheckout(ctx context.Context, checkoutRequestID string) (*models.PushRequest, bool, error) {
	if checkoutRequestID == "" {
		return nil, false, nil
	}
	var row models.PushRequest
	err := s.db.WithContext(ctx).
		Where("checkout_request_id = ?", checkoutRequestID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load push request: %w", err)
	}
	return &row, true, nil
}
