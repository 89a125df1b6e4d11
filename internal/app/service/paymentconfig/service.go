package paymentconfig

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/rentpay/internal/models"
	"github.com/fatflowers/rentpay/internal/platform/mpesa"
	"github.com/fatflowers/rentpay/pkg/config"
	"github.com/fatflowers/rentpay/pkg/logctx"
	"github.com/fatflowers/rentpay/pkg/tool"
)

const (
	CallbackPathSTK          = "/api/v1/mpesa/callbacks/stk"
	CallbackPathConfirmation = "/api/v1/mpesa/callbacks/c2b/confirmation"
	CallbackPathValidation   = "/api/v1/mpesa/callbacks/c2b/validation"
)

var (
	ErrConfigNotFound     = errors.New("payment config not found")
	ErrInvalidConfig      = errors.New("invalid payment config")
	ErrMissingCredentials = errors.New("payment config has no API credentials")
	ErrCallbackBaseUnset  = errors.New("mpesa.callback_base_url is not configured")
)

// URLRegistrar is the provider call used by RegisterURLs.
type URLRegistrar interface {
	RegisterURLs(ctx context.Context, cred mpesa.Credentials, confirmationURL, validationURL string) (*mpesa.RegisterURLsResponse, error)
}

// SaveInput creates or replaces an owner's config. Empty credential fields
// keep the stored value so the UI never has to echo secrets back.
type SaveInput struct {
	Shortcode              string                     `json:"shortcode" validate:"required,numeric,max=20"`
	ShortcodeType          models.ShortcodeType       `json:"shortcode_type" validate:"required,oneof=paybill till"`
	ConsumerKey            string                     `json:"consumer_key" validate:"max=255"`
	ConsumerSecret         string                     `json:"consumer_secret" validate:"max=255"`
	Passkey                string                     `json:"passkey" validate:"max=255"`
	AccountReferenceFormat string                     `json:"account_reference_format" validate:"max=100"`
	Environment            models.ProviderEnvironment `json:"environment" validate:"omitempty,oneof=sandbox production"`
	IsActive               *bool                      `json:"is_active"`
}

// RegisterResult echoes the URLs sent to the provider with its answer.
type RegisterResult struct {
	ConfirmationURL string                      `json:"confirmation_url"`
	ValidationURL   string                      `json:"validation_url"`
	Response        *mpesa.RegisterURLsResponse `json:"provider_response"`
}

type Service struct {
	db               *gorm.DB
	log              *zap.SugaredLogger
	registrar        URLRegistrar
	validate         *validator.Validate
	callbackBase     string
	defaultRefFormat string
}

func New(db *gorm.DB, log *zap.SugaredLogger, registrar URLRegistrar, callbackBase, defaultRefFormat string) *Service {
	return &Service{
		db:               db,
		log:              log,
		registrar:        registrar,
		validate:         validator.New(),
		callbackBase:     strings.TrimRight(callbackBase, "/"),
		defaultRefFormat: defaultRefFormat,
	}
}

func newServiceFromConfig(db *gorm.DB, log *zap.SugaredLogger, client *mpesa.Client, cfg *config.Config) *Service {
	return New(db, log, client, cfg.Mpesa.CallbackBaseURL, cfg.Reconciliation.DefaultReferenceFormat)
}

var Module = fx.Options(
	fx.Provide(newServiceFromConfig),
)

// CallbackURL joins the public base URL with path; empty when no base is set.
func (s *Service) CallbackURL(path string) string {
	if s.callbackBase == "" {
		return ""
	}
	return s.callbackBase + path
}

func (s *Service) Get(ctx context.Context, ownerID string) (*models.PaymentConfig, error) {
	var c models.PaymentConfig
	err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load payment config: %w", err)
	}
	return &c, nil
}

// Save upserts the owner's single config row.
func (s *Service) Save(ctx context.Context, ownerID string, in SaveInput) (*models.PaymentConfig, error) {
	in.Shortcode = strings.TrimSpace(in.Shortcode)
	in.AccountReferenceFormat = strings.TrimSpace(in.AccountReferenceFormat)
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if in.AccountReferenceFormat == "" {
		in.AccountReferenceFormat = s.defaultRefFormat
	}
	if in.Environment == "" {
		in.Environment = models.ProviderEnvironmentSandbox
	}

	var out models.PaymentConfig
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("owner_id = ?", ownerID).First(&out).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			out = models.PaymentConfig{
				ID:       tool.GenerateUUIDV7(),
				OwnerID:  ownerID,
				IsActive: true,
			}
		case err != nil:
			return err
		}
		out.Shortcode = in.Shortcode
		out.ShortcodeType = in.ShortcodeType
		out.AccountReferenceFormat = in.AccountReferenceFormat
		out.Environment = in.Environment
		out.CallbackURL = s.CallbackURL(CallbackPathConfirmation)
		if in.ConsumerKey != "" {
			out.ConsumerKey = in.ConsumerKey
		}
		if in.ConsumerSecret != "" {
			out.ConsumerSecret = in.ConsumerSecret
		}
		if in.Passkey != "" {
			out.Passkey = in.Passkey
		}
		if in.IsActive != nil {
			out.IsActive = *in.IsActive
		}
		return tx.Save(&out).Error
	})
	if err != nil {
		return nil, fmt.Errorf("save payment config: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("payment_config_saved",
		"owner_id", ownerID,
		"shortcode", out.Shortcode,
		"shortcode_type", out.ShortcodeType,
		"environment", out.Environment,
	)
	return &out, nil
}

// RegisterURLs registers this service's confirmation and validation
// callbacks for the owner's shortcode.
func (s *Service) RegisterURLs(ctx context.Context, ownerID string) (*RegisterResult, error) {
	c, err := s.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if !c.HasCredentials() {
		return nil, ErrMissingCredentials
	}
	if s.callbackBase == "" {
		return nil, ErrCallbackBaseUnset
	}
	res := &RegisterResult{
		ConfirmationURL: s.CallbackURL(CallbackPathConfirmation),
		ValidationURL:   s.CallbackURL(CallbackPathValidation),
	}
	res.Response, err = s.registrar.RegisterURLs(ctx, mpesa.CredentialsFrom(c), res.ConfirmationURL, res.ValidationURL)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ByShortcode returns the active config receiving payments on shortcode.
func (s *Service) ByShortcode(ctx context.Context, shortcode string) (*models.PaymentConfig, error) {
	shortcode = strings.TrimSpace(shortcode)
	if shortcode == "" {
		return nil, ErrConfigNotFound
	}
	var c models.PaymentConfig
	err := s.db.WithContext(ctx).
		Where("shortcode = ? AND is_active = ?", shortcode, true).
		Order("created_at ASC").
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load payment config by shortcode: %w", err)
	}
	return &c, nil
}

// FirstActive is the single-owner fallback for callbacks that carry no
// usable shortcode.
func (s *Service) FirstActive(ctx context.Context) (*models.PaymentConfig, error) {
	var c models.PaymentConfig
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at ASC").
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load first active payment config: %w", err)
	}
	return &c, nil
}
