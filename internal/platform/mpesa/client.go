package mpesa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/rentpay/internal/models"
	"github.com/fatflowers/rentpay/pkg/clock"
	"github.com/fatflowers/rentpay/pkg/config"
	"github.com/fatflowers/rentpay/pkg/logctx"
	"github.com/fatflowers/rentpay/pkg/metrics"
	"github.com/fatflowers/rentpay/pkg/tool"
)

const (
	sandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	productionBaseURL = "https://api.safaricom.co.ke"

	// provider field limits
	maxAccountReference = 12
	maxTransactionDesc  = 13

	defaultTokenTTL = time.Hour
)

// Credentials identify one owner's provider app and shortcode.
type Credentials struct {
	Environment    models.ProviderEnvironment
	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	Passkey        string
}

// CredentialsFrom builds Credentials from a stored payment config.
func CredentialsFrom(c *models.PaymentConfig) Credentials {
	return Credentials{
		Environment:    c.Environment,
		ConsumerKey:    c.ConsumerKey,
		ConsumerSecret: c.ConsumerSecret,
		Shortcode:      c.Shortcode,
		Passkey:        c.Passkey,
	}
}

type PushRequest struct {
	Phone            string
	Amount           int64
	AccountReference string
	Description      string
	CallbackURL      string
}

type PushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// Accepted reports whether the provider queued the prompt.
func (r *PushResponse) Accepted() bool { return r != nil && r.ResponseCode == "0" }

type RegisterURLsResponse struct {
	OriginatorCoversationID string `json:"OriginatorCoversationID"`
	ResponseCode            string `json:"ResponseCode"`
	ResponseDescription     string `json:"ResponseDescription"`
}

type ClientOptions struct {
	HTTPClient *http.Client
	// BaseURL overrides the per-environment hosts (tests).
	BaseURL  string
	Clock    clock.Clock
	Margin   time.Duration
	Location *time.Location
	Region   string
	Logger   *zap.SugaredLogger
	Metrics  *metrics.Domain
}

// Client talks to the mobile-money provider. Safe for concurrent use.
type Client struct {
	http    *http.Client
	baseURL string
	clock   clock.Clock
	tokens  *TokenCache
	loc     *time.Location
	region  string
	log     *zap.SugaredLogger
	metrics *metrics.Domain
}

func NewClient(opts ClientOptions) *Client {
	c := &Client{
		http:    opts.HTTPClient,
		baseURL: opts.BaseURL,
		clock:   opts.Clock,
		loc:     opts.Location,
		region:  opts.Region,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 15 * time.Second}
	}
	if c.clock == nil {
		c.clock = clock.System()
	}
	if c.loc == nil {
		c.loc = time.UTC
	}
	if c.region == "" {
		c.region = "KE"
	}
	if c.log == nil {
		c.log = zap.NewNop().Sugar()
	}
	c.tokens = NewTokenCache(c.clock, opts.Margin)
	return c
}

func newClientFromConfig(cfg *config.Config, clk clock.Clock, log *zap.SugaredLogger, m *metrics.Domain) *Client {
	return NewClient(ClientOptions{
		HTTPClient: &http.Client{Timeout: cfg.Mpesa.HTTPTimeout},
		Clock:      clk,
		Margin:     cfg.Mpesa.TokenSafetyMargin,
		Location:   cfg.Location(),
		Region:     cfg.Mpesa.DefaultCountry,
		Logger:     log,
		Metrics:    m,
	})
}

var Module = fx.Options(
	fx.Provide(newClientFromConfig),
)

func (c *Client) base(env models.ProviderEnvironment) string {
	if c.baseURL != "" {
		return c.baseURL
	}
	if env == models.ProviderEnvironmentProduction {
		return productionBaseURL
	}
	return sandboxBaseURL
}

// AccessToken returns a cached bearer token or fetches a new one.
func (c *Client) AccessToken(ctx context.Context, cred Credentials) (string, error) {
	if tok, ok := c.tokens.Get(cred.ConsumerKey); ok {
		return tok, nil
	}
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.base(cred.Environment)+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", &APIError{Op: "oauth", Err: err}
	}
	req.SetBasicAuth(cred.ConsumerKey, cred.ConsumerSecret)

	var out struct {
		AccessToken string      `json:"access_token"`
		ExpiresIn   json.Number `json:"expires_in"`
	}
	if err := c.do(req, "oauth", &out); err != nil {
		c.observe("oauth", start, err)
		return "", err
	}
	if out.AccessToken == "" {
		err := &APIError{Op: "oauth", Message: "empty access token"}
		c.observe("oauth", start, err)
		return "", err
	}
	ttl := defaultTokenTTL
	if secs, convErr := out.ExpiresIn.Int64(); convErr == nil && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}
	c.tokens.Set(cred.ConsumerKey, out.AccessToken, ttl)
	c.observe("oauth", start, nil)
	logctx.FromCtx(ctx, c.log).Infow("mpesa_token_refreshed", "expires_in", ttl.String())
	return out.AccessToken, nil
}

// BuildPushPayload assembles the push request body; exposed for tests.
func (c *Client) BuildPushPayload(cred Credentials, in PushRequest, now time.Time) (map[string]any, error) {
	phone, err := NormalizePhone(in.Phone, c.region)
	if err != nil {
		return nil, err
	}
	if in.Amount <= 0 {
		return nil, fmt.Errorf("push amount must be positive: %d", in.Amount)
	}
	ts := Timestamp(now, c.loc)
	return map[string]any{
		"BusinessShortCode": cred.Shortcode,
		"Password":          Password(cred.Shortcode, cred.Passkey, ts),
		"Timestamp":         ts,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            in.Amount,
		"PartyA":            phone,
		"PartyB":            cred.Shortcode,
		"PhoneNumber":       phone,
		"CallBackURL":       in.CallbackURL,
		"AccountReference":  tool.TruncateRunes(in.AccountReference, maxAccountReference),
		"TransactionDesc":   tool.TruncateRunes(in.Description, maxTransactionDesc),
	}, nil
}

// PushPayment asks the provider to prompt the payer's phone.
func (c *Client) PushPayment(ctx context.Context, cred Credentials, in PushRequest) (*PushResponse, error) {
	payload, err := c.BuildPushPayload(cred, in, c.clock.Now())
	if err != nil {
		return nil, err
	}
	var out PushResponse
	if err := c.postJSON(ctx, cred, "stk_push", "/mpesa/stkpush/v1/processrequest", payload, &out); err != nil {
		return nil, err
	}
	l := logctx.FromCtx(ctx, c.log)
	if !out.Accepted() {
		l.Warnw("mpesa_push_rejected", "code", out.ResponseCode, "desc", out.ResponseDescription)
	} else {
		l.Infow("mpesa_push_accepted", "checkout_request_id", out.CheckoutRequestID)
	}
	return &out, nil
}

// RegisterURLs registers the confirmation and validation callbacks for the
// shortcode.
func (c *Client) RegisterURLs(ctx context.Context, cred Credentials, confirmationURL, validationURL string) (*RegisterURLsResponse, error) {
	payload := map[string]any{
		"ShortCode":       cred.Shortcode,
		"ResponseType":    "Completed",
		"ConfirmationURL": confirmationURL,
		"ValidationURL":   validationURL,
	}
	var out RegisterURLsResponse
	if err := c.postJSON(ctx, cred, "register_urls", "/mpesa/c2b/v1/registerurl", payload, &out); err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, c.log).Infow("mpesa_urls_registered", "shortcode", cred.Shortcode, "code", out.ResponseCode)
	return &out, nil
}

func (c *Client) postJSON(ctx context.Context, cred Credentials, op, path string, payload any, out any) error {
	start := time.Now()
	token, err := c.AccessToken(ctx, cred)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return &APIError{Op: op, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base(cred.Environment)+path, bytes.NewReader(body))
	if err != nil {
		return &APIError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	err = c.do(req, op, out)
	if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate(cred.ConsumerKey)
	}
	c.observe(op, start, err)
	return err
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			ErrorCode    string `json:"errorCode"`
			ErrorMessage string `json:"errorMessage"`
		}
		_ = json.Unmarshal(raw, &e)
		return &APIError{Op: op, StatusCode: resp.StatusCode, Code: e.ErrorCode, Message: e.ErrorMessage}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.metrics.ProviderCall(op, outcome, metrics.MillisecondsSince(start))
}

// AmountToShillings converts a decimal amount to the integer shillings the
// provider expects, rounding half up.
func AmountToShillings(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}
