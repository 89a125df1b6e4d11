package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fatflowers/rentpay/internal/models"
	"github.com/fatflowers/rentpay/pkg/config"
	"github.com/fatflowers/rentpay/pkg/logctx"
	"github.com/fatflowers/rentpay/pkg/metrics"
)

// SMSChannel posts to an Africa's Talking compatible messaging gateway.
type SMSChannel struct {
	cfg     config.SMSConfig
	http    *http.Client
	log     *zap.SugaredLogger
	metrics *metrics.Domain
}

func NewSMSChannel(cfg config.SMSConfig, httpClient *http.Client, log *zap.SugaredLogger, m *metrics.Domain) *SMSChannel {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &SMSChannel{cfg: cfg, http: httpClient, log: log, metrics: m}
}

func (c *SMSChannel) Name() models.ReminderChannel { return models.ReminderChannelSMS }

type smsResponse struct {
	SMSMessageData struct {
		Message    string `json:"Message"`
		Recipients []struct {
			Number    string `json:"number"`
			Status    string `json:"status"`
			MessageID string `json:"messageId"`
		} `json:"Recipients"`
	} `json:"SMSMessageData"`
}

func (c *SMSChannel) Send(ctx context.Context, phone, message string) (Outcome, error) {
	l := logctx.FromCtx(ctx, c.log)
	if c.cfg.APIKey == "" {
		l.Warnw("sms_gateway_unconfigured", "to", phone, "message", message)
		c.metrics.SMSFallback()
		return Outcome{Kind: OutcomeLogged}, nil
	}

	to := phone
	if !strings.HasPrefix(to, "+") {
		to = "+" + to
	}
	form := url.Values{}
	form.Set("username", c.cfg.Username)
	form.Set("to", to)
	form.Set("message", message)
	if c.cfg.SenderID != "" {
		form.Set("from", c.cfg.SenderID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Outcome{}, err
	}
	req.Header.Set("apiKey", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return Outcome{}, fmt.Errorf("sms gateway: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Outcome{}, fmt.Errorf("sms gateway: http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out smsResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Outcome{}, fmt.Errorf("sms gateway: decode response: %w", err)
	}
	rs := out.SMSMessageData.Recipients
	if len(rs) == 0 || rs[0].Status != "Success" {
		status := out.SMSMessageData.Message
		if len(rs) > 0 {
			status = rs[0].Status
		}
		return Outcome{}, fmt.Errorf("sms gateway rejected message: %s", status)
	}
	l.Infow("sms_sent", "to", to, "message_id", rs[0].MessageID)
	return Outcome{Kind: OutcomeDelivered, ExternalRef: rs[0].MessageID}, nil
}
