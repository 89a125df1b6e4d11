package notification_handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fatflowers/rentpay/internal/app/service/eventstore"
	"github.com/fatflowers/rentpay/internal/models"
	"github.com/fatflowers/rentpay/internal/platform/mpesa"
)

type parseOptions struct {
	loc    *time.Location
	region string
	now    time.Time
}

// parseTime reads a provider timestamp; an absent one means the callback
// time.
func (o parseOptions) parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return o.now, nil
	}
	return mpesa.ParseTimestamp(s, o.loc)
}

// STKParser reads push-payment results.
type STKParser struct {
	opts parseOptions
	raw  []byte
	cb   *mpesa.STKCallback
	meta map[string]string
}

func newSTKParser(body []byte, opts parseOptions) (*STKParser, error) {
	var cb mpesa.STKCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, err
	}
	if cb.Body.StkCallback.CheckoutRequestID == "" && cb.Body.StkCallback.MerchantRequestID == "" {
		return nil, fmt.Errorf("push result has no request ids")
	}
	return &STKParser{opts: opts, raw: body, cb: &cb, meta: cb.Metadata()}, nil
}

func (p *STKParser) Kind() Kind                  { return KindSTK }
func (p *STKParser) Receipt() string             { return p.cb.Receipt() }
func (p *STKParser) Shortcode() string           { return strings.TrimSpace(p.meta["BusinessShortCode"]) }
func (p *STKParser) CorrelationID() string       { return p.cb.Body.StkCallback.CheckoutRequestID }
func (p *STKParser) NotificationTime() time.Time { return p.opts.now }
func (p *STKParser) Data() any                   { return p.cb }

func (p *STKParser) Skip() (bool, string) {
	if p.cb.Succeeded() {
		return false, ""
	}
	return true, fmt.Sprintf("push result %d: %s", p.cb.Body.StkCallback.ResultCode, p.cb.Body.StkCallback.ResultDesc)
}

func (p *STKParser) Event(ctx context.Context) (*eventstore.RecordInput, error) {
	amount, err := p.cb.Amount()
	if err != nil {
		return nil, err
	}
	at, err := p.opts.parseTime(p.meta["TransactionDate"])
	if err != nil {
		return nil, err
	}
	return &eventstore.RecordInput{
		ReceiptNumber: p.Receipt(),
		Kind:          models.TransactionKindSTKPush,
		Phone:         mpesa.NormalizePhoneLenient(p.meta["PhoneNumber"], p.opts.region),
		Amount:        amount,
		Description:   p.cb.Body.StkCallback.ResultDesc,
		TransactionAt: at,
		RawPayload:    p.raw,
	}, nil
}

// C2BParser reads paybill and till confirmations.
type C2BParser struct {
	opts parseOptions
	raw  []byte
	c    *mpesa.C2BConfirmation
}

func newC2BParser(body []byte, opts parseOptions) (*C2BParser, error) {
	var c mpesa.C2BConfirmation
	if err := json.Unmarshal(body, &c); err != nil {
		return nil, err
	}
	if strings.TrimSpace(c.TransID) == "" && strings.TrimSpace(c.BusinessShortCode) == "" {
		return nil, fmt.Errorf("confirmation has no transaction id or shortcode")
	}
	return &C2BParser{opts: opts, raw: body, c: &c}, nil
}

func (p *C2BParser) Kind() Kind                  { return KindC2B }
func (p *C2BParser) Receipt() string             { return strings.TrimSpace(p.c.TransID) }
func (p *C2BParser) Shortcode() string           { return strings.TrimSpace(p.c.BusinessShortCode) }
func (p *C2BParser) CorrelationID() string       { return strings.TrimSpace(p.c.ThirdPartyTransID) }
func (p *C2BParser) NotificationTime() time.Time { return p.opts.now }
func (p *C2BParser) Data() any                   { return p.c }
func (p *C2BParser) Skip() (bool, string)        { return false, "" }

func (p *C2BParser) Event(ctx context.Context) (*eventstore.RecordInput, error) {
	amount, err := p.c.Amount()
	if err != nil {
		return nil, err
	}
	at, err := p.opts.parseTime(p.c.TransTime)
	if err != nil {
		return nil, err
	}
	kind := models.TransactionKindPaybill
	if p.c.IsTill() {
		kind = models.TransactionKindTill
	}
	return &eventstore.RecordInput{
		ReceiptNumber:    p.Receipt(),
		Kind:             kind,
		Phone:            mpesa.NormalizePhoneLenient(p.c.MSISDN, p.opts.region),
		PayerName:        p.c.PayerName(),
		Amount:           amount,
		AccountReference: strings.TrimSpace(p.c.BillRefNumber),
		Description:      strings.TrimSpace(p.c.TransactionType),
		TransactionAt:    at,
		RawPayload:       p.raw,
	}, nil
}

// NewParser picks the parser for kind. Any decode failure is reported as
// ErrMalformedPayload.
func NewParser(kind Kind, body []byte, loc *time.Location, region string, now time.Time) (NotificationParser, error) {
	opts := parseOptions{loc: loc, region: region, now: now}
	var (
		p   NotificationParser
		err error
	)
	switch kind {
	case KindSTK:
		p, err = newSTKParser(body, opts)
	case KindC2B:
		p, err = newC2BParser(body, opts)
	default:
		return nil, fmt.Errorf("unsupported notification kind: %s", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return p, nil
}
