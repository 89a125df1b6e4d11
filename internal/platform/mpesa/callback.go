package mpesa

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// STKCallback is the asynchronous result of a push payment.
type STKCallback struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []CallbackItem `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

type CallbackItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value,omitempty"`
}

// Metadata flattens the item list into name -> string value. Numbers keep
// their literal text so amounts and timestamps are not rounded.
func (s *STKCallback) Metadata() map[string]string {
	out := make(map[string]string, len(s.Body.StkCallback.CallbackMetadata.Item))
	for _, it := range s.Body.StkCallback.CallbackMetadata.Item {
		out[it.Name] = rawString(it.Value)
	}
	return out
}

func (s *STKCallback) Succeeded() bool { return s.Body.StkCallback.ResultCode == 0 }

func (s *STKCallback) Receipt() string {
	return strings.TrimSpace(s.Metadata()["MpesaReceiptNumber"])
}

func (s *STKCallback) Amount() (decimal.Decimal, error) {
	return parseAmount(s.Metadata()["Amount"])
}

// C2BConfirmation is the paybill/till confirmation body. Amounts arrive as
// strings or numbers depending on the provider release.
type C2BConfirmation struct {
	TransactionType   string          `json:"TransactionType"`
	TransID           string          `json:"TransID"`
	TransTime         string          `json:"TransTime"`
	TransAmount       json.RawMessage `json:"TransAmount"`
	BusinessShortCode string          `json:"BusinessShortCode"`
	BillRefNumber     string          `json:"BillRefNumber"`
	InvoiceNumber     string          `json:"InvoiceNumber"`
	OrgAccountBalance string          `json:"OrgAccountBalance"`
	ThirdPartyTransID string          `json:"ThirdPartyTransID"`
	MSISDN            string          `json:"MSISDN"`
	FirstName         string          `json:"FirstName"`
	MiddleName        string          `json:"MiddleName"`
	LastName          string          `json:"LastName"`
}

func (c *C2BConfirmation) Amount() (decimal.Decimal, error) {
	return parseAmount(rawString(c.TransAmount))
}

// PayerName joins the name parts the provider sent.
func (c *C2BConfirmation) PayerName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{c.FirstName, c.MiddleName, c.LastName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// IsTill reports a buy-goods payment.
func (c *C2BConfirmation) IsTill() bool {
	return strings.EqualFold(strings.TrimSpace(c.TransactionType), "Buy Goods")
}

// Acknowledgement is the body every callback endpoint answers with.
type Acknowledgement struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

func Accepted() Acknowledgement { return Acknowledgement{ResultCode: 0, ResultDesc: "Accepted"} }

func rawString(v json.RawMessage) string {
	if len(v) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(v))
}

func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount is empty")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d, nil
}
