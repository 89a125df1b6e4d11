package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/rentpay/pkg/clock"
)

var testCred = Credentials{ConsumerKey: "ck", ConsumerSecret: "cs", Shortcode: "174379", Passkey: "pk"}

func newTestClient(t *testing.T, h http.Handler, clk clock.Clock) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(ClientOptions{BaseURL: srv.URL, Clock: clk, Margin: 60 * time.Second})
}

func TestPassword(t *testing.T) {
	got := Password("174379", "pk", "20240301120000")
	raw, err := base64.StdEncoding.DecodeString(got)
	require.NoError(t, err)
	assert.Equal(t, "174379pk20240301120000", string(raw))
}

func TestTimestamp_RoundTrip(t *testing.T) {
	loc := time.FixedZone("EAT", 3*3600)
	ts := time.Date(2024, 3, 1, 9, 5, 7, 0, time.UTC)
	s := Timestamp(ts, loc)
	assert.Equal(t, "20240301120507", s)
	back, err := ParseTimestamp(s, loc)
	require.NoError(t, err)
	assert.True(t, back.Equal(ts))
}

func TestBuildPushPayload_TruncatesFields(t *testing.T) {
	c := NewClient(ClientOptions{})
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p, err := c.BuildPushPayload(testCred, PushRequest{
		Phone:            "0712345678",
		Amount:           15000,
		AccountReference: "UNIT-A1-EXTRA-LONG",
		Description:      "Rent for March 2024",
		CallbackURL:      "https://x/cb",
	}, now)
	require.NoError(t, err)
	assert.Equal(t, "UNIT-A1-EXTR", p["AccountReference"])
	assert.Equal(t, "Rent for Marc", p["TransactionDesc"])
	assert.Equal(t, "254712345678", p["PartyA"])
	assert.Equal(t, "20240301120000", p["Timestamp"])
	assert.Equal(t, Password("174379", "pk", "20240301120000"), p["Password"])
	assert.Equal(t, "CustomerPayBillOnline", p["TransactionType"])

	_, err = c.BuildPushPayload(testCred, PushRequest{Phone: "0712345678"}, now)
	assert.Error(t, err)
}

func TestAccessToken_CachedUntilExpiry(t *testing.T) {
	var calls int32
	clk := clock.NewFixed(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "ck", user)
		assert.Equal(t, "cs", pass)
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":"3599"}`))
	}), clk)

	for i := 0; i < 3; i++ {
		tok, err := c.AccessToken(context.Background(), testCred)
		require.NoError(t, err)
		assert.Equal(t, "tok", tok)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	clk.Advance(59 * time.Minute)
	_, err := c.AccessToken(context.Background(), testCred)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPushPayment(t *testing.T) {
	clk := clock.NewFixed(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":3599}`))
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "UNIT-A1", body["AccountReference"])
		assert.EqualValues(t, 15000, body["Amount"])
		_, _ = w.Write([]byte(`{"MerchantRequestID":"m-1","CheckoutRequestID":"ws_CO_1","ResponseCode":"0","ResponseDescription":"Success"}`))
	})
	c := newTestClient(t, mux, clk)

	resp, err := c.PushPayment(context.Background(), testCred, PushRequest{
		Phone: "0712345678", Amount: 15000, AccountReference: "UNIT-A1", Description: "Rent",
	})
	require.NoError(t, err)
	assert.True(t, resp.Accepted())
	assert.Equal(t, "ws_CO_1", resp.CheckoutRequestID)
}

func TestPushPayment_UpstreamErrorIsAPIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":"3599"}`))
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errorCode":"400.002.02","errorMessage":"Bad Request - Invalid PhoneNumber"}`))
	})
	c := newTestClient(t, mux, nil)

	_, err := c.PushPayment(context.Background(), testCred, PushRequest{Phone: "0712345678", Amount: 10})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "400.002.02", apiErr.Code)
	assert.Equal(t, "stk_push", apiErr.Op)
}

func TestRegisterURLs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":"3599"}`))
	})
	mux.HandleFunc("/mpesa/c2b/v1/registerurl", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Completed", body["ResponseType"])
		assert.Equal(t, "https://x/confirm", body["ConfirmationURL"])
		_, _ = w.Write([]byte(`{"ResponseCode":"0","ResponseDescription":"success"}`))
	})
	c := newTestClient(t, mux, nil)

	resp, err := c.RegisterURLs(context.Background(), testCred, "https://x/confirm", "https://x/validate")
	require.NoError(t, err)
	assert.Equal(t, "0", resp.ResponseCode)
}
