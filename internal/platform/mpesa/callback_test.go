package mpesa

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stkSuccess = `{"Body":{"stkCallback":{"MerchantRequestID":"m-1","CheckoutRequestID":"ws_CO_1","ResultCode":0,"ResultDesc":"ok",
"CallbackMetadata":{"Item":[{"Name":"Amount","Value":15000.00},{"Name":"MpesaReceiptNumber","Value":"QKJ4ABC123"},
{"Name":"Balance"},{"Name":"TransactionDate","Value":20240301120000},{"Name":"PhoneNumber","Value":254712345678}]}}}}`

func TestSTKCallback_Metadata(t *testing.T) {
	var cb STKCallback
	require.NoError(t, json.Unmarshal([]byte(stkSuccess), &cb))
	assert.True(t, cb.Succeeded())
	assert.Equal(t, "QKJ4ABC123", cb.Receipt())
	meta := cb.Metadata()
	assert.Equal(t, "20240301120000", meta["TransactionDate"])
	assert.Equal(t, "254712345678", meta["PhoneNumber"])
	assert.Equal(t, "", meta["Balance"])
	amt, err := cb.Amount()
	require.NoError(t, err)
	assert.True(t, amt.Equal(decimal.NewFromInt(15000)))
}

func TestC2BConfirmation_AmountAndName(t *testing.T) {
	var c C2BConfirmation
	require.NoError(t, json.Unmarshal([]byte(`{"TransactionType":"Pay Bill","TransID":"RKT1","TransAmount":"1,500.00",
"BillRefNumber":"UNIT-A1","MSISDN":"254712345678","FirstName":"Jane","MiddleName":"","LastName":"Doe"}`), &c))
	amt, err := c.Amount()
	require.NoError(t, err)
	assert.True(t, amt.Equal(decimal.NewFromInt(1500)))
	assert.Equal(t, "Jane Doe", c.PayerName())
	assert.False(t, c.IsTill())

	var n C2BConfirmation
	require.NoError(t, json.Unmarshal([]byte(`{"TransID":"RKT2","TransAmount":250}`), &n))
	amt, err = n.Amount()
	require.NoError(t, err)
	assert.True(t, amt.Equal(decimal.NewFromInt(250)))
}
