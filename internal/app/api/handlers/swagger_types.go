package handlers

import (
	"github.com/fatflowers/rentpay/internal/app/service/csvimport"
	"github.com/fatflowers/rentpay/internal/app/service/eventstore"
	"github.com/fatflowers/rentpay/internal/app/service/paymentconfig"
	"github.com/fatflowers/rentpay/internal/app/service/push"
	"github.com/fatflowers/rentpay/internal/app/service/reminder"
	"github.com/fatflowers/rentpay/internal/app/service/statistics"
	"github.com/fatflowers/rentpay/internal/models"
	"github.com/fatflowers/rentpay/pkg/response"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

type RespListTransactions struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    eventstore.ListResult    `json:"data"`
}

type RespTransactionDetail struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    TransactionDetail        `json:"data"`
}

type RespTransaction struct {
	Code    response.APIResponseCode  `json:"code"`
	Message string                    `json:"message"`
	Data    models.PaymentTransaction `json:"data"`
}

type RespImport struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    csvimport.Result         `json:"data"`
}

type RespPush struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    push.Result              `json:"data"`
}

type RespPaymentConfig struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    PaymentConfigView        `json:"data"`
}

type RespRegisterURLs struct {
	Code    response.APIResponseCode     `json:"code"`
	Message string                       `json:"message"`
	Data    paymentconfig.RegisterResult `json:"data"`
}

type RespReminderRule struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.ReminderRule      `json:"data"`
}

type RespListReminders struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    reminder.ListResult      `json:"data"`
}

type RespTriggerReminders struct {
	Code    response.APIResponseCode  `json:"code"`
	Message string                    `json:"message"`
	Data    []reminder.TriggerOutcome `json:"data"`
}

type RespSweep struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    reminder.SweepResult     `json:"data"`
}

type RespCollectionRate struct {
	Code    response.APIResponseCode  `json:"code"`
	Message string                    `json:"message"`
	Data    statistics.CollectionRate `json:"data"`
}

type RespPaymentTiming struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    statistics.PaymentTiming `json:"data"`
}
