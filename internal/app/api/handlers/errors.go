package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/rentpay/internal/app/service/csvimport"
	"github.com/fatflowers/rentpay/internal/app/service/directory"
	"github.com/fatflowers/rentpay/internal/app/service/eventstore"
	"github.com/fatflowers/rentpay/internal/app/service/paymentconfig"
	"github.com/fatflowers/rentpay/internal/app/service/push"
	"github.com/fatflowers/rentpay/internal/app/service/reconciliation"
	"github.com/fatflowers/rentpay/internal/app/service/reminder"
	"github.com/fatflowers/rentpay/internal/app/service/statistics"
	"github.com/fatflowers/rentpay/internal/platform/mpesa"
	"github.com/fatflowers/rentpay/pkg/logctx"
	"github.com/fatflowers/rentpay/pkg/response"
	"github.com/fatflowers/rentpay/pkg/types"
)

var (
	notFoundErrs = []error{
		eventstore.ErrTransactionNotFound,
		reconciliation.ErrTransactionNotFound,
		reconciliation.ErrTenantNotFound,
		directory.ErrTenantNotFound,
		paymentconfig.ErrConfigNotFound,
	}
	badRequestErrs = []error{
		types.ErrInvalidScan,
		statistics.ErrInvalidMonth,
		reminder.ErrInvalidRule,
		reminder.ErrInvalidKind,
		reminder.ErrInvalidChannel,
		paymentconfig.ErrInvalidConfig,
		paymentconfig.ErrMissingCredentials,
		push.ErrPushNotConfigured,
		push.ErrTenantHasNoPhone,
		push.ErrInvalidAmount,
		reconciliation.ErrInvalidAmount,
		reconciliation.ErrInvalidPlacement,
		csvimport.ErrNoRows,
		mpesa.ErrInvalidPhone,
	}
)

func errorCode(err error) response.APIResponseCode {
	var apiErr *mpesa.APIError
	if errors.As(err, &apiErr) {
		return response.APIResponseCodeUpstream
	}
	if errors.Is(err, reconciliation.ErrInvalidTransition) || errors.Is(err, reminder.ErrSweepBusy) {
		return response.APIResponseCodeConflict
	}
	for _, target := range notFoundErrs {
		if errors.Is(err, target) {
			return response.APIResponseCodeNotFound
		}
	}
	for _, target := range badRequestErrs {
		if errors.Is(err, target) {
			return response.APIResponseCodeBadRequest
		}
	}
	return response.APIResponseCodeError
}

// fail writes the error envelope and logs server-side failures.
func fail(c *gin.Context, log *zap.SugaredLogger, err error) {
	code := errorCode(err)
	if code >= response.APIResponseCodeError {
		logctx.FromGin(c, log).Errorw("api_request_failed",
			"path", c.FullPath(),
			"code", code,
			"error", err,
		)
	}
	c.JSON(http.StatusOK, response.ErrorT[any](code, err.Error()))
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
}
