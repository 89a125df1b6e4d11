package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	nh "github.com/fatflowers/rentpay/internal/app/service/notification_handler"
	"github.com/fatflowers/rentpay/internal/platform/mpesa"
	"github.com/fatflowers/rentpay/pkg/logctx"
	"github.com/fatflowers/rentpay/pkg/metrics"
)

// NotificationIntake records provider callbacks.
type NotificationIntake interface {
	HandleNotification(ctx context.Context, kind nh.Kind, body []byte) (*nh.Result, error)
	Validate(ctx context.Context, body []byte)
}

func callbackOutcome(res *nh.Result, err error) string {
	switch {
	case err != nil:
		return "error"
	case res == nil:
		return "unknown"
	case res.Skipped != "":
		return "skipped"
	case res.IsNew:
		return "recorded"
	default:
		return "duplicate"
	}
}

// ApiPaymentCallback answers provider payment callbacks. The provider only
// needs the acknowledgement; failures are logged and counted.
func ApiPaymentCallback(kind nh.Kind, intake NotificationIntake, m *metrics.Domain, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			logctx.FromGin(c, log).Warnw("callback_body_unreadable", "kind", kind, "error", err)
			m.Callback(string(kind), "unreadable")
			c.JSON(http.StatusOK, mpesa.Accepted())
			return
		}
		res, err := intake.HandleNotification(c.Request.Context(), kind, body)
		m.Callback(string(kind), callbackOutcome(res, err))
		c.JSON(http.StatusOK, mpesa.Accepted())
	}
}

// @Summary      STK push result callback
// @Description  Receives the provider's asynchronous push payment result. Always acknowledged.
// @Tags         Callbacks
// @Accept       json
// @Produce      json
// @Success      200  {object}  mpesa.Acknowledgement
// @Router       /api/v1/mpesa/callbacks/stk [post]
func ApiSTKCallback(intake NotificationIntake, m *metrics.Domain, log *zap.SugaredLogger) gin.HandlerFunc {
	return ApiPaymentCallback(nh.KindSTK, intake, m, log)
}

// @Summary      C2B confirmation callback
// @Description  Receives a confirmed paybill or till payment. Always acknowledged.
// @Tags         Callbacks
// @Accept       json
// @Produce      json
// @Success      200  {object}  mpesa.Acknowledgement
// @Router       /api/v1/mpesa/callbacks/c2b/confirmation [post]
func ApiC2BConfirmation(intake NotificationIntake, m *metrics.Domain, log *zap.SugaredLogger) gin.HandlerFunc {
	return ApiPaymentCallback(nh.KindC2B, intake, m, log)
}

// @Summary      C2B validation callback
// @Description  Accepts every payment before the provider completes it.
// @Tags         Callbacks
// @Accept       json
// @Produce      json
// @Success      200  {object}  mpesa.Acknowledgement
// @Router       /api/v1/mpesa/callbacks/c2b/validation [post]
func ApiC2BValidation(intake NotificationIntake, m *metrics.Domain) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, _ := c.GetRawData()
		intake.Validate(c.Request.Context(), body)
		m.Callback("c2b_validation", "accepted")
		c.JSON(http.StatusOK, mpesa.Accepted())
	}
}

// RegisterCallbackRoutes mounts the unauthenticated provider callbacks on
// the /api/v1/mpesa group.
func RegisterCallbackRoutes(r gin.IRouter, intake NotificationIntake, m *metrics.Domain, log *zap.SugaredLogger) {
	g := r.Group("/callbacks")
	g.POST("/stk", ApiSTKCallback(intake, m, log))
	g.POST("/c2b/confirmation", ApiC2BConfirmation(intake, m, log))
	g.POST("/c2b/validation", ApiC2BValidation(intake, m))
}
