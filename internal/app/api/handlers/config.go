package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/fatflowers/rentpay/internal/app/api/middleware"
	"github.com/fatflowers/rentpay/internal/app/service/paymentconfig"
	"github.com/fatflowers/rentpay/internal/models"
	"github.com/fatflowers/rentpay/pkg/response"
)

type PaymentConfigStore interface {
	Get(ctx context.Context, ownerID string) (*models.PaymentConfig, error)
	Save(ctx context.Context, ownerID string, in paymentconfig.SaveInput) (*models.PaymentConfig, error)
	RegisterURLs(ctx context.Context, ownerID string) (*paymentconfig.RegisterResult, error)
}

// PaymentConfigView reports which secrets are stored without revealing them.
type PaymentConfigView struct {
	*models.PaymentConfig
	HasCredentials bool `json:"has_credentials"`
	HasPasskey     bool `json:"has_passkey"`
}

func toConfigView(cfg *models.PaymentConfig) *PaymentConfigView {
	return &PaymentConfigView{PaymentConfig: cfg, HasCredentials: cfg.HasCredentials(), HasPasskey: cfg.Passkey != ""}
}

// @Summary      Get payment config
// @Tags         Config
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespPaymentConfig
// @Router       /api/v1/mpesa/config [get]
func ApiGetPaymentConfig(store PaymentConfigStore, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg, err := store.Get(c.Request.Context(), mw.OwnerID(c))
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(toConfigView(cfg)))
	}
}

// @Summary      Save payment config
// @Description  Creates or updates the owner's shortcode settings. Empty secrets keep the stored ones.
// @Tags         Config
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body paymentconfig.SaveInput true "Shortcode settings"
// @Success      200  {object}  handlers.RespPaymentConfig
// @Router       /api/v1/mpesa/config [post]
func ApiSavePaymentConfig(store PaymentConfigStore, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in paymentconfig.SaveInput
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, err)
			return
		}
		cfg, err := store.Save(c.Request.Context(), mw.OwnerID(c), in)
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(toConfigView(cfg)))
	}
}

// @Summary      Register callback URLs
// @Description  Registers the confirmation and validation URLs for the owner's shortcode with the provider.
// @Tags         Config
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespRegisterURLs
// @Router       /api/v1/mpesa/register-urls [post]
func ApiRegisterURLs(store PaymentConfigStore, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := store.RegisterURLs(c.Request.Context(), mw.OwnerID(c))
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterConfigRoutes(r gin.IRouter, store PaymentConfigStore, log *zap.SugaredLogger) {
	r.GET("/config", ApiGetPaymentConfig(store, log))
	r.POST("/config", ApiSavePaymentConfig(store, log))
	r.POST("/register-urls", ApiRegisterURLs(store, log))
}
