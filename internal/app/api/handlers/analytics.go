package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/fatflowers/rentpay/internal/app/api/middleware"
	"github.com/fatflowers/rentpay/internal/app/service/statistics"
	"github.com/fatflowers/rentpay/pkg/response"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Analytics interface {
	CollectionRate(ctx context.Context, ownerID, month string) (*statistics.CollectionRate, error)
	PaymentTiming(ctx context.Context, ownerID, month string) (*statistics.PaymentTiming, error)
	ExportCollectionRate(ctx context.Context, ownerID, month string) ([]byte, string, error)
}

// @Summary      Collection rate
// @Description  Paid, partial and unpaid tenants for a month, overall and per property.
// @Tags         Analytics
// @Produce      json
// @Security     BearerAuth
// @Param        month  query  string  false  "Billing month YYYY-MM, defaults to the current month"
// @Success      200  {object}  handlers.RespCollectionRate
// @Router       /api/v1/mpesa/analytics/collection-rate [get]
func ApiCollectionRate(a Analytics, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := a.CollectionRate(c.Request.Context(), mw.OwnerID(c), c.Query("month"))
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Payment timing
// @Description  Day-of-month distribution of matched payments and the on-time share.
// @Tags         Analytics
// @Produce      json
// @Security     BearerAuth
// @Param        month  query  string  false  "Billing month YYYY-MM, defaults to the current month"
// @Success      200  {object}  handlers.RespPaymentTiming
// @Router       /api/v1/mpesa/analytics/payment-timing [get]
func ApiPaymentTiming(a Analytics, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := a.PaymentTiming(c.Request.Context(), mw.OwnerID(c), c.Query("month"))
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Export collection rate
// @Description  Downloads the collection rate report as an xlsx workbook.
// @Tags         Analytics
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security     BearerAuth
// @Param        month  query  string  false  "Billing month YYYY-MM, defaults to the current month"
// @Success      200  {file}  file
// @Router       /api/v1/mpesa/analytics/collection-rate/export [get]
func ApiExportCollectionRate(a Analytics, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, name, err := a.ExportCollectionRate(c.Request.Context(), mw.OwnerID(c), c.Query("month"))
		if err != nil {
			fail(c, log, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		c.Data(http.StatusOK, xlsxContentType, data)
	}
}

func RegisterAnalyticsRoutes(r gin.IRouter, a Analytics, log *zap.SugaredLogger) {
	g := r.Group("/analytics")
	g.GET("/collection-rate", ApiCollectionRate(a, log))
	g.GET("/collection-rate/export", ApiExportCollectionRate(a, log))
	g.GET("/payment-timing", ApiPaymentTiming(a, log))
}
