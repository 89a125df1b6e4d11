package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/fatflowers/rentpay/internal/app/api/middleware"
	"github.com/fatflowers/rentpay/internal/app/service/push"
	"github.com/fatflowers/rentpay/pkg/response"
)

type PushInitiator interface {
	Initiate(ctx context.Context, in push.Input) (*push.Result, error)
}

type PushRequest struct {
	TenantID    string `json:"tenant_id" binding:"required"`
	Amount      *int64 `json:"amount" binding:"omitempty,gt=0"`
	Description string `json:"description" binding:"max=100"`
}

// @Summary      Send push payment prompt
// @Description  Prompts the tenant's phone to pay rent. Amount defaults to the tenant's rent.
// @Tags         Payments
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body handlers.PushRequest true "Tenant and optional amount"
// @Success      200  {object}  handlers.RespPush
// @Router       /api/v1/mpesa/stk-push [post]
func ApiInitiatePush(p PushInitiator, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PushRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := p.Initiate(c.Request.Context(), push.Input{
			OwnerID:     mw.OwnerID(c),
			TenantID:    req.TenantID,
			Amount:      req.Amount,
			Description: req.Description,
		})
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterPushRoutes(r gin.IRouter, p PushInitiator, log *zap.SugaredLogger) {
	r.POST("/stk-push", ApiInitiatePush(p, log))
}
