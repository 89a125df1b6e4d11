package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/fatflowers/rentpay/internal/app/api/middleware"
	"github.com/fatflowers/rentpay/internal/app/service/reminder"
	"github.com/fatflowers/rentpay/internal/models"
	"github.com/fatflowers/rentpay/pkg/clock"
	"github.com/fatflowers/rentpay/pkg/response"
	"github.com/fatflowers/rentpay/pkg/types"
)

type ReminderService interface {
	GetOrCreateRule(ctx context.Context, ownerID string) (*models.ReminderRule, error)
	UpdateRule(ctx context.Context, ownerID string, in reminder.RuleUpdate) (*models.ReminderRule, error)
	List(ctx context.Context, ownerID string, req *types.ScanRequest) (*reminder.ListResult, error)
	Trigger(ctx context.Context, in reminder.TriggerInput) ([]*reminder.TriggerOutcome, error)
	SweepOwner(ctx context.Context, ownerID string, now time.Time) (*reminder.SweepResult, error)
}

// @Summary      Get reminder rule
// @Description  Returns the owner's reminder settings, creating the defaults on first use.
// @Tags         Reminders
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespReminderRule
// @Router       /api/v1/mpesa/reminder-rules [get]
func ApiGetReminderRule(svc ReminderService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rule, err := svc.GetOrCreateRule(c.Request.Context(), mw.OwnerID(c))
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(rule))
	}
}

// @Summary      Update reminder rule
// @Description  Partially updates the owner's reminder settings.
// @Tags         Reminders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body reminder.RuleUpdate true "Fields to change"
// @Success      200  {object}  handlers.RespReminderRule
// @Router       /api/v1/mpesa/reminder-rules [post]
func ApiUpdateReminderRule(svc ReminderService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in reminder.RuleUpdate
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, err)
			return
		}
		rule, err := svc.UpdateRule(c.Request.Context(), mw.OwnerID(c), in)
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(rule))
	}
}

// @Summary      List reminders
// @Tags         Reminders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body types.ScanRequest true "Filters, pagination and sorting"
// @Success      200  {object}  handlers.RespListReminders
// @Router       /api/v1/mpesa/reminders/list [post]
func ApiListReminders(svc ReminderService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := svc.List(c.Request.Context(), mw.OwnerID(c), &req)
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Send reminders now
// @Description  Sends a reminder to one tenant, or to every tenant who has not settled the current month.
// @Tags         Reminders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body reminder.TriggerInput false "Optional tenant, kind and channel"
// @Success      200  {object}  handlers.RespTriggerReminders
// @Router       /api/v1/mpesa/reminders/trigger [post]
func ApiTriggerReminders(svc ReminderService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in reminder.TriggerInput
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&in); err != nil {
				badRequest(c, err)
				return
			}
		}
		in.OwnerID = mw.OwnerID(c)
		out, err := svc.Trigger(c.Request.Context(), in)
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

// @Summary      Run reminder sweep
// @Description  Creates due reminder instances for the owner now instead of waiting for the daily run.
// @Tags         Reminders
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespSweep
// @Router       /api/v1/mpesa/reminders/sweep [post]
func ApiSweepReminders(svc ReminderService, clk clock.Clock, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.SweepOwner(c.Request.Context(), mw.OwnerID(c), clk.Now())
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterReminderRoutes(r gin.IRouter, svc ReminderService, clk clock.Clock, log *zap.SugaredLogger) {
	r.GET("/reminder-rules", ApiGetReminderRule(svc, log))
	r.POST("/reminder-rules", ApiUpdateReminderRule(svc, log))
	r.POST("/reminders/list", ApiListReminders(svc, log))
	r.POST("/reminders/trigger", ApiTriggerReminders(svc, log))
	r.POST("/reminders/sweep", ApiSweepReminders(svc, clk, log))
}
