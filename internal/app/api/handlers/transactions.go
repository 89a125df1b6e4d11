package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/fatflowers/rentpay/internal/app/api/middleware"
	"github.com/fatflowers/rentpay/internal/app/service/eventstore"
	"github.com/fatflowers/rentpay/internal/app/service/reconciliation"
	"github.com/fatflowers/rentpay/internal/models"
	"github.com/fatflowers/rentpay/pkg/response"
	"github.com/fatflowers/rentpay/pkg/types"
)

type TransactionReader interface {
	Get(ctx context.Context, ownerID, id string) (*models.PaymentTransaction, error)
	List(ctx context.Context, ownerID string, req *types.ScanRequest) (*eventstore.ListResult, error)
	Logs(ctx context.Context, transactionID string) ([]*models.ReconciliationLog, error)
}

type NotificationLogReader interface {
	ByReceipt(ctx context.Context, receipt string) ([]*models.PaymentNotificationLog, error)
}

// ManualReconciler applies owner decisions to a transaction.
type ManualReconciler interface {
	ManualMatch(ctx context.Context, in reconciliation.ManualMatchInput) (*models.PaymentTransaction, error)
	Dispute(ctx context.Context, in reconciliation.DisputeInput) (*models.PaymentTransaction, error)
}

// TransactionDetail is a transaction with its audit trail and raw callbacks.
type TransactionDetail struct {
	Transaction   *models.PaymentTransaction       `json:"transaction"`
	Logs          []*models.ReconciliationLog      `json:"logs"`
	Notifications []*models.PaymentNotificationLog `json:"notifications"`
}

// @Summary      List payment transactions
// @Description  Paginated, filterable list of the owner's payments.
// @Tags         Transactions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body types.ScanRequest true "Filters, pagination and sorting"
// @Success      200  {object}  handlers.RespListTransactions
// @Router       /api/v1/mpesa/transactions/list [post]
func ApiListTransactions(txns TransactionReader, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := txns.List(c.Request.Context(), mw.OwnerID(c), &req)
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Get payment transaction
// @Description  One transaction with its reconciliation log and stored callbacks.
// @Tags         Transactions
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Transaction ID"
// @Success      200  {object}  handlers.RespTransactionDetail
// @Router       /api/v1/mpesa/transactions/{id} [get]
func ApiGetTransaction(txns TransactionReader, notifs NotificationLogReader, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		txn, err := txns.Get(ctx, mw.OwnerID(c), c.Param("id"))
		if err != nil {
			fail(c, log, err)
			return
		}
		logs, err := txns.Logs(ctx, txn.ID)
		if err != nil {
			fail(c, log, err)
			return
		}
		callbacks, err := notifs.ByReceipt(ctx, txn.ReceiptNumber)
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(&TransactionDetail{Transaction: txn, Logs: logs, Notifications: callbacks}))
	}
}

// @Summary      Match transaction manually
// @Description  Assigns the payment to a tenant, updates the ledger and cancels pending reminders.
// @Tags         Transactions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path  string                            true  "Transaction ID"
// @Param        request  body  reconciliation.ManualMatchInput  true  "Target tenant"
// @Success      200  {object}  handlers.RespTransaction
// @Router       /api/v1/mpesa/transactions/{id}/match [post]
func ApiMatchTransaction(rec ManualReconciler, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in reconciliation.ManualMatchInput
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, err)
			return
		}
		in.OwnerID = mw.OwnerID(c)
		in.TransactionID = c.Param("id")
		in.Actor = in.OwnerID
		txn, err := rec.ManualMatch(c.Request.Context(), in)
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(txn))
	}
}

// @Summary      Dispute transaction
// @Description  Flags the payment for follow-up with a reason.
// @Tags         Transactions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path  string                        true  "Transaction ID"
// @Param        request  body  reconciliation.DisputeInput  true  "Dispute reason"
// @Success      200  {object}  handlers.RespTransaction
// @Router       /api/v1/mpesa/transactions/{id}/dispute [post]
func ApiDisputeTransaction(rec ManualReconciler, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in reconciliation.DisputeInput
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, err)
			return
		}
		in.OwnerID = mw.OwnerID(c)
		in.TransactionID = c.Param("id")
		in.Actor = in.OwnerID
		txn, err := rec.Dispute(c.Request.Context(), in)
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(txn))
	}
}

func RegisterTransactionRoutes(r gin.IRouter, txns TransactionReader, notifs NotificationLogReader, rec ManualReconciler, log *zap.SugaredLogger) {
	g := r.Group("/transactions")
	g.POST("/list", ApiListTransactions(txns, log))
	g.GET("/:id", ApiGetTransaction(txns, notifs, log))
	g.POST("/:id/match", ApiMatchTransaction(rec, log))
	g.POST("/:id/dispute", ApiDisputeTransaction(rec, log))
}
