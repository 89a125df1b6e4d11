package eventstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/rentpay/internal/app/service/billing"
	"github.com/fatflowers/rentpay/internal/models"
	"github.com/fatflowers/rentpay/pkg/clock"
	"github.com/fatflowers/rentpay/pkg/config"
	"github.com/fatflowers/rentpay/pkg/logctx"
	"github.com/fatflowers/rentpay/pkg/tool"
	"github.com/fatflowers/rentpay/pkg/types"
)

var (
	ErrMissingReceipt      = errors.New("payment event has no receipt number")
	ErrInvalidAmount       = errors.New("payment amount must be positive")
	ErrMissingOwner        = errors.New("payment event has no owner")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// RecordInput is a provider-agnostic inbound payment.
type RecordInput struct {
	OwnerID          string
	ReceiptNumber    string
	Kind             models.TransactionKind
	Phone            string
	PayerName        string
	Amount           decimal.Decimal
	AccountReference string
	Description      string
	TransactionAt    time.Time
	RawPayload       []byte
	// EnqueueReconcile writes the reconcile job in the same DB transaction
	// as the payment row.
	EnqueueReconcile bool
}

type Service struct {
	db    *gorm.DB
	log   *zap.SugaredLogger
	clock clock.Clock
	loc   *time.Location
}

func New(db *gorm.DB, log *zap.SugaredLogger, cfg *config.Config, clk clock.Clock) *Service {
	return &Service{db: db, log: log, clock: clk, loc: cfg.Location()}
}

var Module = fx.Options(
	fx.Provide(New),
)

// Record stores the payment once per receipt number. Replays return the
// stored row with isNew=false and never modify it.
func (s *Service) Record(ctx context.Context, in *RecordInput) (*models.PaymentTransaction, bool, error) {
	if in == nil {
		return nil, false, ErrMissingReceipt
	}
	receipt := strings.TrimSpace(in.ReceiptNumber)
	if receipt == "" {
		return nil, false, ErrMissingReceipt
	}
	if in.OwnerID == "" {
		return nil, false, ErrMissingOwner
	}
	if !in.Amount.IsPositive() {
		return nil, false, fmt.Errorf("%w: receipt %s amount %s", ErrInvalidAmount, receipt, in.Amount)
	}
	at := in.TransactionAt
	if at.IsZero() {
		at = s.clock.Now()
	}
	kind := in.Kind
	if kind == "" {
		kind = models.TransactionKindPaybill
	}
	raw := in.RawPayload
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	txn := &models.PaymentTransaction{
		ID:               tool.GenerateUUIDV7(),
		OwnerID:          in.OwnerID,
		ReceiptNumber:    receipt,
		Kind:             kind,
		PhoneNumber:      in.Phone,
		PayerName:        strings.TrimSpace(in.PayerName),
		Amount:           in.Amount,
		AccountReference: strings.TrimSpace(in.AccountReference),
		Description:      in.Description,
		TransactionAt:    at.UTC(),
		Cycle:            billing.CycleOf(at, s.loc).Key(),
		Status:           models.TransactionStatusUnmatched,
		RawPayload:       datatypes.JSON(raw),
	}

	inserted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "receipt_number"}},
			DoNothing: true,
		}).Create(txn)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		inserted = true
		if !in.EnqueueReconcile {
			return nil
		}
		return tx.Create(&models.ReconcileJob{
			ID:            tool.GenerateUUIDV7(),
			TransactionID: txn.ID,
			OwnerID:       txn.OwnerID,
			Status:        models.ReconcileJobStatusPending,
			NextRunAt:     s.clock.Now().UTC(),
		}).Error
	})
	if err != nil {
		return nil, false, fmt.Errorf("record payment %s: %w", receipt, err)
	}

	l := logctx.FromCtx(ctx, s.log)
	if inserted {
		l.Infow("payment_recorded", "receipt", receipt, "txn_id", txn.ID, "amount", txn.Amount.String(), "kind", txn.Kind)
		return txn, true, nil
	}

	var existing models.PaymentTransaction
	if err := s.db.WithContext(ctx).Where("receipt_number = ?", receipt).First(&existing).Error; err != nil {
		return nil, false, fmt.Errorf("load existing payment %s: %w", receipt, err)
	}
	if existing.OwnerID != txn.OwnerID || !existing.Amount.Equal(txn.Amount) || existing.PhoneNumber != txn.PhoneNumber {
		l.Warnw("receipt_collision",
			"receipt", receipt,
			"stored_owner", existing.OwnerID, "incoming_owner", txn.OwnerID,
			"stored_amount", existing.Amount.String(), "incoming_amount", txn.Amount.String())
	} else {
		l.Infow("payment_replayed", "receipt", receipt, "txn_id", existing.ID)
	}
	return &existing, false, nil
}

// Get returns one transaction of owner.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// TransactionFilterFields are the columns list filters and sorting may use.
var TransactionFilterFields = map[string]bool{
	"status":            true,
	"kind":              true,
	"phone_number":      true,
	"account_reference": true,
	"receipt_number":    true,
	"tenant_id":         true,
	"unit_id":           true,
	"property_id":       true,
	"cycle":             true,
	"amount":            true,
	"confidence":        true,
	"transaction_at":    true,
	"created_at":        true,
}

type ListResult struct {
	Items []*models.PaymentTransaction `json:"items"`
	Total int64                        `json:"total"`
}

// List pages through owner's transactions.
func (s *Service) List(ctx context.Context, ownerID string, req *types.ScanRequest) (*ListResult, error) {
	if req == nil {
		req = &types.ScanRequest{}
	}
	if err := req.Normalize(TransactionFilterFields, "transaction_at"); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Model(&models.PaymentTransaction{}).
		Where("owner_id = ?", ownerID)
	if len(req.Filters) > 0 {
		q = q.Where(clause.Where{Exprs: []clause.Expression{types.FiltersWhere(req.Filters)}})
	}
	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}
	items := make([]*models.PaymentTransaction, 0)
	if err := q.Order(req.OrderClause()).Offset(req.From).Limit(req.Size).Find(&items).Error; err != nil {
		return nil, err
	}
	return &ListResult{Items: items, Total: total}, nil
}

// Logs returns the audit trail of a transaction, oldest first.
func (s *Service) Logs(ctx context.Context, transactionID string) ([]*models.ReconciliationLog, error) {
	logs := make([]*models.ReconciliationLog, 0)
	err := s.db.WithContext(ctx).Where("transaction_id = ?", transactionID).
		Order("created_at asc, id asc").Find(&logs).Error
	return logs, err
}
