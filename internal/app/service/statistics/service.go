package statistics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/fatflowers/rentpay/internal/app/service/billing"
	"github.com/fatflowers/rentpay/internal/app/service/directory"
	"github.com/fatflowers/rentpay/internal/models"
	"github.com/fatflowers/rentpay/pkg/clock"
	"github.com/fatflowers/rentpay/pkg/config"
)

var ErrInvalidMonth = errors.New("month must be YYYY-MM")

type TenantStatus string

const (
	TenantStatusPaid    TenantStatus = "paid"
	TenantStatusPartial TenantStatus = "partial"
	TenantStatusUnpaid  TenantStatus = "unpaid"
)

type TenantCollection struct {
	TenantID     string          `json:"tenant_id"`
	TenantName   string          `json:"tenant_name"`
	UnitNumber   string          `json:"unit_number"`
	PropertyName string          `json:"property_name"`
	Expected     decimal.Decimal `json:"expected"`
	Collected    decimal.Decimal `json:"collected"`
	Status       TenantStatus    `json:"status"`
}

type PropertyCollection struct {
	PropertyID   string          `json:"property_id"`
	PropertyName string          `json:"property_name"`
	TenantCount  int             `json:"tenant_count"`
	PaidCount    int             `json:"paid_count"`
	Expected     decimal.Decimal `json:"expected"`
	Collected    decimal.Decimal `json:"collected"`
	RatePct      float64         `json:"rate_pct"`
}

type CollectionRate struct {
	Month          string                `json:"month"`
	ExpectedCount  int                   `json:"expected_count"`
	PaidCount      int                   `json:"paid_count"`
	PartialCount   int                   `json:"partial_count"`
	UnpaidCount    int                   `json:"unpaid_count"`
	RatePct        float64               `json:"collection_rate_pct"`
	TotalExpected  decimal.Decimal       `json:"total_expected"`
	TotalCollected decimal.Decimal       `json:"total_collected"`
	ByProperty     []*PropertyCollection `json:"by_property"`
	Tenants        []*TenantCollection   `json:"tenants"`
}

type PaymentTiming struct {
	Month string `json:"month"`
	// Distribution counts matched payments per day of month.
	Distribution  map[int]int `json:"distribution"`
	AvgPaymentDay *float64    `json:"avg_payment_day"`
	OnTimePct     float64     `json:"on_time_pct"`
	TotalPayments int         `json:"total_payments"`
}

// Service computes owner-facing collection analytics.
type Service struct {
	db        *gorm.DB
	dir       *directory.Service
	clock     clock.Clock
	loc       *time.Location
	paidRatio float64
}

func New(db *gorm.DB, dir *directory.Service, clk clock.Clock, loc *time.Location, paidRatio float64) *Service {
	return &Service{db: db, dir: dir, clock: clk, loc: loc, paidRatio: paidRatio}
}

func newServiceFromConfig(db *gorm.DB, dir *directory.Service, clk clock.Clock, cfg *config.Config) *Service {
	return New(db, dir, clk, cfg.Location(), cfg.Reconciliation.PaidRatio)
}

var Module = fx.Options(
	fx.Provide(newServiceFromConfig),
)

// Cycle parses month, defaulting to the current billing month.
func (s *Service) Cycle(month string) (billing.Cycle, error) {
	if month == "" {
		return billing.CycleOf(s.clock.Now(), s.loc), nil
	}
	c, err := billing.ParseCycle(month, s.loc)
	if err != nil {
		return billing.Cycle{}, fmt.Errorf("%w: %q", ErrInvalidMonth, month)
	}
	return c, nil
}

func pct(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*1000) / 10
}

// CollectionRate compares the rent ledger for month against active tenants'
// rent.
func (s *Service) CollectionRate(ctx context.Context, ownerID, month string) (*CollectionRate, error) {
	cycle, err := s.Cycle(month)
	if err != nil {
		return nil, err
	}
	tenants, err := s.dir.ActiveTenants(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load tenants: %w", err)
	}
	paid, err := s.dir.PaidByTenant(ctx, ownerID, cycle.Key())
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	out := &CollectionRate{
		Month:          cycle.Key(),
		ExpectedCount:  len(tenants),
		TotalExpected:  decimal.Zero,
		TotalCollected: decimal.Sum(decimal.Zero, lo.Values(paid)...),
		ByProperty:     make([]*PropertyCollection, 0),
		Tenants:        make([]*TenantCollection, 0, len(tenants)),
	}

	props := map[string]*PropertyCollection{}
	for _, t := range tenants {
		collected := paid[t.ID]
		tc := &TenantCollection{
			TenantID:     t.ID,
			TenantName:   t.FullName,
			UnitNumber:   t.UnitNumber,
			PropertyName: t.PropertyName,
			Expected:     t.RentAmount,
			Collected:    collected,
			Status:       TenantStatusUnpaid,
		}
		switch {
		case billing.Settled(collected, t.RentAmount, s.paidRatio):
			tc.Status = TenantStatusPaid
			out.PaidCount++
		case collected.IsPositive():
			tc.Status = TenantStatusPartial
			out.PartialCount++
		}
		out.TotalExpected = out.TotalExpected.Add(t.RentAmount)
		out.Tenants = append(out.Tenants, tc)

		p, ok := props[t.PropertyID]
		if !ok {
			p = &PropertyCollection{PropertyID: t.PropertyID, PropertyName: t.PropertyName}
			props[t.PropertyID] = p
		}
		p.TenantCount++
		p.Expected = p.Expected.Add(t.RentAmount)
		p.Collected = p.Collected.Add(collected)
		if tc.Status == TenantStatusPaid {
			p.PaidCount++
		}
	}
	out.UnpaidCount = out.ExpectedCount - out.PaidCount - out.PartialCount
	out.RatePct = pct(out.PaidCount, out.ExpectedCount)

	for _, p := range props {
		p.RatePct = pct(p.PaidCount, p.TenantCount)
		out.ByProperty = append(out.ByProperty, p)
	}
	sort.Slice(out.ByProperty, func(i, j int) bool {
		if out.ByProperty[i].PropertyName != out.ByProperty[j].PropertyName {
			return out.ByProperty[i].PropertyName < out.ByProperty[j].PropertyName
		}
		return out.ByProperty[i].PropertyID < out.ByProperty[j].PropertyID
	})
	sort.SliceStable(out.Tenants, func(i, j int) bool {
		if out.Tenants[i].PropertyName != out.Tenants[j].PropertyName {
			return out.Tenants[i].PropertyName < out.Tenants[j].PropertyName
		}
		return out.Tenants[i].UnitNumber < out.Tenants[j].UnitNumber
	})
	return out, nil
}

// PaymentTiming shows which days of the month matched payments land on. A
// payment is on time when it lands on or before the tenant's due day.
func (s *Service) PaymentTiming(ctx context.Context, ownerID, month string) (*PaymentTiming, error) {
	cycle, err := s.Cycle(month)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		TransactionAt time.Time
		DueDay        int
	}
	err = s.db.WithContext(ctx).Table("payment_transaction").
		Select("payment_transaction.transaction_at, COALESCE(tenant.due_day, 1) AS due_day").
		Joins("LEFT JOIN tenant ON tenant.id = payment_transaction.tenant_id").
		Where("payment_transaction.owner_id = ? AND payment_transaction.cycle = ?", ownerID, cycle.Key()).
		Where("payment_transaction.status IN ?", []models.TransactionStatus{models.TransactionStatusMatched, models.TransactionStatusPartial}).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load matched payments: %w", err)
	}

	out := &PaymentTiming{Month: cycle.Key(), Distribution: map[int]int{}, TotalPayments: len(rows)}
	if len(rows) == 0 {
		return out, nil
	}
	sum, onTime := 0, 0
	for _, r := range rows {
		day := r.TransactionAt.In(s.loc).Day()
		out.Distribution[day]++
		sum += day
		if day <= r.DueDay {
			onTime++
		}
	}
	avg := math.Round(float64(sum)/float64(len(rows))*10) / 10
	out.AvgPaymentDay = &avg
	out.OnTimePct = pct(onTime, len(rows))
	return out, nil
}
