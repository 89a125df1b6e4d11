// Package csvimport bulk-loads M-Pesa business statements exported as CSV or
// XLSX into the payment event store.
package csvimport

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/rentpay/internal/app/service/eventstore"
	"github.com/fatflowers/rentpay/internal/models"
	"github.com/fatflowers/rentpay/internal/platform/mpesa"
	"github.com/fatflowers/rentpay/pkg/config"
	"github.com/fatflowers/rentpay/pkg/logctx"
	"github.com/fatflowers/rentpay/pkg/tool"
)

const (
	maxErrors    = 20
	maxReference = 100
	description  = "CSV Import"
)

var ErrNoRows = errors.New("no valid rows found; check the column headers")

var (
	errMissingTime = errors.New("missing completion time")
	errInvalidTime = errors.New("invalid completion time")
)

var dateLayouts = []string{
	"02/01/2006 15:04:05",
	"2006-01-02 15:04:05",
	"02-01-2006 15:04:05",
	"2006-01-02T15:04:05",
	"20060102150405",
}

type column int

const (
	colReceipt column = iota
	colTime
	colDetails
	colAmount
	colOtherParty
)

// headerAliases are matched after lower-casing, trimming a trailing dot and
// replacing spaces with underscores.
var headerAliases = map[string]column{
	"receipt_no":         colReceipt,
	"transid":            colReceipt,
	"completion_time":    colTime,
	"details":            colDetails,
	"transaction_amount": colAmount,
	"paid_in":            colAmount,
	"amount":             colAmount,
	"other_party_info":   colOtherParty,
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")))
	h = strings.TrimSuffix(h, ".")
	return strings.Join(strings.Fields(h), "_")
}

// Recorder is the event store's write path.
type Recorder interface {
	Record(ctx context.Context, in *eventstore.RecordInput) (*models.PaymentTransaction, bool, error)
}

// Notifier wakes the deferred reconciliation worker.
type Notifier interface {
	Notify()
}

type Result struct {
	Imported          int      `json:"imported"`
	SkippedDuplicates int      `json:"skipped_duplicates"`
	Errored           int      `json:"errored"`
	Errors            []string `json:"errors"`
}

func (r *Result) addError(format string, args ...any) {
	r.Errored++
	if len(r.Errors) < maxErrors {
		r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	}
}

type Service struct {
	store    Recorder
	notifier Notifier
	log      *zap.SugaredLogger
	loc      *time.Location
	region   string
}

func New(store Recorder, notifier Notifier, log *zap.SugaredLogger, loc *time.Location, region string) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, notifier: notifier, log: log, loc: loc, region: region}
}

func newServiceFromConfig(store *eventstore.Service, notifier Notifier, log *zap.SugaredLogger, cfg *config.Config) *Service {
	return New(store, notifier, log, cfg.Location(), cfg.Mpesa.DefaultCountry)
}

var Module = fx.Options(
	fx.Provide(newServiceFromConfig),
)

// Import reads a CSV statement.
func (s *Service) Import(ctx context.Context, ownerID string, r io.Reader) (*Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return s.importRows(ctx, ownerID, records)
}

// ImportXLSX reads the first sheet of an XLSX statement.
func (s *Service) ImportXLSX(ctx context.Context, ownerID string, r io.Reader) (*Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("read xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoRows
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read xlsx: %w", err)
	}
	return s.importRows(ctx, ownerID, rows)
}

type statementRow struct {
	line       int
	receipt    string
	at         time.Time
	details    string
	amount     decimal.Decimal
	phone      string
	payerName  string
	raw        map[string]string
	parseError error
}

// findHeader returns the index of the first row naming a receipt column and
// the column positions it declares.
func findHeader(rows [][]string) (int, map[column]int) {
	for i, row := range rows {
		cols := map[column]int{}
		for j, h := range row {
			if c, ok := headerAliases[normalizeHeader(h)]; ok {
				if _, dup := cols[c]; !dup {
					cols[c] = j
				}
			}
		}
		if _, ok := cols[colReceipt]; ok {
			return i, cols
		}
	}
	return -1, nil
}

func cell(row []string, cols map[column]int, c column) string {
	i, ok := cols[c]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (s *Service) parseRow(line int, header, row []string, cols map[column]int) (*statementRow, bool) {
	receipt := cell(row, cols, colReceipt)
	if receipt == "" {
		return nil, false
	}
	out := &statementRow{line: line, receipt: receipt, details: cell(row, cols, colDetails), raw: map[string]string{}}
	for j, h := range header {
		if j < len(row) && strings.TrimSpace(h) != "" {
			out.raw[strings.TrimSpace(h)] = strings.TrimSpace(row[j])
		}
	}

	amountStr := strings.ReplaceAll(cell(row, cols, colAmount), ",", "")
	amount, err := decimal.NewFromString(amountStr)
	if err != nil || !amount.IsPositive() {
		out.parseError = fmt.Errorf("invalid amount %q", cell(row, cols, colAmount))
		return out, true
	}
	out.amount = amount

	at, err := s.parseTime(cell(row, cols, colTime))
	if err != nil {
		out.parseError = err
		return out, true
	}
	out.at = at

	if other := cell(row, cols, colOtherParty); other != "" {
		phone, name, _ := strings.Cut(other, " - ")
		out.phone = mpesa.NormalizePhoneLenient(strings.TrimSpace(phone), s.region)
		out.payerName = strings.TrimSpace(name)
	}
	return out, true
}

// parseTime reads the completion time in the statement's timezone. Rows
// without a readable time are rejected since the time decides the billing
// month.
func (s *Service) parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, errMissingTime
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, v, s.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w %q", errInvalidTime, v)
}

func (s *Service) importRows(ctx context.Context, ownerID string, rows [][]string) (*Result, error) {
	l := logctx.FromCtx(ctx, s.log).With("owner_id", ownerID)
	hi, cols := findHeader(rows)
	if hi < 0 {
		return nil, ErrNoRows
	}
	header := rows[hi]

	var parsed []*statementRow
	for i := hi + 1; i < len(rows); i++ {
		if r, ok := s.parseRow(i+1, header, rows[i], cols); ok {
			parsed = append(parsed, r)
		}
	}
	if len(parsed) == 0 {
		return nil, ErrNoRows
	}

	res := &Result{Errors: []string{}}
	for _, r := range parsed {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if r.parseError != nil {
			l.Warnw("statement_row_rejected", "line", r.line, "receipt", r.receipt, "err", r.parseError)
			res.addError("row %d (%s): %v", r.line, r.receipt, r.parseError)
			continue
		}
		raw, _ := json.Marshal(r.raw)
		_, isNew, err := s.store.Record(ctx, &eventstore.RecordInput{
			OwnerID:          ownerID,
			ReceiptNumber:    r.receipt,
			Kind:             models.TransactionKindPaybill,
			Phone:            r.phone,
			PayerName:        r.payerName,
			Amount:           r.amount,
			AccountReference: tool.TruncateRunes(r.details, maxReference),
			Description:      description,
			TransactionAt:    r.at,
			RawPayload:       raw,
			EnqueueReconcile: true,
		})
		switch {
		case err != nil:
			res.addError("row %d (%s): %v", r.line, r.receipt, err)
		case isNew:
			res.Imported++
		default:
			res.SkippedDuplicates++
		}
	}
	if res.Imported > 0 && s.notifier != nil {
		s.notifier.Notify()
	}
	l.Infow("statement_imported", "imported", res.Imported, "skipped_duplicates", res.SkippedDuplicates, "errored", res.Errored)
	return res, nil
}
