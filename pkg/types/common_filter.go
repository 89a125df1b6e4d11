package types

import (
	"fmt"
	"strings"

	"gorm.io/gorm/clause"
)

type CommonFilterOperator string

const (
	CommonFilterOperatorEq        CommonFilterOperator = "eq"
	CommonFilterOperatorNotEq     CommonFilterOperator = "not_eq"
	CommonFilterOperatorLt        CommonFilterOperator = "lt"
	CommonFilterOperatorLte       CommonFilterOperator = "lte"
	CommonFilterOperatorGt        CommonFilterOperator = "gt"
	CommonFilterOperatorGte       CommonFilterOperator = "gte"
	CommonFilterOperatorDateRange CommonFilterOperator = "date_range"
	CommonFilterOperatorRange     CommonFilterOperator = "range"
	CommonFilterOperatorIn        CommonFilterOperator = "in"
	CommonFilterOperatorLike      CommonFilterOperator = "like"
	// CommonFilterOperatorOr joins the nested Filters with OR; Field and Values are ignored.
	CommonFilterOperatorOr CommonFilterOperator = "or"
)

type CommonFilter struct {
	Field    string               `json:"field"`
	Operator CommonFilterOperator `json:"operator"`
	Values   []any                `json:"values"`
	Filters  []CommonFilter       `json:"filters"`
}

// Validate rejects fields outside allowed and unknown operators. Column names
// are written into SQL verbatim, so every filter coming from a request must
// pass through here first.
func (f *CommonFilter) Validate(allowed map[string]bool) error {
	if f.Operator == CommonFilterOperatorOr {
		if len(f.Filters) == 0 {
			return fmt.Errorf("filter or: no nested filters")
		}
		for i := range f.Filters {
			if err := f.Filters[i].Validate(allowed); err != nil {
				return err
			}
		}
		return nil
	}
	if !allowed[f.Field] {
		return fmt.Errorf("filter field %q is not allowed", f.Field)
	}
	switch f.Operator {
	case CommonFilterOperatorEq, CommonFilterOperatorNotEq, CommonFilterOperatorLt,
		CommonFilterOperatorLte, CommonFilterOperatorGt, CommonFilterOperatorGte,
		CommonFilterOperatorIn, CommonFilterOperatorLike:
		if len(f.Values) == 0 {
			return fmt.Errorf("filter %s %s: missing value", f.Field, f.Operator)
		}
	case CommonFilterOperatorRange, CommonFilterOperatorDateRange:
		if len(f.Values) < 2 {
			return fmt.Errorf("filter %s %s: need two values", f.Field, f.Operator)
		}
	default:
		return fmt.Errorf("filter %s: unknown operator %q", f.Field, f.Operator)
	}
	return nil
}

// Build constructs a GORM expression.
func (f *CommonFilter) Build(builder clause.Builder) {
	if f.Operator == CommonFilterOperatorOr {
		exprs := make([]clause.Expression, 0, len(f.Filters))
		for i := range f.Filters {
			exprs = append(exprs, &f.Filters[i])
		}
		builder.WriteByte('(')
		clause.Or(exprs...).Build(builder)
		builder.WriteByte(')')
		return
	}
	if len(f.Values) == 0 {
		return
	}

	value := f.Values[0]

	switch f.Operator {
	case CommonFilterOperatorEq:
		if strings.Contains(f.Field, "->") {
			// JSON operator fields need the raw column expression
			clause.Expr{SQL: fmt.Sprintf("%s = ?", f.Field), Vars: []interface{}{value}}.Build(builder)
		} else {
			clause.Eq{Column: f.Field, Value: value}.Build(builder)
		}
	case CommonFilterOperatorNotEq:
		clause.Neq{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorLt:
		clause.Lt{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorLte:
		clause.Lte{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorGt:
		clause.Gt{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorGte:
		clause.Gte{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorRange, CommonFilterOperatorDateRange:
		if len(f.Values) < 2 {
			return
		}
		clause.And(clause.Gte{Column: f.Field, Value: f.Values[0]}, clause.Lte{Column: f.Field, Value: f.Values[1]}).Build(builder)
	case CommonFilterOperatorIn:
		clause.IN{Column: f.Field, Values: f.Values}.Build(builder)
	case CommonFilterOperatorLike:
		clause.Like{Column: f.Field, Value: fmt.Sprintf("%%%v%%", value)}.Build(builder)
	}
}

// FiltersWhere joins filters with AND into a single clause.Expression.
type FiltersWhere []*CommonFilter

func (w FiltersWhere) Build(builder clause.Builder) {
	if len(w) == 0 {
		builder.WriteString("1=1")
		return
	}
	for i, f := range w {
		if i > 0 {
			builder.WriteString(" AND ")
		}
		f.Build(builder)
	}
}
