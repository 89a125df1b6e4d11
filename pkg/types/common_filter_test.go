package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allowed = map[string]bool{"status": true, "amount": true, "created_at": true}

func TestCommonFilter_Validate(t *testing.T) {
	tests := []struct {
		name    string
		f       CommonFilter
		wantErr bool
	}{
		{"eq ok", CommonFilter{Field: "status", Operator: CommonFilterOperatorEq, Values: []any{"matched"}}, false},
		{"field not allowed", CommonFilter{Field: "owner_id; drop table", Operator: CommonFilterOperatorEq, Values: []any{"x"}}, true},
		{"missing value", CommonFilter{Field: "status", Operator: CommonFilterOperatorEq}, true},
		{"range needs two", CommonFilter{Field: "amount", Operator: CommonFilterOperatorRange, Values: []any{1}}, true},
		{"unknown operator", CommonFilter{Field: "amount", Operator: "between", Values: []any{1, 2}}, true},
		{"or nested ok", CommonFilter{Operator: CommonFilterOperatorOr, Filters: []CommonFilter{
			{Field: "status", Operator: CommonFilterOperatorEq, Values: []any{"partial"}},
			{Field: "status", Operator: CommonFilterOperatorEq, Values: []any{"unmatched"}},
		}}, false},
		{"or nested bad field", CommonFilter{Operator: CommonFilterOperatorOr, Filters: []CommonFilter{
			{Field: "secret", Operator: CommonFilterOperatorEq, Values: []any{"x"}},
		}}, true},
		{"or empty", CommonFilter{Operator: CommonFilterOperatorOr}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.f.Validate(allowed)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestScanRequest_Normalize(t *testing.T) {
	r := &ScanRequest{Size: 10000, From: -3}
	require.NoError(t, r.Normalize(allowed, "created_at"))
	assert.Equal(t, MaxPageSize, r.Size)
	assert.Equal(t, 0, r.From)
	assert.Equal(t, "created_at desc", r.OrderClause())

	r = &ScanRequest{SortBy: "amount", SortOrder: "ASC"}
	require.NoError(t, r.Normalize(allowed, "created_at"))
	assert.Equal(t, DefaultPageSize, r.Size)
	assert.Equal(t, "amount asc", r.OrderClause())

	r = &ScanRequest{SortBy: "password"}
	assert.ErrorIs(t, r.Normalize(allowed, "created_at"), ErrInvalidScan)

	r = &ScanRequest{SortOrder: "sideways"}
	assert.Error(t, r.Normalize(allowed, "created_at"))
}
