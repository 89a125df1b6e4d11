package gormlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortCaller(t *testing.T) {
	tests := []struct{ in, want string }{
		{"/home/ci/rentpay/internal/platform/db/postgres.go:38", "internal/platform/db/postgres.go:38"},
		{"/go/pkg/mod/gorm.io/gorm@v1/callbacks.go:7", "pkg/mod/gorm.io/gorm@v1/callbacks.go:7"},
		{"/a/b/c/d.go:1", "c/d.go:1"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, shortCaller(tt.in), tt.in)
	}
}
