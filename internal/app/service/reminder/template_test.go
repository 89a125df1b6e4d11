package reminder

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/fatflowers/rentpay/internal/models"
)

func TestRender(t *testing.T) {
	vars := map[string]string{"name": "Jane", "amount": "15000"}

	assert.Equal(t, "Hi Jane, pay 15000", Render("Hi {name}, pay {amount}", vars))
	assert.Equal(t, "Hi Jane, {unknown} stays", Render("Hi {name}, {unknown} stays", vars))
	assert.Equal(t, "no placeholders", Render("no placeholders", vars))
	assert.Equal(t, "{Name} {name", Render("{Name} {name", vars))
	assert.Equal(t, "Hi {name}", Render("Hi {name}", nil))
}

func TestRender_DefaultTemplatesResolveFully(t *testing.T) {
	vars := map[string]string{
		"name": "Jane", "amount": "15000", "unit": "A1", "date": "05 March 2024",
		"shortcode": "174379", "reference": "UNIT-A1", "company": "Acme",
		"late_fee": "750", "total": "15750", "days": "3",
	}
	for _, k := range models.ReminderKinds {
		out := Render(DefaultTemplates[k], vars)
		assert.NotContains(t, out, "{", "kind %s", k)
		assert.Contains(t, out, "Acme", "kind %s", k)
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "15000", FormatAmount(decimal.NewFromInt(15000)))
	assert.Equal(t, "12.50", FormatAmount(decimal.RequireFromString("12.5")))
	assert.Equal(t, "0", FormatAmount(decimal.Zero))
}
