package reminder

import (
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/fatflowers/rentpay/internal/models"
)

// DefaultTemplates are used for any kind the owner has not customised.
var DefaultTemplates = map[models.ReminderKind]string{
	models.ReminderKindPreDue: "Hi {name}, your rent of KES {amount} for {unit} is due on {date}. " +
		"Pay via M-Pesa Paybill {shortcode}, Account: {reference}. - {company}",
	models.ReminderKindDueToday: "Hi {name}, your rent of KES {amount} for {unit} is due today. " +
		"Pay via M-Pesa Paybill {shortcode}, Account: {reference}. - {company}",
	models.ReminderKindDay1: "Hi {name}, your rent of KES {amount} for {unit} was due yesterday. " +
		"Please pay via Paybill {shortcode}, Account: {reference}. - {company}",
	models.ReminderKindDay3: "Reminder: {name}, your rent of KES {amount} for {unit} is {days} days overdue. " +
		"Paybill {shortcode}, Account: {reference}. - {company}",
	models.ReminderKindDay7: "Urgent: {name}, your rent of KES {amount} for {unit} is {days} days overdue. " +
		"A late fee of KES {late_fee} may apply. Paybill {shortcode}, Account: {reference}. - {company}",
	models.ReminderKindDay14: "{name}, your rent for {unit} is {days} days overdue. Total due including late fee: KES {total}. " +
		"Pay now via Paybill {shortcode}, Account: {reference}. - {company}",
	models.ReminderKindFinalNotice: "FINAL NOTICE: {name}, your rent for {unit} is {days} days overdue. Total due: KES {total}. " +
		"Failure to pay may result in further action. Paybill {shortcode}, Account: {reference}. - {company}",
}

var placeholderRE = regexp.MustCompile(`\{([a-z_]+)\}`)

// Render substitutes {placeholders} from vars. Unknown placeholders are left
// as literal text.
func Render(tmpl string, vars map[string]string) string {
	return placeholderRE.ReplaceAllStringFunc(tmpl, func(m string) string {
		if v, ok := vars[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

// FormatAmount prints whole shillings without decimals.
func FormatAmount(d decimal.Decimal) string {
	if d.Equal(d.Truncate(0)) {
		return d.StringFixed(0)
	}
	return d.StringFixed(2)
}
