package mpesa

import (
	"errors"
	"strings"

	"github.com/ttacon/libphonenumber"
)

var ErrInvalidPhone = errors.New("invalid phone number")

// NormalizePhone converts local and international spellings of a mobile
// number into E.164 digits without the plus sign, e.g. 0712345678 and
// +254 712 345 678 both become 254712345678.
func NormalizePhone(raw, region string) (string, error) {
	cleaned := cleanPhone(raw)
	if cleaned == "" {
		return "", ErrInvalidPhone
	}
	num, err := libphonenumber.Parse(cleaned, region)
	if err != nil {
		return "", errors.Join(ErrInvalidPhone, err)
	}
	if !libphonenumber.IsValidNumber(num) {
		return "", ErrInvalidPhone
	}
	return strings.TrimPrefix(libphonenumber.Format(num, libphonenumber.E164), "+"), nil
}

// NormalizePhoneLenient is NormalizePhone for display-grade input (provider
// statements mask digits): when parsing fails the bare digits are kept, with
// the Kenyan trunk prefix rewritten.
func NormalizePhoneLenient(raw, region string) string {
	if p, err := NormalizePhone(raw, region); err == nil {
		return p
	}
	digits := digitsOnly(raw)
	switch {
	case strings.HasPrefix(digits, "0") && len(digits) == 10:
		return "254" + digits[1:]
	case len(digits) == 9 && (digits[0] == '7' || digits[0] == '1'):
		return "254" + digits
	}
	if digits == "" {
		return strings.TrimSpace(raw)
	}
	return digits
}

// PhoneSuffix returns the last n digits of a phone number, used to compare
// numbers regardless of country prefix.
func PhoneSuffix(phone string, n int) string {
	d := digitsOnly(phone)
	if len(d) <= n {
		return d
	}
	return d[len(d)-n:]
}

func cleanPhone(raw string) string {
	s := strings.TrimSpace(raw)
	plus := strings.HasPrefix(s, "+")
	d := digitsOnly(s)
	if d == "" {
		return ""
	}
	switch {
	case plus:
		return "+" + d
	case strings.HasPrefix(d, "254") && len(d) == 12:
		return "+" + d
	case len(d) == 9 && (d[0] == '7' || d[0] == '1'):
		return "0" + d
	}
	return d
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
