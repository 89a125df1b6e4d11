package mpesa

import (
	"encoding/base64"
	"time"
)

// TimestampLayout is the provider's YYYYMMDDHHmmss format.
const TimestampLayout = "20060102150405"

// Timestamp formats t in loc (the provider works in East Africa Time).
func Timestamp(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(TimestampLayout)
}

// ParseTimestamp reads a provider timestamp expressed in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(TimestampLayout, s, loc)
}

// Password is base64(shortcode + passkey + timestamp).
func Password(shortcode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
}
