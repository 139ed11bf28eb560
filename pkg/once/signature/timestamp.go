package signature

import (
	"fmt"
	"strconv"
	"time"
)

const secondsLayout = "20060102150405"

// FormatTimestamp renders t as YYYYMMDDHHMMSSffffff in UTC.
func FormatTimestamp(t time.Time) string {
	t = t.UTC()
	return t.Format(secondsLayout) + fmt.Sprintf("%06d", t.Nanosecond()/int(time.Microsecond))
}

// ParseTimestamp parses a YYYYMMDDHHMMSSffffff timestamp. The fractional
// part may carry one to six digits.
func ParseTimestamp(ts string) (time.Time, error) {
	n := len(secondsLayout)
	if len(ts) <= n || len(ts) > n+6 {
		return time.Time{}, ErrInvalidTimestamp
	}
	base, err := time.ParseInLocation(secondsLayout, ts[:n], time.UTC)
	if err != nil {
		return time.Time{}, ErrInvalidTimestamp
	}
	frac := ts[n:]
	for _, c := range frac {
		if c < '0' || c > '9' {
			return time.Time{}, ErrInvalidTimestamp
		}
	}
	for len(frac) < 6 {
		frac += "0"
	}
	micros, err := strconv.Atoi(frac)
	if err != nil {
		return time.Time{}, ErrInvalidTimestamp
	}
	return base.Add(time.Duration(micros) * time.Microsecond), nil
}

// ValidateTimestamp reports whether ts lies within [now-tolerance, now].
// Unparsable timestamps are never valid.
func ValidateTimestamp(ts string, now time.Time, tolerance time.Duration) bool {
	t, err := ParseTimestamp(ts)
	if err != nil {
		return false
	}
	age := now.Sub(t)
	return age >= 0 && age <= tolerance
}
