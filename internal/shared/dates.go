package shared

import (
	"fmt"
	"time"
)

// DateLayout is the ISO calendar-day format used for every stored date.
// Stored dates compare correctly as plain strings.
const DateLayout = time.DateOnly

// Today returns the UTC calendar day of now.
func Today(now time.Time) string {
	return now.UTC().Format(DateLayout)
}

// ParseDate parses an ISO calendar day.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

// IsDate reports whether s is a valid ISO calendar day.
func IsDate(s string) bool {
	_, err := ParseDate(s)
	return err == nil
}

// AddDays shifts an ISO calendar day by n days.
func AddDays(date string, n int) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(DateLayout), nil
}
