package formatting

import (
	"fmt"
	"strings"
	"time"
)

// Separator returns a line separator of given width
func Separator(width int) string {
	return strings.Repeat("=", width)
}

func Money(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

func Percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

// ParseDate parses a date string in multiple formats
func ParseDate(dateStr string) time.Time {
	formats := []string{
		"2006-01-02", // YYYY-MM-DD (standard)
		"02/01/2006", // DD/MM/YYYY
		"01-02-2006", // MM-DD-YYYY (US format)
		time.RFC3339,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return t
		}
	}

	return time.Time{}
}

// OptionLabel renders a contract identity for logs and justifications,
// e.g. "AAPL 2026-01-16 $190C".
func OptionLabel(underlying string, expiration time.Time, strike float64, right string) string {
	return fmt.Sprintf("%s %s $%.0f%s", underlying, expiration.Format("2006-01-02"), strike, right)
}
