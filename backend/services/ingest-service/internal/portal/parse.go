package portal

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// dateLayout accepts both zero-padded and bare month/day ("03/01/2025", "3/1/2025").
const dateLayout = "1/2/2006"

var currencyReplacer = strings.NewReplacer("$", "", ",", "", " ", "")

// ParseCurrency parses "$1,234.56" into 1234.56. An empty string is zero.
func ParseCurrency(value string) (decimal.Decimal, error) {
	cleaned := currencyReplacer.Replace(strings.TrimSpace(value))
	if cleaned == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse currency %q: %w", value, err)
	}
	return d, nil
}

// ParsePercentage parses "20%" into 20. An empty string is zero.
func ParsePercentage(value string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(value, "%", ""))
	if cleaned == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse percentage %q: %w", value, err)
	}
	return d, nil
}

// ParseQuantity parses a plain numeric column such as "Units Used", tolerating thousands separators.
func ParseQuantity(value string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(value, ",", ""))
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse quantity %q: %w", value, err)
	}
	return d, nil
}

// ParseDate parses MM/DD/YYYY into midnight UTC of that calendar date.
func ParseDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(value), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", value, err)
	}
	return t, nil
}
