// internal/service/paymentmethod/validation.go
package paymentmethod

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	xerrors "propdesk-service/internal/pkg/errors"
)

var (
	cardNumberPattern    = regexp.MustCompile(`^\d{13,19}$`)
	cvvPattern           = regexp.MustCompile(`^\d{3,4}$`)
	accountNumberPattern = regexp.MustCompile(`^\d{8,17}$`)
	routingNumberPattern = regexp.MustCompile(`^\d{9}$`)
)

const (
	BrandVisa       = "visa"
	BrandMastercard = "mastercard"
	BrandAmex       = "amex"
	BrandDiscover   = "discover"
	BrandUnknown    = "unknown"
)

var accountTypes = map[string]bool{"checking": true, "savings": true}

// stripSpaces removes all whitespace, so "4111 1111 1111 1111" validates.
func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func validateCardNumber(number string) error {
	if number == "" {
		return xerrors.Invalid("card_number", "is required")
	}
	if !cardNumberPattern.MatchString(number) {
		return xerrors.Invalid("card_number", "must be 13 to 19 digits")
	}
	return nil
}

// validateExpiry rejects months outside 1..12 and any expiry strictly before the
// current month.
func validateExpiry(month, year int, now time.Time) error {
	if month < 1 || month > 12 {
		return xerrors.Invalid("expiry_month", "must be between 1 and 12")
	}
	if year <= 0 {
		return xerrors.Invalid("expiry_year", "is required")
	}
	curYear, curMonth := now.Year(), int(now.Month())
	if year < curYear || (year == curYear && month < curMonth) {
		return xerrors.Invalid("expiry", "card has expired")
	}
	return nil
}

func validateCVV(cvv string) error {
	if cvv == "" {
		return nil
	}
	if !cvvPattern.MatchString(cvv) {
		return xerrors.Invalid("cvv", "must be 3 or 4 digits")
	}
	return nil
}

func validateAccountNumber(number string) error {
	if !accountNumberPattern.MatchString(number) {
		return xerrors.Invalid("account_number", "must be 8 to 17 digits")
	}
	return nil
}

func validateRoutingNumber(number string) error {
	if !routingNumberPattern.MatchString(number) {
		return xerrors.Invalid("routing_number", "must be exactly 9 digits")
	}
	return nil
}

func validateAccountType(accountType string) error {
	if accountType == "" || accountTypes[accountType] {
		return nil
	}
	return xerrors.Invalid("account_type", "must be checking or savings")
}

// DetectBrand derives the card network from the number prefix.
func DetectBrand(number string) string {
	switch {
	case strings.HasPrefix(number, "4"):
		return BrandVisa
	case prefixInRange(number, 2, 51, 55), prefixInRange(number, 4, 2221, 2720):
		return BrandMastercard
	case strings.HasPrefix(number, "34"), strings.HasPrefix(number, "37"):
		return BrandAmex
	case strings.HasPrefix(number, "6011"), strings.HasPrefix(number, "65"):
		return BrandDiscover
	default:
		return BrandUnknown
	}
}

func prefixInRange(number string, digits, lo, hi int) bool {
	if len(number) < digits {
		return false
	}
	p, err := strconv.Atoi(number[:digits])
	if err != nil {
		return false
	}
	return p >= lo && p <= hi
}

func lastFour(s string) string {
	if len(s) <= 4 {
		return s
	}
	return s[len(s)-4:]
}

// wantsDefault reports whether the nickname asks for the method to be the default.
func wantsDefault(nickname string) bool {
	return strings.Contains(strings.ToLower(nickname), "default")
}
