package models

import (
	"strings"

	"github.com/shopspring/decimal"

	dErrors "reyu/pkg/domain-errors"
)

type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	INR Currency = "INR"
)

// ParseCurrency normalises and validates an ISO code.
func ParseCurrency(raw string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(raw)))
	switch c {
	case USD, EUR, GBP, INR:
		return c, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unsupported currency")
}

// ValidateAmount rejects non-positive amounts and sub-cent precision.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	if !amount.Equal(amount.Round(2)) {
		return dErrors.New(dErrors.CodeValidation, "amount has more than two decimal places")
	}
	return nil
}
