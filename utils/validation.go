package utils

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var hexPattern = regexp.MustCompile("^[0-9a-fA-F]+$")

// ValidateAmount checks that an amount string is a valid, non-negative decimal.
func ValidateAmount(amount string) (decimal.Decimal, error) {
	if strings.TrimSpace(amount) == "" {
		return decimal.Zero, fmt.Errorf("amount cannot be empty")
	}

	dec, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount format: %w", err)
	}

	if dec.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount cannot be negative")
	}

	return dec, nil
}

// ToRaw converts a native amount into integer base units, rounding half
// away from zero at the unit boundary.
func ToRaw(native decimal.Decimal, decimals int32) decimal.Decimal {
	return native.Shift(decimals).Round(0)
}

// FromRaw converts integer base units back into a native amount.
func FromRaw(raw decimal.Decimal, decimals int32) decimal.Decimal {
	return raw.Shift(-decimals)
}

// RawFromBigInt lifts a chain integer amount into a decimal.
func RawFromBigInt(amount *big.Int) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, 0)
}

// IsHexString reports whether s is non-empty hexadecimal.
func IsHexString(s string) bool {
	return hexPattern.MatchString(s)
}
