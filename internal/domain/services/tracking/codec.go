// Package tracking embeds payment tracking codes into crypto amounts. The
// chain has no memo field for plain transfers, so the trailing decimal digits
// of the quoted amount carry the code instead: a depositor who sends the
// exact quoted amount identifies their payment by construction.
package tracking

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/trxgate/trxgate/internal/domain/entities"
)

// EncodeAmount overwrites the final codeLength digits of amount, rendered at
// the currency's fixed precision, with the zero-padded code. The integer part
// is never touched: an amount with no fractional digits still gets the full
// precision appended before the code is written in.
func EncodeAmount(amount decimal.Decimal, code int, currency string) (decimal.Decimal, error) {
	precision, ok := entities.PrecisionFor(currency)
	if ok {
		return encode(amount, code, precision, entities.TrackingCodeLength)
	}
	return decimal.Zero, fmt.Errorf("no fixed precision for currency %s", currency)
}

// DecodeAmount extracts the tracking code from an observed transfer amount.
func DecodeAmount(amount decimal.Decimal, currency string) (int, error) {
	precision, ok := entities.PrecisionFor(currency)
	if !ok {
		return 0, fmt.Errorf("no fixed precision for currency %s", currency)
	}
	return decode(amount, precision, entities.TrackingCodeLength)
}

func encode(amount decimal.Decimal, code int, precision, codeLength int32) (decimal.Decimal, error) {
	if codeLength > precision {
		return decimal.Zero, fmt.Errorf("code length %d exceeds precision %d", codeLength, precision)
	}
	digits := int(codeLength)
	if code < 0 || code >= pow10(digits) {
		return decimal.Zero, fmt.Errorf("code %d does not fit in %d digits", code, digits)
	}

	fixed := amount.StringFixed(precision)
	padded := fmt.Sprintf("%0*d", digits, code)
	replaced := fixed[:len(fixed)-digits] + padded

	encoded, err := decimal.NewFromString(replaced)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to rebuild encoded amount: %w", err)
	}
	return encoded, nil
}

func decode(amount decimal.Decimal, precision, codeLength int32) (int, error) {
	fixed := amount.StringFixed(precision)
	digits := int(codeLength)

	tail := fixed[len(fixed)-digits:]
	if strings.Contains(tail, ".") {
		return 0, fmt.Errorf("amount %s too short to carry a code", fixed)
	}

	code, err := strconv.Atoi(tail)
	if err != nil {
		return 0, fmt.Errorf("failed to parse code from %s: %w", fixed, err)
	}
	return code, nil
}

func pow10(n int) int {
	result := 1
	for i := 0; i < n; i++ {
		result *= 10
	}
	return result
}
